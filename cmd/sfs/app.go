package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/hupe1980/sectorfs"
	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/resource"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// env is what every command needs after configuration is resolved.
type env struct {
	cfg    *Config
	store  blobstore.BlobStore
	logger *sectorfs.Logger
	image  string
	json   bool
	in     io.Reader
	out    io.Writer
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:        appName,
		Usage:       "inspect and modify sectorfs volume images",
		Description: "a CLI for sectorfs volumes; images live on local disk, S3 or MinIO",
		Writer:      out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"SFS_CONFIG_FILE"}},
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Value: "disk.img", Usage: "image name in the store", EnvVars: []string{"SFS_IMAGE"}},
			&cli.StringFlag{Name: "backend", Usage: "image store: local, s3 or minio"},
			&cli.StringFlag{Name: "root", Usage: "directory holding images for the local backend"},
			&cli.StringFlag{Name: "compression", Usage: "image compression: none, lz4 or zstd"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
		},
		Commands: []*cli.Command{{
			Name:  "format",
			Usage: "create an empty volume image",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "replace an existing image"},
			},
			Action: withEnv(in, out, runFormat),
		}, {
			Name:      "ls",
			Aliases:   []string{"list"},
			Usage:     "list a directory",
			ArgsUsage: "[PATH]",
			Action:    withVolume(in, out, false, runLs),
		}, {
			Name:      "mkdir",
			Usage:     "create directories",
			ArgsUsage: "PATH...",
			Action: withVolume(in, out, true, func(c *cli.Context, e *env, v *sectorfs.Volume) error {
				return eachArg(c, v.CreateDirectory)
			}),
		}, {
			Name:      "rmdir",
			Usage:     "remove empty directories",
			ArgsUsage: "PATH...",
			Action: withVolume(in, out, true, func(c *cli.Context, e *env, v *sectorfs.Volume) error {
				return eachArg(c, v.UnlinkDirectory)
			}),
		}, {
			Name:      "rm",
			Aliases:   []string{"unlink"},
			Usage:     "remove files",
			ArgsUsage: "PATH...",
			Action: withVolume(in, out, true, func(c *cli.Context, e *env, v *sectorfs.Volume) error {
				return eachArg(c, v.UnlinkFile)
			}),
		}, {
			Name:      "put",
			Usage:     "copy a host file (or - for stdin) into the volume",
			ArgsUsage: "SRC DST",
			Action:    withVolume(in, out, true, runPut),
		}, {
			Name:      "cat",
			Usage:     "print a file",
			ArgsUsage: "PATH",
			Action:    withVolume(in, out, false, runCat),
		}, {
			Name:      "stat",
			Usage:     "describe a file or directory",
			ArgsUsage: "PATH",
			Action:    withVolume(in, out, false, runStat),
		}, {
			Name:   "df",
			Usage:  "show inode and sector usage",
			Action: withVolume(in, out, false, runDf),
		}, {
			Name:      "fsck",
			Usage:     "check volume images for consistency",
			ArgsUsage: "[IMAGE...]",
			Action:    withEnv(in, out, runFsck),
		}},
	}
}

func loadEnv(c *cli.Context, in io.Reader, out io.Writer) (*env, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("root") {
		cfg.Root = c.String("root")
	}
	if c.IsSet("compression") {
		cfg.Compression = c.String("compression")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return nil, err
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		store:  store,
		logger: sectorfs.NewTextLogger(level),
		image:  c.String("image"),
		json:   c.Bool("json"),
		in:     in,
		out:    out,
	}, nil
}

func withEnv(in io.Reader, out io.Writer, f func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := loadEnv(c, in, out)
		if err != nil {
			return err
		}
		return f(c, e)
	}
}

// withVolume boots the configured image, runs f and, for mutating commands,
// saves the image afterwards.
func withVolume(in io.Reader, out io.Writer, mutates bool, f func(c *cli.Context, e *env, v *sectorfs.Volume) error) cli.ActionFunc {
	return withEnv(in, out, func(c *cli.Context, e *env) error {
		if err := requireImage(c.Context, e.store, e.image); err != nil {
			return err
		}

		v, err := e.volume(nil)
		if err != nil {
			return err
		}
		if err := v.Boot(c.Context, e.image); err != nil {
			return err
		}

		if err := f(c, e, v); err != nil {
			_ = v.Close()
			return err
		}
		if mutates {
			return v.Unmount(c.Context)
		}
		return v.Close()
	})
}

func (e *env) volume(rc *resource.Controller) (*sectorfs.Volume, error) {
	return sectorfs.New(
		sectorfs.WithGeometry(e.cfg.Geometry),
		sectorfs.WithStore(e.store),
		sectorfs.WithLogger(e.logger),
		sectorfs.WithResourceController(rc),
	)
}

// requireImage keeps read commands from formatting a volume by accident.
func requireImage(ctx context.Context, store blobstore.BlobStore, name string) error {
	blob, err := store.Open(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("image %q does not exist; run `%s format` first", name, appName)
	}
	if err != nil {
		return err
	}
	return blob.Close()
}

func eachArg(c *cli.Context, f func(string) error) error {
	if c.Args().Len() == 0 {
		return cli.Exit("missing PATH argument", 2)
	}
	for _, p := range c.Args().Slice() {
		if err := f(p); err != nil {
			return err
		}
	}
	return nil
}

func runFormat(c *cli.Context, e *env) error {
	if c.Bool("force") {
		if err := e.store.Delete(c.Context, e.image); err != nil {
			return err
		}
	} else if err := requireImage(c.Context, e.store, e.image); err == nil {
		return fmt.Errorf("image %q already exists; use --force to replace it", e.image)
	}

	v, err := e.volume(nil)
	if err != nil {
		return err
	}
	if err := v.Boot(c.Context, e.image); err != nil {
		return err
	}
	defer v.Close()

	g := v.Geometry()
	return e.print(g, fmt.Sprintf("formatted %s: %d sectors of %d bytes, %d inodes\n",
		e.image, g.TotalSectors, g.SectorSize, g.MaxInodes))
}

func runLs(c *cli.Context, e *env, v *sectorfs.Volume) error {
	dir := "/"
	if c.Args().Len() > 0 {
		dir = c.Args().First()
	}

	size, err := v.DirectorySize(dir)
	if err != nil {
		return err
	}
	entries, err := v.ReadDirectory(dir, size)
	if err != nil {
		return err
	}

	infos := make([]sectorfs.FileInfo, 0, len(entries))
	for _, de := range entries {
		fi, err := v.Stat(path.Join(dir, de.Name))
		if err != nil {
			return err
		}
		infos = append(infos, fi)
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	if e.json {
		return e.printJSON(infos)
	}
	for _, fi := range infos {
		name := fi.Name
		if fi.IsDir() {
			name += "/"
		}
		fmt.Fprintf(e.out, "%-9s %6d %4d  %s\n", fi.Type, fi.Size, fi.Inode, name)
	}
	return nil
}

func runPut(c *cli.Context, e *env, v *sectorfs.Volume) error {
	if c.Args().Len() != 2 {
		return cli.Exit("usage: put SRC DST", 2)
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)

	var data []byte
	var err error
	if src == "-" {
		data, err = io.ReadAll(e.in)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return err
	}

	if err := v.CreateFile(dst); err != nil {
		return err
	}
	fd, err := v.OpenFile(dst)
	if err != nil {
		return err
	}
	defer v.CloseFile(fd)

	n, err := v.WriteFile(fd, data)
	if err != nil {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err)
	}
	return nil
}

func runCat(c *cli.Context, e *env, v *sectorfs.Volume) error {
	if c.Args().Len() != 1 {
		return cli.Exit("usage: cat PATH", 2)
	}
	fd, err := v.OpenFile(c.Args().First())
	if err != nil {
		return err
	}
	defer v.CloseFile(fd)

	buf := make([]byte, v.Geometry().SectorSize)
	for {
		n, err := v.ReadFile(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := e.out.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func runStat(c *cli.Context, e *env, v *sectorfs.Volume) error {
	if c.Args().Len() != 1 {
		return cli.Exit("usage: stat PATH", 2)
	}
	fi, err := v.Stat(c.Args().First())
	if err != nil {
		return err
	}
	return e.print(fi, fmt.Sprintf("inode: %d\ntype: %s\nsize: %d\nsectors: %d\n",
		fi.Inode, fi.Type, fi.Size, fi.Sectors))
}

func runDf(c *cli.Context, e *env, v *sectorfs.Volume) error {
	u, err := v.Usage()
	if err != nil {
		return err
	}
	return e.print(u, fmt.Sprintf("inodes: %d used, %d free\nsectors: %d used, %d free (%d bytes free)\n",
		u.UsedInodes, u.FreeInodes(), u.UsedSectors, u.FreeSectors(), u.FreeBytes()))
}

type fsckResult struct {
	Image  string                `json:"image"`
	Error  string                `json:"error,omitempty"`
	Report *sectorfs.CheckReport `json:"report,omitempty"`
}

func (r fsckResult) ok() bool { return r.Error == "" && r.Report.OK() }

// runFsck checks every named image in parallel. Workers bound how many
// images are loaded at once; the I/O limit throttles their transfers.
func runFsck(c *cli.Context, e *env) error {
	names := c.Args().Slice()
	if len(names) == 0 {
		names = []string{e.image}
	}

	rc := resource.NewController(resource.Config{
		MaxCheckers:   e.cfg.Workers,
		IOBytesPerSec: e.cfg.IOLimit,
	})

	results := make([]fsckResult, len(names))
	g, ctx := errgroup.WithContext(c.Context)
	for i, name := range names {
		g.Go(func() error {
			if err := rc.AcquireChecker(ctx); err != nil {
				return err
			}
			defer rc.ReleaseChecker()

			results[i] = e.check(ctx, rc, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.ok() {
			failed++
		}
	}

	if e.json {
		if err := e.printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Fprintf(e.out, "%s: %s\n", r.Image, r.Error)
			case r.Report.OK():
				fmt.Fprintf(e.out, "%s: clean, %d files, %d directories, %d data sectors\n",
					r.Image, r.Report.Files, r.Report.Directories, r.Report.DataSectors)
			default:
				fmt.Fprintf(e.out, "%s: %d problems\n", r.Image, len(r.Report.Problems))
				for _, p := range r.Report.Problems {
					fmt.Fprintf(e.out, "  %s\n", p)
				}
			}
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("fsck: %d of %d images failed", failed, len(results)), 1)
	}
	return nil
}

func (e *env) check(ctx context.Context, rc *resource.Controller, name string) fsckResult {
	res := fsckResult{Image: name}
	if err := requireImage(ctx, e.store, name); err != nil {
		res.Error = err.Error()
		return res
	}

	v, err := e.volume(rc)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer v.Close()

	if err := v.Boot(ctx, name); err != nil {
		res.Error = err.Error()
		return res
	}
	report, err := v.Check(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Report = report
	return res
}

// print writes v as JSON or text as requested.
func (e *env) print(v any, text string) error {
	if e.json {
		return e.printJSON(v)
	}
	_, err := io.WriteString(e.out, text)
	return err
}

func (e *env) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "%s\n", data)
	return err
}
