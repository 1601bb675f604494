package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/sectorfs"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SFS"
	appName      = "sfs"
)

// Config selects the image store and the volume geometry. Values come from
// an optional YAML file, then SFS_* environment variables, then flags.
type Config struct {
	Backend     string `envconfig:"SFS_BACKEND"     yaml:"backend"`
	Root        string `envconfig:"SFS_ROOT"        yaml:"root"`
	Bucket      string `envconfig:"SFS_BUCKET"      yaml:"bucket"`
	Prefix      string `envconfig:"SFS_PREFIX"      yaml:"prefix"`
	Endpoint    string `envconfig:"SFS_ENDPOINT"    yaml:"endpoint"`
	AccessKey   string `envconfig:"SFS_ACCESS_KEY"  yaml:"accessKey"`
	SecretKey   string `envconfig:"SFS_SECRET_KEY"  yaml:"secretKey"`
	UseSSL      bool   `envconfig:"SFS_USE_SSL"     yaml:"useSSL"`
	Compression string `envconfig:"SFS_COMPRESSION" yaml:"compression"`
	IOLimit     int64  `envconfig:"SFS_IO_LIMIT"    yaml:"ioLimitBytesPerSec"`
	Workers     int64  `envconfig:"SFS_WORKERS"     yaml:"workers"`
	LogLevel    string `envconfig:"SFS_LOG_LEVEL"   yaml:"logLevel"`

	Geometry sectorfs.Geometry `ignored:"true" yaml:"geometry"`
}

// LoadConfig reads the YAML file at path, or SFS_CONFIG_FILE when path is
// empty, and applies the environment on top. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}

	c := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

// defaultConfig is applied first so that the file and the environment only
// override what they set.
func defaultConfig() Config {
	return Config{
		Backend:     "local",
		Root:        ".",
		UseSSL:      true,
		Compression: "none",
		Workers:     4,
		LogLevel:    "warn",
		Geometry:    sectorfs.DefaultGeometry(),
	}
}

// Validate checks the backend-specific settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
		if c.Root == "" {
			return fmt.Errorf("missing required configuration: root / %s_ROOT", envVarPrefix)
		}
	case "s3":
		if c.Bucket == "" {
			return fmt.Errorf("missing required configuration: bucket / %s_BUCKET", envVarPrefix)
		}
	case "minio":
		if c.Bucket == "" {
			return fmt.Errorf("missing required configuration: bucket / %s_BUCKET", envVarPrefix)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("missing required configuration: endpoint / %s_ENDPOINT", envVarPrefix)
		}
	default:
		return fmt.Errorf("unknown backend %q (want local, s3 or minio)", c.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return c.Geometry.Validate()
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
