package sectorfs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/dirent"
	"github.com/hupe1980/sectorfs/internal/filedata"
	"github.com/hupe1980/sectorfs/internal/openfile"
)

// Code classifies a failed volume operation.
type Code int

const (
	// GeneralError covers I/O failures and broken invariants.
	GeneralError Code = iota + 1
	// CreateFailed means the target already exists or the path is invalid.
	CreateFailed
	NoSuchFile
	NoSuchDirectory
	// FileInUse means an unlink was attempted on an open file.
	FileInUse
	DirectoryNotEmpty
	TooManyOpenFiles
	BadDescriptor
	FileTooBig
	// NoSpace means the inode or sector bitmap is exhausted.
	NoSpace
	SeekOutOfBounds
	// BufferTooSmall means the caller's buffer cannot hold the directory listing.
	BufferTooSmall
)

var codeNames = map[Code]string{
	GeneralError:      "general error",
	CreateFailed:      "create failed",
	NoSuchFile:        "no such file",
	NoSuchDirectory:   "no such directory",
	FileInUse:         "file in use",
	DirectoryNotEmpty: "directory not empty",
	TooManyOpenFiles:  "too many open files",
	BadDescriptor:     "bad file descriptor",
	FileTooBig:        "file too big",
	NoSpace:           "no space left on volume",
	SeekOutOfBounds:   "seek out of bounds",
	BufferTooSmall:    "buffer too small",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Sentinels for errors.Is. They match any *Error carrying the same Code.
var (
	ErrGeneral           = &Error{Code: GeneralError}
	ErrCreate            = &Error{Code: CreateFailed}
	ErrNoSuchFile        = &Error{Code: NoSuchFile}
	ErrNoSuchDirectory   = &Error{Code: NoSuchDirectory}
	ErrFileInUse         = &Error{Code: FileInUse}
	ErrDirectoryNotEmpty = &Error{Code: DirectoryNotEmpty}
	ErrTooManyOpenFiles  = &Error{Code: TooManyOpenFiles}
	ErrBadDescriptor     = &Error{Code: BadDescriptor}
	ErrFileTooBig        = &Error{Code: FileTooBig}
	ErrNoSpace           = &Error{Code: NoSpace}
	ErrSeekOutOfBounds   = &Error{Code: SeekOutOfBounds}
	ErrBufferTooSmall    = &Error{Code: BufferTooSmall}
)

var (
	// ErrNotReady is the cause of GeneralError failures on a volume that has
	// not been booted successfully.
	ErrNotReady = errors.New("volume not ready")

	// errWrongType is the cause when an operation meets a file where it
	// needs a directory or the other way around.
	errWrongType = errors.New("wrong file type")

	// errRoot is the cause when unlinking the root directory.
	errRoot = errors.New("cannot unlink root directory")

	// errExists is the cause when creating over an existing name.
	errExists = errors.New("already exists")
)

// Error describes a failed volume operation.
//
// The underlying cause (if any) can be accessed via errors.Unwrap.
type Error struct {
	Op   string
	Path string
	Code Code

	cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sectorfs")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	b.WriteString(": " + e.Code.String())
	if e.cause != nil {
		b.WriteString(": " + e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(op, path string, code Code, cause error) *Error {
	return &Error{Op: op, Path: path, Code: code, cause: cause}
}

// translateError maps internal sentinels to the public taxonomy. Causes it
// does not know get fallback.
func translateError(op, path string, err error, fallback Code) error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	code := fallback
	switch {
	case errors.Is(err, openfile.ErrTooManyOpen):
		code = TooManyOpenFiles
	case errors.Is(err, openfile.ErrBadDescriptor):
		code = BadDescriptor
	case errors.Is(err, filedata.ErrFileTooBig):
		code = FileTooBig
	case errors.Is(err, filedata.ErrOutOfRange):
		code = SeekOutOfBounds
	case errors.Is(err, filedata.ErrNoSpace),
		errors.Is(err, bitmap.ErrExhausted),
		errors.Is(err, dirent.ErrDiskFull),
		errors.Is(err, dirent.ErrDirectoryFull):
		code = NoSpace
	}
	return newError(op, path, code, err)
}
