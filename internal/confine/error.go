package confine

import (
	"errors"
	iofs "io/fs"

	"golang.org/x/sys/unix"
)

var (
	// ErrEscape is returned when resolving a name would leave the root
	// directory, either through ".." or through a symlink.
	ErrEscape = errors.New("confine: path escapes root")
	// ErrNotDirectory is returned when a directory was expected.
	ErrNotDirectory = errors.New("confine: not a directory")
	// ErrIsDirectory is returned when a non-directory was expected.
	ErrIsDirectory = errors.New("confine: is a directory")
	// ErrClosed is returned when the root handle has already been released.
	ErrClosed = iofs.ErrClosed
)

// PathError is the error type returned by every operation in this package.
type PathError = iofs.PathError

// normalize maps raw errno values onto the sentinel errors callers match on,
// keeping the *PathError wrapper so the failing name survives.
func normalize(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var pErr *PathError
	if errors.As(err, &pErr) {
		op, name, err = pErr.Op, pErr.Path, pErr.Err
	}
	switch {
	case errors.Is(err, unix.ENOENT):
		err = iofs.ErrNotExist
	case errors.Is(err, unix.EEXIST):
		err = iofs.ErrExist
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		err = iofs.ErrPermission
	case errors.Is(err, unix.ENOTDIR):
		err = ErrNotDirectory
	case errors.Is(err, unix.EISDIR):
		err = ErrIsDirectory
	// openat2 reports RESOLVE_BENEATH violations as EXDEV, and O_NOFOLLOW on
	// a symlink as ELOOP. Both mean the name tried to leave the tree.
	case errors.Is(err, unix.EXDEV), errors.Is(err, unix.ELOOP):
		err = ErrEscape
	}
	return &PathError{Op: op, Path: name, Err: err}
}
