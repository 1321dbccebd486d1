package filesystem

import (
	"fmt"
	iofs "io/fs"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/filebay/filebay/internal/confine"
)

type ErrorCode string

const (
	ErrCodeIsDirectory    ErrorCode = "E_ISDIR"
	ErrCodeNotDirectory   ErrorCode = "E_NOTDIR"
	ErrCodeNotFound       ErrorCode = "E_NOTEXIST"
	ErrCodePathResolution ErrorCode = "E_BADPATH"
	ErrCodeUnknownError   ErrorCode = "E_UNKNOWN"
)

// Error is the error type returned by the filesystem for any failure the
// caller is expected to handle by code rather than as a generic I/O fault.
type Error struct {
	code ErrorCode
	// Contains the underlying error leading to this. This value may or may not be
	// present, it is only set when an underlying error is being wrapped.
	err error
	// The relative path requested by the client.
	path string
	// The resolved path that caused the error, if any.
	resolved string
}

// newFilesystemError returns a new error instance with a stack trace
// attached, pointing at the caller of this function.
func newFilesystemError(code ErrorCode, err error) error {
	if err != nil {
		return errors.WithStackDepth(&Error{code: code, err: err}, 1)
	}
	return errors.WithStackDepth(&Error{code: code}, 1)
}

// NewBadPathResolution returns an error for a relative path that resolves to
// a location outside the root.
func NewBadPathResolution(path string, resolved string) error {
	return errors.WithStackDepth(&Error{code: ErrCodePathResolution, path: path, resolved: resolved}, 1)
}

// Code returns the ErrorCode for this specific error instance.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Error returns a human-readable error string to identify the Error by.
func (e *Error) Error() string {
	switch e.code {
	case ErrCodeIsDirectory:
		return "filesystem: is a directory"
	case ErrCodeNotDirectory:
		return "filesystem: not a directory"
	case ErrCodeNotFound:
		return "filesystem: does not exist"
	case ErrCodePathResolution:
		r := e.resolved
		if r == "" {
			r = "<empty>"
		}
		return fmt.Sprintf("filesystem: path [%s] resolves to a location outside the root: %s", e.path, r)
	case ErrCodeUnknownError:
		fallthrough
	default:
		return fmt.Sprintf("filesystem: an error occurred: %s", e.Unwrap())
	}
}

// Unwrap returns the underlying cause of this filesystem error. In some cases
// there may not be a cause present, in which case nil will be returned.
func (e *Error) Unwrap() error {
	return e.err
}

// IsErrorCode checks if "err" is a filesystem Error type. If so, it will then
// drop in and check that the error code is the same as the provided ErrorCode
// passed in "code".
func IsErrorCode(err error, code ErrorCode) bool {
	var fserr *Error
	if errors.As(err, &fserr) {
		return fserr.code == code
	}
	return false
}

// fromConfine translates errors coming out of the confined root into
// filesystem error codes. Anything unrecognised is an I/O failure and only
// gets a stack attached.
func fromConfine(err error, path string, resolved string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, confine.ErrEscape):
		return errors.WithStackDepth(&Error{code: ErrCodePathResolution, path: path, resolved: resolved, err: err}, 1)
	case errors.Is(err, iofs.ErrNotExist):
		return errors.WithStackDepth(&Error{code: ErrCodeNotFound, path: path, err: err}, 1)
	case errors.Is(err, confine.ErrNotDirectory):
		return errors.WithStackDepth(&Error{code: ErrCodeNotDirectory, path: path, err: err}, 1)
	case errors.Is(err, confine.ErrIsDirectory):
		return errors.WithStackDepth(&Error{code: ErrCodeIsDirectory, path: path, err: err}, 1)
	}
	return errors.WithStackDepth(err, 1)
}

// Generates an error logger instance with some basic information.
func (fs *Filesystem) error(err error) *log.Entry {
	return log.WithField("subsystem", "filesystem").WithField("root", fs.Path()).WithField("error", err)
}
