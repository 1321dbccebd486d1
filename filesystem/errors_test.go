package filesystem

import (
	"io"
	iofs "io/fs"
	"testing"

	"emperror.dev/errors"
	. "github.com/franela/goblin"

	"github.com/filebay/filebay/internal/confine"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func TestFilesystem_Errors(t *testing.T) {
	g := Goblin(t)

	g.Describe("NewFilesystemError", func() {
		g.It("includes a stack trace for the error", func() {
			err := newFilesystemError(ErrCodeUnknownError, nil)

			_, ok := err.(stackTracer)
			g.Assert(ok).IsTrue()
		})

		g.It("properly wraps the underlying error cause", func() {
			err := newFilesystemError(ErrCodeUnknownError, io.EOF)

			_, ok := err.(*Error)
			g.Assert(ok).IsFalse()

			fserr, ok := errors.Unwrap(err).(*Error)
			g.Assert(ok).IsTrue()
			g.Assert(fserr.Unwrap()).Equal(io.EOF)
			g.Assert(errors.Is(err, io.EOF)).IsTrue()
		})
	})

	g.Describe("NewBadPathResolution", func() {
		g.It("can detect itself as an error correctly", func() {
			err := NewBadPathResolution("foo", "bar")
			g.Assert(IsErrorCode(err, ErrCodePathResolution)).IsTrue()
			g.Assert(err.Error()).Equal("filesystem: path [foo] resolves to a location outside the root: bar")
			g.Assert(IsErrorCode(&Error{code: ErrCodeIsDirectory}, ErrCodePathResolution)).IsFalse()
		})

		g.It("returns <empty> if no destination path is provided", func() {
			err := NewBadPathResolution("foo", "")
			g.Assert(err.Error()).Equal("filesystem: path [foo] resolves to a location outside the root: <empty>")
		})
	})

	g.Describe("fromConfine", func() {
		wrap := func(err error) error {
			return &confine.PathError{Op: "open", Path: "x", Err: err}
		}

		g.It("maps confinement errors onto codes", func() {
			g.Assert(IsErrorCode(fromConfine(wrap(confine.ErrEscape), "x", "y"), ErrCodePathResolution)).IsTrue()
			g.Assert(IsErrorCode(fromConfine(wrap(iofs.ErrNotExist), "x", "y"), ErrCodeNotFound)).IsTrue()
			g.Assert(IsErrorCode(fromConfine(wrap(confine.ErrNotDirectory), "x", "y"), ErrCodeNotDirectory)).IsTrue()
			g.Assert(IsErrorCode(fromConfine(wrap(confine.ErrIsDirectory), "x", "y"), ErrCodeIsDirectory)).IsTrue()
		})

		g.It("passes other errors through", func() {
			err := fromConfine(wrap(iofs.ErrPermission), "x", "y")
			var fserr *Error
			g.Assert(errors.As(err, &fserr)).IsFalse()
			g.Assert(errors.Is(err, iofs.ErrPermission)).IsTrue()
		})

		g.It("returns nil for nil", func() {
			g.Assert(fromConfine(nil, "x", "y") == nil).IsTrue()
		})
	})
}
