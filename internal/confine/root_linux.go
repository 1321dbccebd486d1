//go:build linux

package confine

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Root is an open handle on a directory. Every operation takes a name
// relative to that directory and is resolved against the handle, never
// against a path string, so renaming or replacing path components above the
// root has no effect on where I/O lands.
type Root struct {
	path string
	fd   atomic.Int64

	// beneath enables openat2(2) with RESOLVE_BENEATH for opens. Without it
	// each directory component is opened individually with O_NOFOLLOW.
	beneath bool
}

// OpenRoot opens the directory at path. The path should already be absolute
// and free of symlinks; it is what Rel strips from absolute names.
func OpenRoot(path string, useOpenat2 bool) (*Root, error) {
	path = filepath.Clean(path)
	fd, err := retry(func() (int, error) {
		return unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	})
	if err != nil {
		return nil, normalize("open", path, err)
	}
	r := &Root{path: path, beneath: useOpenat2 && supportsOpenat2(fd)}
	r.fd.Store(int64(fd))
	return r, nil
}

// supportsOpenat2 probes the running kernel, openat2 was added in 5.6.
func supportsOpenat2(dirfd int) bool {
	fd, err := unix.Openat2(dirfd, ".", &unix.OpenHow{
		Flags:   unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC,
		Resolve: unix.RESOLVE_BENEATH,
	})
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

// Path returns the absolute path the root was opened with.
func (r *Root) Path() string {
	return r.path
}

// UsesOpenat2 reports whether opens are confined by the kernel.
func (r *Root) UsesOpenat2() bool {
	return r.beneath
}

// Close releases the directory handle. Any later call fails with ErrClosed.
func (r *Root) Close() error {
	fd := r.fd.Swap(-1)
	if fd < 0 {
		return nil
	}
	return unix.Close(int(fd))
}

// Rel converts an absolute path inside the root into the relative name the
// other methods expect. The root itself becomes ".".
func (r *Root) Rel(abs string) (string, error) {
	abs = filepath.Clean(abs)
	if abs == r.path {
		return ".", nil
	}
	if !strings.HasPrefix(abs, r.path+"/") {
		return "", &PathError{Op: "rel", Path: abs, Err: ErrEscape}
	}
	return strings.TrimPrefix(abs, r.path+"/"), nil
}

// Open opens name for reading.
func (r *Root) Open(name string) (*os.File, error) {
	return r.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates name for writing. Missing parent directories
// are created first.
func (r *Root) Create(name string) (*os.File, error) {
	if dir := parent(name); dir != "." {
		if err := r.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return r.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// OpenFile is the confined counterpart of os.OpenFile. The final component
// is never followed if it is a symlink.
func (r *Root) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	clean, err := r.clean("open", name)
	if err != nil {
		return nil, err
	}
	rootfd, err := r.dirfd()
	if err != nil {
		return nil, err
	}
	flag |= unix.O_CLOEXEC | unix.O_NOFOLLOW

	var fd int
	if r.beneath {
		fd, err = retry(func() (int, error) {
			return unix.Openat2(rootfd, clean, &unix.OpenHow{
				Flags: uint64(flag) | unix.O_LARGEFILE,
				Mode:  uint64(perm.Perm()),
				// Resolved names never contain symlinks, so meeting one here
				// means the tree changed underneath us.
				Resolve: unix.RESOLVE_BENEATH | unix.RESOLVE_NO_SYMLINKS | unix.RESOLVE_NO_MAGICLINKS,
			})
		})
		if err != nil {
			return nil, normalize("openat2", clean, err)
		}
	} else {
		dirfd, release, err := r.walk(parent(clean), false, 0)
		if err != nil {
			return nil, err
		}
		fd, err = retry(func() (int, error) {
			return unix.Openat(dirfd, filepath.Base(clean), flag, uint32(perm.Perm()))
		})
		release()
		if err != nil {
			return nil, normalize("openat", clean, err)
		}
	}
	return os.NewFile(uintptr(fd), filepath.Join(r.path, clean)), nil
}

// Stat describes name without following a symlink in its final component.
func (r *Root) Stat(name string) (os.FileInfo, error) {
	clean, err := r.clean("stat", name)
	if err != nil {
		return nil, err
	}
	if clean == "." {
		f, err := r.Open(".")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.Stat()
	}
	dirfd, release, err := r.walk(parent(clean), false, 0)
	if err != nil {
		return nil, err
	}
	defer release()

	var st unix.Stat_t
	if err := ignoringEINTR(func() error {
		return unix.Fstatat(dirfd, filepath.Base(clean), &st, unix.AT_SYMLINK_NOFOLLOW)
	}); err != nil {
		return nil, normalize("stat", clean, err)
	}
	return newFileInfo(filepath.Base(clean), &st), nil
}

// MkdirAll creates name and any missing parents. Existing directories are
// left alone, an existing non-directory component is an error.
func (r *Root) MkdirAll(name string, perm os.FileMode) error {
	clean, err := r.clean("mkdir", name)
	if err != nil {
		return err
	}
	_, release, err := r.walk(clean, true, perm)
	release()
	return err
}

// walk opens each component of dir from the root down, creating missing
// ones when create is set. Symlinks are refused at every step. The returned
// release func must always be called, even when err is set.
func (r *Root) walk(dir string, create bool, perm os.FileMode) (int, func(), error) {
	noop := func() {}
	cur, err := r.dirfd()
	if err != nil {
		return -1, noop, err
	}
	if dir == "." {
		return cur, noop, nil
	}

	owned := false
	release := func() {
		if owned {
			_ = unix.Close(cur)
		}
	}
	walked := ""
	for _, part := range strings.Split(dir, "/") {
		walked = filepath.Join(walked, part)
		if create {
			err := ignoringEINTR(func() error {
				return unix.Mkdirat(cur, part, uint32(perm.Perm()))
			})
			if err != nil && err != unix.EEXIST {
				release()
				return -1, noop, normalize("mkdirat", walked, err)
			}
		}
		next, err := retry(func() (int, error) {
			return unix.Openat(cur, part, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		})
		// O_DIRECTORY is checked before O_NOFOLLOW, so a symlinked component
		// shows up as ENOTDIR rather than ELOOP.
		if err == unix.ENOTDIR && isSymlinkAt(cur, part) {
			err = unix.ELOOP
		}
		if err != nil {
			release()
			return -1, noop, normalize("openat", walked, err)
		}
		release()
		cur, owned = next, true
	}
	return cur, release, nil
}

// clean rejects absolute names and any name that climbs with "..".
func (r *Root) clean(op, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", &PathError{Op: op, Path: name, Err: ErrEscape}
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", &PathError{Op: op, Path: name, Err: ErrEscape}
		}
	}
	if name == "" {
		return ".", nil
	}
	return filepath.Clean(name), nil
}

func (r *Root) dirfd() (int, error) {
	fd := r.fd.Load()
	if fd < 0 {
		return -1, ErrClosed
	}
	return int(fd), nil
}

func isSymlinkAt(dirfd int, name string) bool {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFLNK
}

func parent(name string) string {
	d := filepath.Dir(name)
	if d == "" {
		return "."
	}
	return d
}

func retry(fn func() (int, error)) (int, error) {
	for {
		fd, err := fn()
		if err != unix.EINTR {
			return fd, err
		}
	}
}

func ignoringEINTR(fn func() error) error {
	for {
		if err := fn(); err != unix.EINTR {
			return err
		}
	}
}
