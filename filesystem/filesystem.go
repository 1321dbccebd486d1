package filesystem

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"emperror.dev/errors"
	"github.com/gammazero/workerpool"

	"github.com/filebay/filebay/internal/confine"
)

// Filesystem serves every operation on the shared directory tree. All client
// paths are resolved through the Resolver first and the final I/O is
// performed through a handle on the root directory, so a symlink swapped in
// after resolution still cannot redirect a read or write out of the tree.
type Filesystem struct {
	resolver *Resolver
	root     *confine.Root

	// Number of goroutines used to sniff mimetypes while listing.
	mimeWorkers int
}

type options struct {
	openat2     bool
	mimeWorkers int
}

type Option func(*options)

// WithOpenat2 controls whether openat2(2) is used when the kernel supports
// it. Enabled by default.
func WithOpenat2(enabled bool) Option {
	return func(o *options) {
		o.openat2 = enabled
	}
}

// WithMimeWorkers sets the size of the worker pool used to detect mimetypes
// of directory entries.
func WithMimeWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mimeWorkers = n
		}
	}
}

// New returns a Filesystem rooted at root, which must be an existing
// directory.
func New(root string, opts ...Option) (*Filesystem, error) {
	o := options{openat2: true, mimeWorkers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := NewResolver(root)
	if err != nil {
		return nil, err
	}
	cr, err := confine.OpenRoot(r.Root(), o.openat2)
	if err != nil {
		return nil, errors.Wrap(err, "filesystem: failed to open root directory")
	}
	return &Filesystem{resolver: r, root: cr, mimeWorkers: o.mimeWorkers}, nil
}

// Path returns the canonical root path for the Filesystem instance.
func (fs *Filesystem) Path() string {
	return fs.resolver.Root()
}

// Confinement names the mechanism keeping file operations below the root.
func (fs *Filesystem) Confinement() string {
	if fs.root.UsesOpenat2() {
		return "openat2 (RESOLVE_BENEATH)"
	}
	return "openat (O_NOFOLLOW per component)"
}

// Close releases the handle on the root directory.
func (fs *Filesystem) Close() error {
	return fs.root.Close()
}

// SafePath resolves a client path to an absolute path within the root.
func (fs *Filesystem) SafePath(rel string) (string, error) {
	return fs.resolver.Resolve(rel)
}

// confined resolves rel and returns it as a name relative to the root
// handle.
func (fs *Filesystem) confined(rel string) (string, error) {
	resolved, err := fs.resolver.Resolve(rel)
	if err != nil {
		return "", err
	}
	name, err := fs.root.Rel(resolved)
	if err != nil {
		return "", fromConfine(err, rel, resolved)
	}
	return name, nil
}

// List describes whatever is at rel. A directory yields its immediate
// children sorted by name, a file yields a single entry for itself and a
// missing path yields a listing with Exists set to false.
func (fs *Filesystem) List(rel string) (*Listing, error) {
	rel = NormalizePath(rel)
	out := &Listing{Path: rel, Parent: ParentPath(rel), Items: []Entry{}}

	name, err := fs.confined(rel)
	if err != nil {
		return nil, err
	}
	st, err := fs.root.Stat(name)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, confine.ErrNotDirectory) {
			return out, nil
		}
		return nil, fromConfine(err, rel, name)
	}
	out.Exists = true

	if !st.IsDir() {
		e := newEntry(rel, st)
		if st.Mode().IsRegular() {
			e.Mimetype = fs.sniff(name)
		}
		out.Items = append(out.Items, e)
		return out, nil
	}

	d, err := fs.root.Open(name)
	if err != nil {
		return nil, fromConfine(err, rel, name)
	}
	dirents, err := d.ReadDir(-1)
	d.Close()
	if err != nil {
		return nil, errors.Wrap(err, "filesystem: failed to read directory")
	}

	items := make([]Entry, len(dirents))
	wp := workerpool.New(fs.mimeWorkers)
	for i, de := range dirents {
		i, de := i, de
		wp.Submit(func() {
			items[i] = fs.describe(rel, name, de)
		})
	}
	wp.StopWait()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	out.Items = items
	return out, nil
}

// describe builds the entry for a single child of the directory dir.
func (fs *Filesystem) describe(rel string, dir string, de iofs.DirEntry) Entry {
	childRel := joinRel(rel, de.Name())
	if de.Type()&iofs.ModeSymlink != 0 {
		return fs.describeSymlink(childRel, de.Name())
	}

	name := filepath.Join(dir, de.Name())
	st, err := fs.root.Stat(name)
	if err != nil {
		// Removed between reading the directory and getting here.
		fs.error(err).WithField("path", childRel).Debug("failed to stat directory entry")
		return Entry{Name: de.Name(), Path: childRel, Mimetype: mimeUnknown}
	}
	e := newEntry(childRel, st)
	if st.Mode().IsRegular() {
		e.Mimetype = fs.sniff(name)
	}
	return e
}

// describeSymlink reports a symlink by its target when the target resolves
// inside the root. Anything else is reported as an opaque empty file and is
// never opened.
func (fs *Filesystem) describeSymlink(childRel string, base string) Entry {
	opaque := Entry{Name: base, Path: childRel, Mimetype: mimeUnknown}

	name, err := fs.confined(childRel)
	if err != nil {
		return opaque
	}
	st, err := fs.root.Stat(name)
	if err != nil {
		return opaque
	}
	e := newEntry(childRel, st)
	e.Name = base
	if st.Mode().IsRegular() {
		e.Mimetype = fs.sniff(name)
	}
	return e
}

// sniff detects the mimetype of a regular file. The file is opened
// non-blocking so a fifo swapped in after the stat cannot hang the listing.
func (fs *Filesystem) sniff(name string) string {
	f, err := fs.root.OpenFile(name, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return mimeUnknown
	}
	defer f.Close()
	return detectMimetype(f)
}

// CreateDirectory creates rel and any missing parents. Existing directories
// are left alone; an existing file anywhere along the way is an error.
func (fs *Filesystem) CreateDirectory(rel string) error {
	name, err := fs.confined(rel)
	if err != nil {
		return err
	}
	if name == "." {
		return nil
	}
	if err := fs.root.MkdirAll(name, 0o755); err != nil {
		return fromConfine(err, rel, name)
	}
	return nil
}

// File returns a reader for a regular file as well as its entry. Anything
// that is not a regular file is reported as not found.
func (fs *Filesystem) File(rel string) (*os.File, Entry, error) {
	rel = NormalizePath(rel)
	name, err := fs.confined(rel)
	if err != nil {
		return nil, Entry{}, err
	}
	st, err := fs.root.Stat(name)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, confine.ErrNotDirectory) {
			return nil, Entry{}, newFilesystemError(ErrCodeNotFound, err)
		}
		return nil, Entry{}, fromConfine(err, rel, name)
	}
	if !st.Mode().IsRegular() {
		return nil, Entry{}, newFilesystemError(ErrCodeNotFound, nil)
	}
	f, err := fs.root.Open(name)
	if err != nil {
		return nil, Entry{}, fromConfine(err, rel, name)
	}
	return f, newEntry(rel, st), nil
}
