package filesystem

import (
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"emperror.dev/errors"
)

// Resolver maps client supplied relative paths onto absolute paths that are
// guaranteed to be the root directory or something beneath it.
type Resolver struct {
	root string
}

// NewResolver canonicalizes root and returns a Resolver for it. The root must
// exist and be a directory.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "filesystem: failed to make root absolute")
	}
	ep, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrap(err, "filesystem: failed to evaluate root directory")
	}
	st, err := os.Stat(ep)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !st.IsDir() {
		return nil, errors.Errorf("filesystem: root %s is not a directory", ep)
	}
	return &Resolver{root: ep}, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve joins rel onto the root and returns the canonical absolute path it
// points at. Symlinks are evaluated, and if the target does not exist yet the
// deepest existing ancestor is evaluated instead and the missing tail
// appended. Any result outside the root is rejected with
// ErrCodePathResolution; nothing on disk is modified.
func (r *Resolver) Resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", NewBadPathResolution(rel, "")
	}
	joined := r.unsafeJoin(rel)
	if !r.unsafeIsInRoot(joined) {
		return "", NewBadPathResolution(rel, joined)
	}

	// Walk up until something exists. Lstat is used so a dangling symlink
	// counts as existing and is evaluated (and rejected) below rather than
	// being treated as a free name to create.
	existing, tail := joined, ""
	for existing != r.root {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !isNotExist(err) {
			return "", errors.Wrap(err, "filesystem: failed to stat path")
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = filepath.Dir(existing)
	}

	ep, err := filepath.EvalSymlinks(existing)
	if err != nil {
		if isNotExist(err) {
			return "", NewBadPathResolution(rel, existing)
		}
		return "", errors.Wrap(err, "filesystem: failed to evaluate symlink")
	}
	if !r.unsafeIsInRoot(ep) {
		return "", NewBadPathResolution(rel, ep)
	}
	return filepath.Join(ep, tail), nil
}

// Rel returns the slash separated path of a resolved path relative to the
// root, "" for the root itself.
func (r *Resolver) Rel(resolved string) string {
	if resolved == r.root {
		return ""
	}
	return filepath.ToSlash(strings.TrimPrefix(resolved, r.root+string(filepath.Separator)))
}

// Generate a path by cleaning rel and appending it to the root. This DOES NOT
// guarantee that the result is within the root, and symlinks are not
// considered at all.
func (r *Resolver) unsafeJoin(rel string) string {
	return filepath.Clean(filepath.Join(r.root, rel))
}

// Checks that the path is the root or below it, with a separator boundary so
// that a root of /data does not accept /data2.
func (r *Resolver) unsafeIsInRoot(p string) bool {
	return p == r.root || strings.HasPrefix(p, r.root+string(filepath.Separator))
}

// A path below a regular file reports ENOTDIR rather than ENOENT; for
// resolution purposes both mean the name is free.
func isNotExist(err error) bool {
	return errors.Is(err, iofs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// NormalizePath strips leading and trailing slashes from a client path so it
// can be echoed back and joined onto other relative paths.
func NormalizePath(rel string) string {
	return strings.Trim(rel, "/")
}

// ParentPath returns rel with its last segment removed, "" when rel has at
// most one segment. It never touches the filesystem.
func ParentPath(rel string) string {
	rel = NormalizePath(rel)
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return ""
}

// joinRel joins relative slash paths, dropping empty elements.
func joinRel(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}
