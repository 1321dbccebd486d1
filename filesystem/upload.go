package filesystem

import (
	"io"
	"mime/multipart"
	"sync"

	"emperror.dev/errors"
)

// UploadItem is a single file received in an upload request.
type UploadItem struct {
	// Path the client declared for the file, relative to the upload target.
	// Usually set when a whole directory was picked in the browser.
	RelativePath string
	// Name of the file as reported by the client.
	Filename string
	// Open returns the file content. It is called once, right before the
	// file is written.
	Open func() (io.ReadCloser, error)
}

// NewUploadItem returns an UploadItem reading its content from r.
func NewUploadItem(relpath string, filename string, r io.Reader) UploadItem {
	return UploadItem{
		RelativePath: relpath,
		Filename:     filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}
}

// ItemsFromForm returns one UploadItem per "file" part of a parsed multipart
// form. The n-th "relpath" value, when present, is the declared path of the
// n-th file.
func ItemsFromForm(form *multipart.Form) []UploadItem {
	headers := form.File["file"]
	relpaths := form.Value["relpath"]
	items := make([]UploadItem, 0, len(headers))
	for i, h := range headers {
		h := h
		item := UploadItem{
			Filename: h.Filename,
			Open: func() (io.ReadCloser, error) {
				return h.Open()
			},
		}
		if i < len(relpaths) {
			item.RelativePath = relpaths[i]
		}
		items = append(items, item)
	}
	return items
}

var copyBuffers = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 128*1024)
		return &b
	},
}

// Upload writes every item below base, creating base and any intermediate
// directories as needed. Existing files are overwritten. Items whose name
// sanitizes to nothing are skipped. The first failure stops the upload;
// files written before it are left in place and returned alongside the
// error.
func (fs *Filesystem) Upload(base string, items []UploadItem) ([]string, error) {
	base = NormalizePath(base)
	if err := fs.CreateDirectory(base); err != nil {
		return nil, err
	}

	saved := make([]string, 0, len(items))
	for _, item := range items {
		dest, ok := Destination(base, item.RelativePath, item.Filename)
		if !ok {
			continue
		}
		if err := fs.write(dest, item); err != nil {
			return saved, err
		}
		saved = append(saved, dest)
	}
	return saved, nil
}

func (fs *Filesystem) write(dest string, item UploadItem) error {
	name, err := fs.confined(dest)
	if err != nil {
		return err
	}
	if item.Open == nil {
		return errors.Errorf("filesystem: upload item %q has no content", item.Filename)
	}
	r, err := item.Open()
	if err != nil {
		return errors.Wrap(err, "filesystem: failed to open upload item")
	}
	defer r.Close()

	f, err := fs.root.Create(name)
	if err != nil {
		return fromConfine(err, dest, name)
	}

	buf := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(buf)
	if _, err := io.CopyBuffer(f, r, *buf); err != nil {
		f.Close()
		return errors.Wrap(err, "filesystem: failed to write file")
	}
	return errors.WithStack(f.Close())
}
