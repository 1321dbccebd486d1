package remote

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"emperror.dev/errors"

	"github.com/filebay/filebay/filesystem"
)

// Client is the front end's view of the filebay API.
type Client interface {
	// Health returns nil when the API answers its health check.
	Health(ctx context.Context) error
	// List returns the listing for a path below the root.
	List(ctx context.Context, path string) (*filesystem.Listing, error)
	// Mkdir creates a directory and any missing parents.
	Mkdir(ctx context.Context, path string) error
	// Upload streams the items to the API as a multipart form and returns the
	// paths that were written.
	Upload(ctx context.Context, path string, items []filesystem.UploadItem) ([]string, error)
	// DownloadURL returns the URL a browser should fetch to download path.
	DownloadURL(path string) string
}

func (c *client) Health(ctx context.Context) error {
	res, err := c.get(ctx, "/api/health", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return res.Error()
}

func (c *client) List(ctx context.Context, path string) (*filesystem.Listing, error) {
	res, err := c.get(ctx, "/api/list", q{"path": path})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.HasError() {
		return nil, res.Error()
	}

	var l filesystem.Listing
	if err := res.BindJSON(&l); err != nil {
		return nil, err
	}
	if l.Items == nil {
		l.Items = []filesystem.Entry{}
	}
	return &l, nil
}

func (c *client) Mkdir(ctx context.Context, path string) error {
	res, err := c.post(ctx, "/api/mkdir", map[string]string{"path": path})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return res.Error()
}

func (c *client) Upload(ctx context.Context, path string, items []filesystem.UploadItem) ([]string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// The body is written while the request is in flight so nothing is held
	// in memory beyond the copy buffer.
	go func() {
		pw.CloseWithError(writeUploadForm(mw, items))
	}()

	res, err := c.requestOnce(ctx, http.MethodPost, "/api/upload", pr, func(r *http.Request) {
		r.Header.Set("Content-Type", mw.FormDataContentType())
		r.URL.RawQuery = url.Values{"path": {path}}.Encode()
	})
	// Unblocks the writer if the request ended before the body was consumed.
	pr.Close()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer res.Body.Close()
	if res.HasError() {
		return nil, res.Error()
	}

	var body struct {
		Paths []string `json:"paths"`
	}
	if err := res.BindJSON(&body); err != nil {
		return nil, err
	}
	return body.Paths, nil
}

// writeUploadForm writes all file parts followed by one relpath field per
// file, in the same order, so the API can pair them up by position.
func writeUploadForm(mw *multipart.Writer, items []filesystem.UploadItem) error {
	for _, item := range items {
		if err := writeUploadPart(mw, item); err != nil {
			return err
		}
	}
	for _, item := range items {
		if err := mw.WriteField("relpath", item.RelativePath); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(mw.Close())
}

func writeUploadPart(mw *multipart.Writer, item filesystem.UploadItem) error {
	r, err := item.Open()
	if err != nil {
		return errors.Wrap(err, "remote: failed to open upload item")
	}
	defer r.Close()

	w, err := mw.CreateFormFile("file", item.Filename)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = io.Copy(w, r)
	return errors.WithStack(err)
}

func (c *client) DownloadURL(path string) string {
	return c.publicUrl + "/download/" + escapePath(path)
}
