package frontend

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/remote"
	"github.com/filebay/filebay/router"
)

type testStack struct {
	root     string
	api      *httptest.Server
	frontend http.Handler
}

// newTestStack runs a real API over a temporary root and points the front
// end at it.
func newTestStack(t *testing.T) *testStack {
	t.Helper()
	root := t.TempDir()
	fs, err := filesystem.New(root)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	api := httptest.NewServer(router.Configure(fs, router.Options{UploadLimit: 1 << 20}))
	t.Cleanup(api.Close)

	client := remote.New(api.URL, remote.WithHttpClient(api.Client()), remote.WithPublicURL("https://files.example.com"))
	h, err := Configure(client, Options{UploadLimit: 1 << 20})
	require.NoError(t, err)

	return &testStack{root: fs.Path(), api: api, frontend: h}
}

func (ts *testStack) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.frontend.ServeHTTP(w, req)
	return w
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndex(t *testing.T) {
	ts := newTestStack(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ts.root, "docs", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "docs", "report final.txt"), []byte("hello"), 0o644))

	t.Run("renders a listing", func(t *testing.T) {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/?path=docs", nil))
		require.Equal(t, http.StatusOK, w.Code)

		body := w.Body.String()
		assert.Contains(t, body, "sub/")
		assert.Contains(t, body, "report final.txt")
		assert.Contains(t, body, `href="/download/docs/report%20final.txt"`)
		assert.Contains(t, body, "5 B")
	})

	t.Run("renders a missing path", func(t *testing.T) {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/?path=nope", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Nothing exists at this path yet")
	})

	t.Run("relays API errors", func(t *testing.T) {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/?path=../etc", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"error"`)
	})
}

func TestMkdir(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(postForm("/mkdir", url.Values{"path": {"docs"}, "name": {"new"}}))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?path=docs", w.Header().Get("Location"))

	st, err := os.Stat(filepath.Join(ts.root, "docs", "new"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	w = ts.do(postForm("/mkdir", url.Values{"name": {"top"}}))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = ts.do(postForm("/mkdir", url.Values{"name": {"../../escape"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload(t *testing.T) {
	ts := newTestStack(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("path", "up"))
	for _, f := range []struct{ name, content string }{{"a.txt", "A"}, {"b.txt", "B"}} {
		fw, err := mw.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("relpath", "docs/a.txt"))
	require.NoError(t, mw.WriteField("relpath", ""))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := ts.do(req)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/?path=up", w.Header().Get("Location"))

	b, err := os.ReadFile(filepath.Join(ts.root, "up", "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(b))
	b, err = os.ReadFile(filepath.Join(ts.root, "up", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(b))
}

func TestDownload(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/download/docs/report%20final.txt", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.com/download/docs/report%20final.txt", w.Header().Get("Location"))
}

func TestBreadcrumbs(t *testing.T) {
	assert.Nil(t, breadcrumbs(""))
	assert.Equal(t, []crumb{{Name: "a", Path: "a"}, {Name: "b", Path: "a/b"}}, breadcrumbs("/a/b/"))
}

func TestUnreachableAPI(t *testing.T) {
	api := httptest.NewServer(http.NotFoundHandler())
	addr := api.URL
	api.Close()

	h, err := Configure(remote.New(addr, remote.WithMaxAttempts(1)), Options{UploadLimit: 1 << 20})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
