package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filebay/filebay/filesystem"
)

func createTestClient(t *testing.T, h http.HandlerFunc) *client {
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return New(s.URL, WithHttpClient(s.Client()), WithMaxAttempts(1)).(*client)
}

func TestRequest(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "filebay/v")
		assert.Equal(t, "/test", r.URL.Path)

		rw.WriteHeader(http.StatusOK)
	})
	r, err := c.requestOnce(context.Background(), http.MethodGet, "/test", nil)
	assert.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRequestRetry(t *testing.T) {
	// Test if the client attempts failed requests
	i := 0
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		if i < 1 {
			rw.WriteHeader(http.StatusInternalServerError)
		} else {
			rw.WriteHeader(http.StatusOK)
		}
		i++
	})
	c.maxAttempts = 2
	r, err := c.request(context.Background(), http.MethodGet, "")
	assert.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, 2, i)

	// Test whether the client returns the last error after the retry limit is
	// reached.
	i = 0
	c = createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
		i++
	})
	c.maxAttempts = 3
	r, err = c.request(context.Background(), http.MethodGet, "")
	assert.Error(t, err)
	assert.Nil(t, r)

	v := AsRequestError(err)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusInternalServerError, v.StatusCode())
	assert.Equal(t, 3, i)
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	i := 0
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadRequest)
		i++
	})
	c.maxAttempts = 3
	r, err := c.request(context.Background(), http.MethodGet, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Equal(t, 1, i)
}

func TestList(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/list", r.URL.Path)
		assert.Equal(t, "docs/sub", r.URL.Query().Get("path"))
		_, _ = rw.Write([]byte(`{"path":"docs/sub","parent":"docs","exists":true,"items":[{"name":"a.txt","is_dir":false,"size":3,"mtime":1700000000.25,"path":"docs/sub/a.txt","mime":"text/plain"}]}`))
	})

	l, err := c.List(context.Background(), "docs/sub")
	require.NoError(t, err)
	assert.Equal(t, "docs", l.Parent)
	assert.True(t, l.Exists)
	require.Len(t, l.Items, 1)
	assert.Equal(t, "docs/sub/a.txt", l.Items[0].Path)
	assert.Equal(t, int64(1700000000), l.Items[0].ModTime.Unix())
}

func TestList_Error(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"error":"outside","request_id":"abc"}`))
	})

	_, err := c.List(context.Background(), "../x")
	re := AsRequestError(err)
	require.NotNil(t, re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode())
	assert.Equal(t, "outside", re.Message)
	assert.Equal(t, "abc", re.RequestID)
}

func TestMkdir(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a/b", body["path"])
		_, _ = rw.Write([]byte(`{"ok":true}`))
	})

	assert.NoError(t, c.Mkdir(context.Background(), "a/b"))
}

func TestUpload(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "up", r.URL.Query().Get("path"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File["file"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].Filename)
		assert.Equal(t, []string{"docs/a.txt", ""}, r.MultipartForm.Value["relpath"])

		f, err := files[1].Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "B", string(b))

		_, _ = rw.Write([]byte(`{"ok":true,"paths":["up/docs/a.txt","up/b.txt"]}`))
	})

	paths, err := c.Upload(context.Background(), "up", []filesystem.UploadItem{
		filesystem.NewUploadItem("docs/a.txt", "a.txt", bytes.NewBufferString("A")),
		filesystem.NewUploadItem("", "b.txt", bytes.NewBufferString("B")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"up/docs/a.txt", "up/b.txt"}, paths)
}

func TestDownloadURL(t *testing.T) {
	c := New("http://backend:5000/", WithPublicURL("https://files.example.com/"))
	assert.Equal(t, "https://files.example.com/download/docs/report%20final.txt", c.DownloadURL("/docs/report final.txt"))

	c = New("http://backend:5000")
	assert.Equal(t, "http://backend:5000/download/a.txt", c.DownloadURL("a.txt"))
}
