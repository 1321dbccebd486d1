package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/filebay/filebay/system"
)

type client struct {
	httpClient  *http.Client
	baseUrl     string
	publicUrl   string
	maxAttempts int
}

type ClientOption func(c *client)

// New returns a new HTTP client for the filebay API located at base.
func New(base string, opts ...ClientOption) Client {
	c := &client{
		baseUrl: strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{
			Timeout: time.Minute * 5,
		},
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.publicUrl == "" {
		c.publicUrl = c.baseUrl
	}
	return c
}

// WithTimeout sets the timeout for a single request, including reading the
// response body.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHttpClient sets the underlying HTTP client instance to use when making
// requests to the API.
func WithHttpClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithMaxAttempts sets how many times an idempotent request is tried before
// giving up.
func WithMaxAttempts(n int) ClientOption {
	return func(c *client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPublicURL sets the base URL handed to browsers for downloads, when it
// differs from the one this process uses.
func WithPublicURL(u string) ClientOption {
	return func(c *client) {
		c.publicUrl = strings.TrimSuffix(u, "/")
	}
}

// requestOnce creates a http request and executes it once. Prefer request()
// over this method when possible.
func (c *client) requestOnce(ctx context.Context, method, path string, body io.Reader, opts ...func(r *http.Request)) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", fmt.Sprintf("filebay/v%s", system.Version))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	// Call all opts functions to allow modifying the request
	for _, o := range opts {
		o(req)
	}

	debugLogRequest(req)

	res, err := c.httpClient.Do(req)
	return &Response{res}, err
}

// request executes a http request and retries when a transport error, a 5XX
// or a 429 response is encountered. Only use it for requests that are safe to
// repeat.
func (c *client) request(ctx context.Context, method, path string, opts ...func(r *http.Request)) (*Response, error) {
	var res *Response
	err := backoff.Retry(func() error {
		r, err := c.requestOnce(ctx, method, path, nil, opts...)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return errors.WrapIf(err, "http: request creation failed")
		}
		res = r
		if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
			// Close the request body after returning the error to free up resources.
			defer r.Body.Close()
			return r.Error()
		}
		return nil
	}, c.backoff(ctx))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// backoff returns an exponential backoff function for use with remote API
// requests. This will allow an API call to be executed approximately 10 times
// before it is finally reported back as an error.
func (c *client) backoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond * 100
	b.MaxInterval = time.Second * 5
	b.MaxElapsedTime = time.Second * 15
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// get executes a http get request.
func (c *client) get(ctx context.Context, path string, query q) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	})
}

// post executes a http post request once.
func (c *client) post(ctx context.Context, path string, data interface{}) (*Response, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	res, err := c.requestOnce(ctx, http.MethodPost, path, bytes.NewBuffer(b))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

// Response is a custom response type that allows for commonly used error
// handling and response parsing from the API. This just embeds the normal
// HTTP response from Go and we attach a few helper functions to it.
type Response struct {
	*http.Response
}

// HasError determines if the API call encountered an error. If no request has
// been made the response will be false. This function will evaluate to true if
// the response code is anything 300 or higher.
func (r *Response) HasError() bool {
	if r.Response == nil {
		return false
	}

	return r.StatusCode >= 300 || r.StatusCode < 200
}

// Reads the body from the response and returns it, then replaces it on the response
// so that it can be read again later. This does not close the response body, so any
// functions calling this should be sure to manually defer a Body.Close() call.
func (r *Response) Read() ([]byte, error) {
	var b []byte
	if r.Response == nil {
		return nil, errors.New("http: attempting to read missing response")
	}

	if r.Response.Body != nil {
		b, _ = io.ReadAll(r.Response.Body)
	}

	r.Response.Body = io.NopCloser(bytes.NewBuffer(b))

	return b, nil
}

// BindJSON binds a given interface with the data returned in the response. This
// is a shortcut for calling Read and then manually calling json.Unmarshal on
// the raw bytes.
func (r *Response) BindJSON(v interface{}) error {
	b, err := r.Read()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "http: could not unmarshal response")
	}
	return nil
}

// Error returns the error reported by the API as a *RequestError, or nil
// when the response was successful. A body that is not the API's JSON error
// shape still produces an error carrying the status code.
func (r *Response) Error() error {
	if !r.HasError() {
		return nil
	}

	e := &RequestError{}
	_ = r.BindJSON(e)
	e.response = r.Response

	return errors.WithStack(e)
}

// escapePath is the escaped form of a relative path for use in a download URL.
func escapePath(rel string) string {
	parts := strings.Split(strings.Trim(rel, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type q map[string]string
