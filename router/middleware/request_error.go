package middleware

import (
	"context"
	"net/http"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/internal/report"
)

const defaultErrorMessage = "An unexpected error was encountered while processing this request"

// RequestError is a custom error type returned when something goes wrong with
// any of the HTTP endpoints.
type RequestError struct {
	err     error
	status  int
	msg     string
	details gin.H
}

// NewError returns a new RequestError for the provided error.
func NewError(err error) *RequestError {
	return &RequestError{
		// Attach a stacktrace to the error if it is missing at this point and mark it
		// as originating from the location where NewError was called, rather than this
		// specific point in the code.
		err: errors.WithStackDepthIf(err, 1),
	}
}

// SetMessage allows for a custom error message to be set on an existing
// RequestError instance.
func (re *RequestError) SetMessage(m string) {
	re.msg = m
}

// SetStatus sets the HTTP status code for the error response. By default this
// is a HTTP-500 error.
func (re *RequestError) SetStatus(s int) {
	re.status = s
}

// SetDetail adds an extra key to the JSON error body. The "error" and
// "request_id" keys cannot be replaced.
func (re *RequestError) SetDetail(key string, v interface{}) {
	if re.details == nil {
		re.details = gin.H{}
	}
	re.details[key] = v
}

// Abort aborts the given HTTP request and logs the event. The status passed
// in is used unless the error maps onto a more specific one. The response
// includes the unique request ID if it is present.
func (re *RequestError) Abort(c *gin.Context, status int) {
	reqId := c.Writer.Header().Get("X-Request-Id")
	event := log.WithField("request_id", reqId).WithField("url", c.Request.URL.String())

	if s, msg := re.classify(); s != 0 {
		status = s
		if re.msg == "" {
			re.msg = msg
		}
	}
	if re.status != 0 {
		status = re.status
	}

	// Headers are already out if the failure happened while streaming a body,
	// all that can be done then is to log and cut the response short.
	if status >= 500 || c.Writer.Written() {
		event.WithField("status", status).WithField("error", re.err).Error("error while handling HTTP request")
		report.CaptureError(re.err, map[string]string{"request_id": reqId, "path": c.Request.URL.Path})
	} else {
		event.WithField("status", status).WithField("error", re.err).Debug("error handling HTTP request (not a server error)")
	}
	if c.Writer.Written() {
		c.Abort()
		return
	}
	if re.msg == "" {
		re.msg = defaultErrorMessage
	}
	// Now abort the request with the error message and include the unique request
	// ID that was present to make things super easy on people who don't know how
	// or cannot view the response headers (where X-Request-Id would be present).
	body := gin.H{}
	for k, v := range re.details {
		body[k] = v
	}
	body["error"] = re.msg
	body["request_id"] = reqId
	c.AbortWithStatusJSON(status, body)
}

// Cause returns the underlying error.
func (re *RequestError) Cause() error {
	return re.err
}

// Error returns the underlying error message for this request.
func (re *RequestError) Error() string {
	return re.err.Error()
}

// classify maps known errors onto an HTTP status and a message safe to show
// to the client. A zero status means the error is not recognised and should
// be treated as a server error.
func (re *RequestError) classify() (int, string) {
	err := re.Cause()
	if err == nil {
		return 0, ""
	}
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "The request body exceeds the maximum allowed size."
	case filesystem.IsErrorCode(err, filesystem.ErrCodePathResolution):
		return http.StatusBadRequest, "The requested path is outside of the shared directory."
	case filesystem.IsErrorCode(err, filesystem.ErrCodeNotFound):
		return http.StatusNotFound, "The requested resource was not found on the system."
	case filesystem.IsErrorCode(err, filesystem.ErrCodeIsDirectory):
		return http.StatusBadRequest, "Cannot perform that action: path is a directory."
	case filesystem.IsErrorCode(err, filesystem.ErrCodeNotDirectory):
		return http.StatusBadRequest, "Cannot perform that action: path is not a directory."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The server could not process this request in time, please try again."
	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest, "Request aborted by client."
	case strings.HasSuffix(err.Error(), "file name too long"):
		return http.StatusBadRequest, "Cannot perform that action: file name is too long."
	}
	return 0, ""
}
