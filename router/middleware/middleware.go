package middleware

import (
	"io"
	"net/http"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/internal/report"
	"github.com/filebay/filebay/remote"
)

// AttachRequestID attaches a unique ID to the incoming HTTP request so that any
// errors that are generated or returned to the client will include this reference
// allowing for an easier time identifying the specific request that failed for
// the user.
func AttachRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Set("logger", log.WithField("request_id", id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// AttachFilesystem attaches the shared filesystem to the request context so
// routes never need to look the root up themselves.
func AttachFilesystem(fs *filesystem.Filesystem) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("filesystem", fs)
		c.Next()
	}
}

// LimitRequestBody caps the number of bytes read from the request body.
// Reading past the limit fails with an *http.MaxBytesError which
// CaptureErrors turns into a 413.
func LimitRequestBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequestLogger logs every completed request at debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		ExtractLogger(c).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"size":   c.Writer.Size(),
		}).Debug("handled HTTP request")
	}
}

// Recover catches a panic in a handler, reports it and responds with a 500
// instead of dropping the connection.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				id := c.Writer.Header().Get("X-Request-Id")
				report.Recover(v, map[string]string{"request_id": id, "path": c.Request.URL.Path})
				log.WithField("request_id", id).WithField("panic", v).Error("recovered from panic in HTTP handler")
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": defaultErrorMessage, "request_id": id})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CaptureAndAbort aborts the request and attaches the provided error to the gin
// context, so it can be reported properly. If the error is missing a stacktrace
// at the time it is called the stack will be attached.
func CaptureAndAbort(c *gin.Context, err error) {
	c.Abort()
	c.Error(errors.WithStackDepthIf(err, 1))
}

// CaptureErrors is custom handler function allowing for errors bubbled up by
// c.Error() to be returned in a standardized format with tracking UUIDs on them
// for easier log searching.
func CaptureErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		err := c.Errors.Last()
		if err == nil || err.Err == nil {
			return
		}

		status := http.StatusInternalServerError
		if c.Writer.Status() != http.StatusOK {
			status = c.Writer.Status()
		}
		if errors.Is(err.Err, io.EOF) || errors.Is(err.Err, io.ErrUnexpectedEOF) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "The data passed in the request was not in a parsable format. Please try again.",
				"request_id": c.Writer.Header().Get("X-Request-Id"),
			})
			return
		}
		NewError(err.Err).Abort(c, status)
	}
}

// ExtractLogger pulls the logger out of the request context and returns it. By
// default this will include the request ID.
func ExtractLogger(c *gin.Context) *log.Entry {
	v, ok := c.Get("logger")
	if !ok {
		panic("middleware/middleware: cannot extract logger: not present in request context")
	}
	return v.(*log.Entry)
}

// ExtractFilesystem returns the filesystem attached to the request context.
func ExtractFilesystem(c *gin.Context) *filesystem.Filesystem {
	if v, ok := c.Get("filesystem"); ok {
		return v.(*filesystem.Filesystem)
	}
	panic("middleware/middleware: cannot extract filesystem: not present in context")
}

// SetAccessControlHeaders allows browsers on the given origins to call the
// API directly. With no origins configured no headers are sent and
// cross-origin requests are left to the browser's default policy.
func SetAccessControlHeaders(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || len(origins) == 0 {
			c.Next()
			return
		}
		// Only a single origin can be returned, so echo the requesting one back
		// when it is allowed.
		allowed := false
		for _, o := range origins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Accept, Accept-Encoding, Cache-Control, Content-Type, Content-Length, Origin, X-Real-IP")
			c.Header("Access-Control-Expose-Headers", "X-Request-Id, Content-Disposition")
			// Maximum age allowable under Chromium v76 is 2 hours, so just use that since
			// anything higher will be ignored (even if other browsers do allow higher values).
			c.Header("Access-Control-Max-Age", "7200")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AttachApiClient attaches the API client which allows front end routes to
// reach the shared directory over HTTP.
func AttachApiClient(client remote.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("api_client", client)
		c.Next()
	}
}

// ExtractApiClient returns the API client defined for the routes.
func ExtractApiClient(c *gin.Context) remote.Client {
	if v, ok := c.Get("api_client"); ok {
		return v.(remote.Client)
	}
	panic("middleware/middleware: cannot extract api client: not present in context")
}
