package router

import (
	"bufio"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"

	"github.com/filebay/filebay/router/middleware"
)

// Streams a regular file to the client as an attachment. The path in the URL
// is the same relative path reported by the listing endpoint.
func getDownload(limit int) gin.HandlerFunc {
	bytesPerSecond := float64(limit) * 1024 * 1024

	return func(c *gin.Context) {
		fs := middleware.ExtractFilesystem(c)

		f, st, err := fs.File(c.Param("path"))
		if err != nil {
			middleware.CaptureAndAbort(c, err)
			return
		}
		defer f.Close()

		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": st.Name})
		if disposition == "" {
			disposition = "attachment"
		}
		c.Header("Content-Length", strconv.FormatInt(st.Size, 10))
		c.Header("Content-Disposition", disposition)
		c.Header("Content-Type", "application/octet-stream")
		c.Status(http.StatusOK)

		var reader io.Reader = f
		if bytesPerSecond > 0 {
			// Wrap the file with a reader that is limited to the defined download limit speed.
			reader = ratelimit.Reader(f, ratelimit.NewBucketWithRate(bytesPerSecond, int64(bytesPerSecond)))
		}
		if _, err := bufio.NewReader(reader).WriteTo(c.Writer); err != nil {
			middleware.ExtractLogger(c).WithField("error", err).Debug("download ended early")
		}
	}
}
