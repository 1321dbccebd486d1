// Package frontend serves the HTML interface. It holds no state of its own;
// every page is rendered from, and every form is forwarded to, the API
// through a remote.Client.
package frontend

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/remote"
	"github.com/filebay/filebay/router/middleware"
	"github.com/filebay/filebay/system"
)

//go:embed templates/*.html
var templates embed.FS

// Options carries the request limits applied by the front end.
type Options struct {
	// Maximum size of an upload request body in bytes.
	UploadLimit int64
}

var funcs = template.FuncMap{
	"formatBytes": system.FormatBytes[int64],
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"downloadPath": func(rel string) string {
		return "/download/" + escapePath(rel)
	},
}

// Configure configures the routing infrastructure for the front end.
func Configure(client remote.Client, opts Options) (*gin.Engine, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.AttachRequestID(), middleware.Recover(), middleware.RequestLogger())
	router.Use(middleware.AttachApiClient(client))
	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = 32 << 20

	router.GET("/", getIndex)
	router.POST("/mkdir", postMkdir)
	router.POST("/upload", middleware.LimitRequestBody(opts.UploadLimit), postUpload)
	router.GET("/download/*path", getDownload)

	return router, nil
}

type crumb struct {
	Name string
	Path string
}

// breadcrumbs returns one crumb per segment of rel, each linking to the
// path up to and including that segment.
func breadcrumbs(rel string) []crumb {
	rel = filesystem.NormalizePath(rel)
	if rel == "" {
		return nil
	}
	parts := strings.Split(rel, "/")
	out := make([]crumb, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, crumb{Name: p, Path: strings.Join(parts[:i+1], "/")})
	}
	return out
}

func escapePath(rel string) string {
	parts := strings.Split(filesystem.NormalizePath(rel), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// indexURL is where the browser lands after a successful form submission.
func indexURL(rel string) string {
	rel = filesystem.NormalizePath(rel)
	if rel == "" {
		return "/"
	}
	return "/?" + url.Values{"path": {rel}}.Encode()
}

// relayError passes an API error through to the browser with its original
// status. Failures to reach the API at all become a 502.
func relayError(c *gin.Context, err error) {
	if re := remote.AsRequestError(err); re != nil {
		middleware.ExtractLogger(c).WithField("status", re.StatusCode()).WithField("api_request_id", re.RequestID).Debug("API rejected request")
		msg := re.Message
		if msg == "" {
			msg = http.StatusText(re.StatusCode())
		}
		c.AbortWithStatusJSON(re.StatusCode(), gin.H{"error": msg, "request_id": re.RequestID})
		return
	}
	middleware.ExtractLogger(c).WithField("error", err).Error("failed to reach API")
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
		"error":      "The file service could not be reached, please try again.",
		"request_id": c.Writer.Header().Get("X-Request-Id"),
	})
}
