package router

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/router/middleware"
)

// Options carries the request limits applied by the API routes.
type Options struct {
	// Maximum size of an upload request body in bytes.
	UploadLimit int64
	// Maximum download speed per request in MiB/s, zero for no limit.
	DownloadLimit int
	// Origins allowed to call the API from a browser.
	AllowedOrigins []string
}

// Configure configures the routing infrastructure for the API server.
func Configure(fs *filesystem.Filesystem, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.AttachRequestID(), middleware.Recover(), middleware.CaptureErrors(), middleware.RequestLogger())
	router.Use(middleware.SetAccessControlHeaders(opts.AllowedOrigins))
	router.Use(middleware.AttachFilesystem(fs))
	// Multipart parts beyond this are spilled to temporary files.
	router.MaxMultipartMemory = 32 << 20
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "The requested endpoint does not exist."})
	})

	router.GET("/download/*path", getDownload(opts.DownloadLimit))

	api := router.Group("/api")
	{
		api.GET("/health", getHealth)
		api.GET("/list", getList)
		api.POST("/mkdir", postMkdir)
		api.POST("/upload", middleware.LimitRequestBody(opts.UploadLimit), postUpload)
	}

	log.WithField("root", fs.Path()).Debug("configured API routes")
	return router
}
