package frontend

import (
	"net/http"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/router/middleware"
)

type indexPage struct {
	Listing *filesystem.Listing
	Crumbs  []crumb
}

// Renders the listing for the requested path.
func getIndex(c *gin.Context) {
	client := middleware.ExtractApiClient(c)

	l, err := client.List(c.Request.Context(), c.Query("path"))
	if err != nil {
		relayError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", indexPage{Listing: l, Crumbs: breadcrumbs(l.Path)})
}

// Creates the folder "name" inside "path" and returns to the listing.
func postMkdir(c *gin.Context) {
	client := middleware.ExtractApiClient(c)

	path := filesystem.NormalizePath(c.PostForm("path"))
	target := c.PostForm("name")
	if path != "" {
		target = path + "/" + target
	}
	if err := client.Mkdir(c.Request.Context(), target); err != nil {
		relayError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, indexURL(path))
}

// Forwards the uploaded files, with their relpath fields, to the API and
// returns to the listing.
func postUpload(c *gin.Context) {
	client := middleware.ExtractApiClient(c)

	form, err := c.MultipartForm()
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		middleware.ExtractLogger(c).WithField("error", err).Debug("failed to parse upload form")
		c.AbortWithStatusJSON(status, gin.H{
			"error":      "The request is not a valid multipart form or is too large.",
			"request_id": c.Writer.Header().Get("X-Request-Id"),
		})
		return
	}
	defer form.RemoveAll()

	var path string
	if v := form.Value["path"]; len(v) > 0 {
		path = filesystem.NormalizePath(v[0])
	}

	items := filesystem.ItemsFromForm(form)

	if _, err := client.Upload(c.Request.Context(), path, items); err != nil {
		relayError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, indexURL(path))
}

// Sends the browser to the API so downloads keep a stable URL and do not
// pass through this process.
func getDownload(c *gin.Context) {
	client := middleware.ExtractApiClient(c)
	c.Redirect(http.StatusFound, client.DownloadURL(c.Param("path")))
}
