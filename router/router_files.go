package router

import (
	"net/http"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"

	"github.com/filebay/filebay/filesystem"
	"github.com/filebay/filebay/router/middleware"
)

// Returns the contents of a directory, or the single entry of a file.
func getList(c *gin.Context) {
	fs := middleware.ExtractFilesystem(c)

	l, err := fs.List(c.Query("path"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Creates a directory and any missing parents.
func postMkdir(c *gin.Context) {
	fs := middleware.ExtractFilesystem(c)

	var data struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&data); err != nil {
		re := middleware.NewError(err)
		re.SetMessage("The data passed in the request was not in a parsable format. Please try again.")
		re.Abort(c, http.StatusBadRequest)
		return
	}

	if err := fs.CreateDirectory(data.Path); err != nil {
		if filesystem.IsErrorCode(err, filesystem.ErrCodeNotDirectory) {
			re := middleware.NewError(err)
			re.SetStatus(http.StatusConflict)
			re.SetMessage("Cannot create the directory: a file already exists at that path.")
			re.Abort(c, http.StatusConflict)
			return
		}
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Writes every "file" part of a multipart form below the target directory.
// Each optional "relpath" field belongs to the "file" part at the same
// position and carries the path the browser reported for it.
func postUpload(c *gin.Context) {
	fs := middleware.ExtractFilesystem(c)

	form, err := c.MultipartForm()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			middleware.CaptureAndAbort(c, err)
			return
		}
		re := middleware.NewError(err)
		re.SetMessage("The request is not a valid multipart form.")
		re.Abort(c, http.StatusBadRequest)
		return
	}
	defer form.RemoveAll()

	base := c.Query("path")
	if v := form.Value["path"]; base == "" && len(v) > 0 {
		base = v[0]
	}

	items := filesystem.ItemsFromForm(form)

	saved, err := fs.Upload(base, items)
	if err != nil {
		middleware.ExtractLogger(c).WithField("written", len(saved)).WithField("total", len(items)).Warn("upload stopped after a failure")
		// Files written before the failure stay on disk, tell the client which.
		re := middleware.NewError(err)
		re.SetDetail("paths", saved)
		re.Abort(c, http.StatusInternalServerError)
		return
	}
	middleware.ExtractLogger(c).WithField("path", filesystem.NormalizePath(base)).WithField("files", len(saved)).Info("stored uploaded files")
	c.JSON(http.StatusOK, gin.H{"ok": true, "paths": saved})
}
