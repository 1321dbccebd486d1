package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reports that the API is up. Nothing is checked beyond the process
// answering.
func getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
