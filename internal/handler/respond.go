package handler

import (
	"github.com/gin-gonic/gin"

	"chat-console-push/internal/model"
)

// respondError maps a domain error to its status and machine-readable
// kind. Internal causes stay out of the response body.
func respondError(c *gin.Context, err error) {
	e := model.AsError(err)
	c.JSON(e.StatusCode, gin.H{"error": e.Message, "kind": e.Kind})
}
