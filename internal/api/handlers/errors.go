package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/mirror"
	"catalogsync/internal/runlock"
	"catalogsync/internal/services/syncrun"
)

// respondError maps service errors onto HTTP statuses. Unexpected errors are logged and
// answered with the generic message.
func respondError(c *gin.Context, log *logger.Logger, err error, message string) {
	switch {
	case errors.Is(err, syncrun.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
	case errors.Is(err, mirror.ErrRowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, runlock.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "A sync is already running for this project"})
	case errors.Is(err, syncrun.ErrUnknownOperation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown sync operation"})
	case errors.Is(err, events.ErrNoBroker):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background syncs are not available"})
	default:
		log.Error("%s: %v", message, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
