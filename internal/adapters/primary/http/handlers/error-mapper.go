package handlers

import (
	"context"
	"errors"
	"net/http"

	"adapter-persistence-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Conflict errors
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Training routine reported failure
	case errors.Is(err, domain.ErrTrainingFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	// Storage unreachable
	case errors.Is(err, domain.ErrTransport):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
