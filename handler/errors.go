package handler

import (
	"errors"
	"net/http"

	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/AnTengye/dealflow/workflow"
	"github.com/gin-gonic/gin"
)

// statusFor maps a workflow error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, workflow.ErrInvalidArgument), errors.Is(err, workflow.ErrMismatch):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrCollaborator):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "error", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
