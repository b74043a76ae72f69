// Package handlers provides HTTP handlers for API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shipyardci/shipyard/internal/api/models"
)

// HealthHandler serves liveness, readiness, and per-project health checks.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// GetHealth returns the server's overall health status. The process has no
// external dependency it must reach to serve builds, so health is always
// "healthy" once the server has started.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetLiveness returns the liveness status.
// GET /health/live
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, models.LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now(),
	})
}

// GetReadiness returns the readiness status.
// GET /health/ready
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	c.JSON(http.StatusOK, models.ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
	})
}

// ProjectHealth serves a project-scoped health endpoint per the "health"
// operation in the per-project API surface: {status, timestamp}.
// POST/GET <project base path>/<health endpoint>
func (h *HealthHandler) ProjectHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
