package handlers

import (
	"context"
	"net/http"

	"conversa-backend/internal/models"

	"github.com/gin-gonic/gin"
)

const apiVersion = "1.0.0"

// Pinger reports backing-store connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) bool
}

type HealthHandler struct {
	appName string
	mongo   Pinger
	redis   Pinger
}

func NewHealthHandler(appName string, mongo, redis Pinger) *HealthHandler {
	return &HealthHandler{appName: appName, mongo: mongo, redis: redis}
}

// Health handles GET /health: liveness of the two backing stores. A store
// being down degrades the report, never the response.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	resp := models.HealthResponse{
		Status:  "ok",
		Version: apiVersion,
		MongoDB: connState(h.mongo.Ping(ctx)),
		Redis:   connState(h.redis.Ping(ctx)),
	}
	c.JSON(http.StatusOK, resp)
}

// Root handles GET /: service banner.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.appName + " API"})
}

func connState(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}
