package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Pinger checks a backing service
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports server health
type HealthHandler struct {
	db      Pinger
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		version: version,
		started: time.Now(),
	}
}

// Health reports ok when the database answers
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		log.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
		"version":  h.version,
		"uptime":   time.Since(h.started).Truncate(time.Second).String(),
	})
}
