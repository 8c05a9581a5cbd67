package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jedmorris/CRM-manager/internal/metrics"
)

// HealthHandler serves liveness, readiness, and the counter snapshot.
type HealthHandler struct {
	db        *gorm.DB
	startedAt time.Time
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db, startedAt: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Ready checks the database connection.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Metrics returns the in-process counters.
func (h *HealthHandler) Metrics(c *gin.Context) {
	dispatchTotal, dispatchBy := metrics.DispatchSnapshot()
	dropTotal, dropBy := metrics.RateLimitSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"dispatch": gin.H{
			"total":      dispatchTotal,
			"by_outcome": dispatchBy,
		},
		"rate_limit_drops": gin.H{
			"total":     dropTotal,
			"by_prefix": dropBy,
		},
	})
}
