package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alertreport/middleware"
)

// Read-only ledger overview
func (h *Handlers) GetStatsOverview(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run ledger is not configured"})
		return
	}

	stats, err := h.Ledger.Stats(c.Request.Context())
	if err != nil {
		h.Logger.WithError(err).Error("Failed to load run stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ledger": h.Ledger != nil,
	})
}

func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentPrincipal(c))
}
