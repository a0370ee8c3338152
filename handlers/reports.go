package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"alertreport/db"
	"alertreport/middleware"
	"alertreport/services"
)

// TriggerRun runs the report now. ?dry_run=true builds it without sending and
// ?now=<RFC3339> pretends the run happens at another time.
func (h *Handlers) TriggerRun(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	var now time.Time
	if raw := c.Query("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "now must be an RFC3339 timestamp"})
			return
		}
		now = parsed
	}

	principal := middleware.CurrentPrincipal(c)
	result, err := h.Runner.Run(c.Request.Context(), services.RunOptions{
		DryRun:      dryRun,
		Now:         now,
		TriggeredBy: "api:" + principal.String(),
	})
	if err != nil {
		body := errorBody(err)
		if result != nil {
			body["run"] = result.Run
		}
		c.JSON(errorStatus(err), body)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handlers) PreviewWindow(c *gin.Context) {
	now := h.now()
	if raw := c.Query("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "now must be an RFC3339 timestamp"})
			return
		}
		now = parsed
	}
	c.JSON(http.StatusOK, h.Runner.Preview(now))
}

func (h *Handlers) ListRuns(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run ledger is not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	runs, err := h.Ledger.List(c.Request.Context(), limit)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to list report runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handlers) GetRun(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run ledger is not configured"})
		return
	}

	run, err := h.Ledger.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("Failed to fetch report run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}
	c.JSON(http.StatusOK, run)
}
