package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"alertreport/models"
	"alertreport/services"
)

// ReportRunner is the part of services.Runner the API needs.
type ReportRunner interface {
	Run(ctx context.Context, opts services.RunOptions) (*services.RunResult, error)
	Preview(now time.Time) services.WindowPreview
}

// RunLedger reads past runs. db.RunStore satisfies it.
type RunLedger interface {
	List(ctx context.Context, limit int) ([]models.ReportRun, error)
	Get(ctx context.Context, id string) (*models.ReportRun, error)
	Stats(ctx context.Context) (models.RunStats, error)
}

// Handlers serves the report API. Ledger may be nil when no database is configured.
type Handlers struct {
	Runner ReportRunner
	Ledger RunLedger
	Logger *logrus.Logger
	Now    func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register mounts every route. auth guards /api; metrics may be nil.
func (h *Handlers) Register(r *gin.Engine, auth gin.HandlerFunc, metrics http.Handler) {
	r.GET("/health", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")
	api.Use(auth)
	{
		api.GET("/me", h.Me)

		api.POST("/reports/run", h.TriggerRun)
		api.GET("/reports/window", h.PreviewWindow)
		api.GET("/reports/runs", h.ListRuns)
		api.GET("/reports/runs/:id", h.GetRun)

		api.GET("/stats/overview", h.GetStatsOverview)
	}
}

// errorStatus maps run errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case services.IsRunInProgress(err):
		return http.StatusConflict
	case services.IsConfiguration(err):
		return http.StatusInternalServerError
	case services.IsTransport(err), services.IsParse(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	if kind := services.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	return body
}
