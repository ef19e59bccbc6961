package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/harborline/ibs/internal/delivery"
	"github.com/harborline/ibs/internal/dispatch"
	"github.com/harborline/ibs/internal/memos"
	"github.com/harborline/ibs/internal/notifications"
	"github.com/harborline/ibs/internal/observability"
	"github.com/harborline/ibs/internal/periods"
	"github.com/harborline/ibs/internal/platform/httpx"
	"github.com/harborline/ibs/internal/procurement"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	MemoHandler         *memos.Handler
	DeliveryHandler     *delivery.Handler
	ProcurementHandler  *procurement.Handler
	DispatchHandler     *dispatch.Handler
	PeriodHandler       *periods.Handler
	ReportHandler       *reports.Handler
	NotificationHandler *notifications.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
	Idempotency         *IdempotencyStore
}

// NewRouter constructs the chi.Router with service defaults. Nil handlers are
// left unmounted so tests can build partial routers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Idempotency: params.Idempotency,
	}) {
		r.Use(mw)
	}
	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.MemoHandler != nil {
		r.Route("/memos", params.MemoHandler.MountRoutes)
	}
	if params.DeliveryHandler != nil {
		r.Route("/delivery-receipts", params.DeliveryHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/purchase-orders", params.ProcurementHandler.MountPurchaseOrderRoutes)
		r.Route("/receiving-reports", params.ProcurementHandler.MountReceivingReportRoutes)
	}
	if params.DispatchHandler != nil {
		r.Route("/dispatch", params.DispatchHandler.MountRoutes)
	}
	if params.PeriodHandler != nil {
		r.Route("/periods", params.PeriodHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}
	if params.NotificationHandler != nil {
		r.Route("/notifications", params.NotificationHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}
