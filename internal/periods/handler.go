package periods

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/platform/httpx"
	"github.com/harborline/ibs/internal/reports"
	"github.com/harborline/ibs/internal/shared"
)

type periodService interface {
	Close(ctx context.Context, in CloseInput) (CloseResult, error)
	Reopen(ctx context.Context, in CloseInput) error
	List(ctx context.Context, company string, year int) ([]Period, error)
	Summary(ctx context.Context, company string, month time.Time) (*reports.PeriodSummary, error)
}

// Handler exposes period closing over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   periodService
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Post("/close", h.close)
	r.Post("/reopen", h.reopen)
}

type closeRequest struct {
	Company string `json:"company" validate:"required"`
	Module  string `json:"module" validate:"required,oneof=AR AP DISPATCH GL"`
	Month   string `json:"month" validate:"required,datetime=2006-01"`
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request) (CloseInput, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return CloseInput{}, false
	}
	var req closeRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return CloseInput{}, false
	}
	month, _ := time.Parse("2006-01", req.Month)
	return CloseInput{Company: req.Company, Module: ledger.Module(req.Module), Month: month, Actor: actor}, true
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bind(w, r)
	if !ok {
		return
	}
	result, err := h.service.Close(r.Context(), in)
	if err != nil {
		h.logger.Warn("close period", slog.String("company", in.Company), slog.String("module", string(in.Module)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("period closed", slog.String("company", in.Company), slog.String("module", string(in.Module)), slog.String("month", in.Month.Format("2006-01")))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bind(w, r)
	if !ok {
		return
	}
	if err := h.service.Reopen(r.Context(), in); err != nil {
		h.logger.Warn("reopen period", slog.String("company", in.Company), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "company is required")
		return
	}
	year := time.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "year is invalid")
			return
		}
		year = parsed
	}
	periods, err := h.service.List(r.Context(), company, year)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if periods == nil {
		periods = []Period{}
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if company == "" || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "company and month (YYYY-MM) are required")
		return
	}
	summary, err := h.service.Summary(r.Context(), company, month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
