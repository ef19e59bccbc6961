package reports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborline/ibs/internal/platform/httpx"
)

type statementService interface {
	TrialBalance(ctx context.Context, company string, from, to time.Time) (TrialBalance, error)
	ProfitAndLoss(ctx context.Context, company string, from, to time.Time) (ProfitAndLoss, error)
	BalanceSheet(ctx context.Context, company string, asOf time.Time) (BalanceSheet, error)
	RetainedEarnings(ctx context.Context, company string, month time.Time) (RetainedEarningsStatement, error)
}

// Handler exposes the financial statements as JSON and CSV.
type Handler struct {
	logger  *slog.Logger
	service statementService
	now     func() time.Time
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service statementService) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/trial-balance.csv", h.trialBalanceCSV)
	r.Get("/pl", h.profitAndLoss)
	r.Get("/bs", h.balanceSheet)
	r.Get("/retained-earnings", h.retainedEarnings)
}

var errCompanyRequired = errors.New("company is required")

type rangeQuery struct {
	company string
	from    time.Time
	to      time.Time
}

// parseRange reads company, from and to. Missing dates default to the current month.
func (h *Handler) parseRange(r *http.Request) (rangeQuery, error) {
	q := rangeQuery{company: strings.TrimSpace(r.URL.Query().Get("company"))}
	if q.company == "" {
		return q, errCompanyRequired
	}
	today := h.now().UTC()
	q.from = monthStart(today)
	q.to = q.from.AddDate(0, 1, -1)
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if q.from, err = time.Parse("2006-01-02", raw); err != nil {
			return q, errors.New("from must be YYYY-MM-DD")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if q.to, err = time.Parse("2006-01-02", raw); err != nil {
			return q, errors.New("to must be YYYY-MM-DD")
		}
	}
	return q, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), q.company, q.from, q.to)
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) trialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), q.company, q.from, q.to)
	if err != nil {
		h.fail(w, "trial balance csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trial-balance-`+day(q.to)+`.csv"`)
	if err := WriteTrialBalanceCSV(w, tb); err != nil {
		h.logger.Error("write trial balance csv", slog.Any("error", err))
	}
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), q.company, q.from, q.to)
	if err != nil {
		h.fail(w, "profit and loss", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", errCompanyRequired.Error())
		return
	}
	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	bs, err := h.service.BalanceSheet(r.Context(), company, asOf)
	if err != nil {
		h.fail(w, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) retainedEarnings(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", errCompanyRequired.Error())
		return
	}
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "month must be YYYY-MM")
		return
	}
	st, err := h.service.RetainedEarnings(r.Context(), company, month)
	if err != nil {
		h.fail(w, "retained earnings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, ErrInvalidRange) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	h.logger.Error(what, slog.Any("error", err))
	httpx.RespondError(w, err)
}
