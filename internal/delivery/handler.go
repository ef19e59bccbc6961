package delivery

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/platform/httpx"
	"github.com/harborline/ibs/internal/shared"
)

type receiptService interface {
	Create(ctx context.Context, in CreateInput) (*Receipt, error)
	Edit(ctx context.Context, in EditInput) (*Receipt, error)
	Post(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Receipt, error)
	Void(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Receipt, error)
	Cancel(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*Receipt, error)
	Get(ctx context.Context, company, number string) (*Receipt, error)
	List(ctx context.Context, filter ListFilter) ([]Receipt, error)
}

// Handler exposes delivery receipt endpoints.
type Handler struct {
	logger    *slog.Logger
	service   receiptService
	validator *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service receiptService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers delivery receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{number}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.edit)
		r.Post("/post", h.transition(documents.ActionPost))
		r.Post("/void", h.transition(documents.ActionVoid))
		r.Post("/cancel", h.transition(documents.ActionCancel))
	})
}

type createRequest struct {
	Company  string          `json:"company" validate:"required"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	OrderID  int64           `json:"order_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Freight  decimal.Decimal `json:"freight"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Remarks  string          `json:"remarks" validate:"max=500"`
}

type editRequest struct {
	Company  string          `json:"company" validate:"required"`
	Version  int64           `json:"version" validate:"gte=0"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity decimal.Decimal `json:"quantity"`
	Freight  decimal.Decimal `json:"freight"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Remarks  string          `json:"remarks" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	receipt, err := h.service.Create(r.Context(), CreateInput{
		Company:  req.Company,
		Date:     date,
		OrderID:  req.OrderID,
		Quantity: req.Quantity,
		Freight:  req.Freight,
		UnitCost: req.UnitCost,
		Remarks:  req.Remarks,
		Actor:    actor,
	})
	if err != nil {
		h.logger.Warn("create delivery receipt", slog.String("company", req.Company), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	number := chi.URLParam(r, "number")
	receipt, err := h.service.Edit(r.Context(), EditInput{
		Company:  req.Company,
		Number:   number,
		Version:  req.Version,
		Date:     date,
		Quantity: req.Quantity,
		Freight:  req.Freight,
		UnitCost: req.UnitCost,
		Remarks:  req.Remarks,
		Actor:    actor,
	})
	if err != nil {
		h.logger.Warn("edit delivery receipt", slog.String("number", number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.RequireActor(w, r)
		if !ok {
			return
		}
		var req httpx.TransitionRequest
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.BadRequest(w, err)
			return
		}
		number := chi.URLParam(r, "number")
		var (
			receipt *Receipt
			err     error
		)
		switch action {
		case documents.ActionPost:
			receipt, err = h.service.Post(r.Context(), req.Company, number, req.Version, actor)
		case documents.ActionVoid:
			receipt, err = h.service.Void(r.Context(), req.Company, number, req.Version, actor)
		default:
			receipt, err = h.service.Cancel(r.Context(), req.Company, number, req.Version, req.Reason, actor)
		}
		if err != nil {
			h.logger.Warn("delivery receipt transition", slog.String("action", action), slog.String("number", number), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, receipt)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.Get(r.Context(), company, chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	filter := ListFilter{Company: company, Status: documents.Status(r.URL.Query().Get("status")), Limit: httpx.QueryLimit(r, 50)}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "customer_id must be numeric")
			return
		}
		filter.CustomerID = id
	}
	var err error
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "from must be YYYY-MM-DD")
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "to must be YYYY-MM-DD")
		return
	}
	receipts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list delivery receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if receipts == nil {
		receipts = []Receipt{}
	}
	httpx.JSON(w, http.StatusOK, receipts)
}
