package memos

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/platform/httpx"
	"github.com/harborline/ibs/internal/shared"
)

type memoService interface {
	Create(ctx context.Context, in CreateInput) (*Memo, error)
	Edit(ctx context.Context, in EditInput) (*Memo, error)
	Post(ctx context.Context, company string, kind Kind, number string, version int64, actor shared.Actor) (*Memo, error)
	Void(ctx context.Context, company string, kind Kind, number string, version int64, actor shared.Actor) (*Memo, error)
	Cancel(ctx context.Context, company string, kind Kind, number string, version int64, reason string, actor shared.Actor) (*Memo, error)
	Get(ctx context.Context, company string, kind Kind, number string) (*Memo, error)
	List(ctx context.Context, filter ListFilter) ([]Memo, error)
	Preview(ctx context.Context, company string, kind Kind, number string) ([]ledger.Line, error)
}

// Handler exposes memo endpoints.
type Handler struct {
	logger    *slog.Logger
	service   memoService
	validator *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service memoService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers memo routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{kind}/{number}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.edit)
		r.Get("/journal", h.preview)
		r.Post("/post", h.transition(documents.ActionPost))
		r.Post("/void", h.transition(documents.ActionVoid))
		r.Post("/cancel", h.transition(documents.ActionCancel))
	})
}

type createRequest struct {
	Company       string          `json:"company" validate:"required"`
	Kind          string          `json:"kind" validate:"required,oneof=DEBIT CREDIT"`
	Date          string          `json:"date" validate:"required,datetime=2006-01-02"`
	SourceType    string          `json:"source_type" validate:"required,oneof=SI SV"`
	SourceID      int64           `json:"source_id" validate:"required,gt=0"`
	Description   string          `json:"description" validate:"max=500"`
	Remarks       string          `json:"remarks" validate:"max=500"`
	AdjustedPrice decimal.Decimal `json:"adjusted_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
}

type editRequest struct {
	Company       string          `json:"company" validate:"required"`
	Version       int64           `json:"version" validate:"gte=0"`
	Date          string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description   string          `json:"description" validate:"max=500"`
	Remarks       string          `json:"remarks" validate:"max=500"`
	AdjustedPrice decimal.Decimal `json:"adjusted_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
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
	memo, err := h.service.Create(r.Context(), CreateInput{
		Company:       req.Company,
		Kind:          Kind(req.Kind),
		Date:          date,
		SourceType:    SourceType(req.SourceType),
		SourceID:      req.SourceID,
		Description:   req.Description,
		Remarks:       req.Remarks,
		AdjustedPrice: req.AdjustedPrice,
		Quantity:      req.Quantity,
		Amount:        req.Amount,
		Actor:         actor,
	})
	if err != nil {
		h.logger.Warn("create memo", slog.String("company", req.Company), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, memo)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req editRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	number := chi.URLParam(r, "number")
	memo, err := h.service.Edit(r.Context(), EditInput{
		Company:       req.Company,
		Kind:          kind,
		Number:        number,
		Version:       req.Version,
		Date:          date,
		Description:   req.Description,
		Remarks:       req.Remarks,
		AdjustedPrice: req.AdjustedPrice,
		Quantity:      req.Quantity,
		Amount:        req.Amount,
		Actor:         actor,
	})
	if err != nil {
		h.logger.Warn("edit memo", slog.String("number", number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memo)
}

func (h *Handler) transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.RequireActor(w, r)
		if !ok {
			return
		}
		kind, err := ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req httpx.TransitionRequest
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.BadRequest(w, err)
			return
		}
		number := chi.URLParam(r, "number")
		var memo *Memo
		switch action {
		case documents.ActionPost:
			memo, err = h.service.Post(r.Context(), req.Company, kind, number, req.Version, actor)
		case documents.ActionVoid:
			memo, err = h.service.Void(r.Context(), req.Company, kind, number, req.Version, actor)
		default:
			memo, err = h.service.Cancel(r.Context(), req.Company, kind, number, req.Version, req.Reason, actor)
		}
		if err != nil {
			h.logger.Warn("memo transition", slog.String("action", action), slog.String("number", number), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.logger.Info("memo transition", slog.String("action", action), slog.String("number", number), slog.String("actor", actor.ID))
		httpx.JSON(w, http.StatusOK, memo)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	memo, err := h.service.Get(r.Context(), company, kind, chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memo)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, err := h.service.Preview(r.Context(), company, kind, chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	filter := ListFilter{Company: company, Status: documents.Status(r.URL.Query().Get("status")), Limit: httpx.QueryLimit(r, 50)}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Kind = kind
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
	memos, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list memos", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if memos == nil {
		memos = []Memo{}
	}
	httpx.JSON(w, http.StatusOK, memos)
}
