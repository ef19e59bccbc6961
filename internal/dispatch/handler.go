package dispatch

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

type dispatchService interface {
	SaveTariff(ctx context.Context, t Tariff, actor shared.Actor) error
	ListTariffs(ctx context.Context, company string) ([]Tariff, error)
	CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error)
	GetTicket(ctx context.Context, company, number string) (*Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error)
	CreateBilling(ctx context.Context, in BillingInput) (*Billing, error)
	EditBilling(ctx context.Context, in BillingInput) (*Billing, error)
	PostBilling(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Billing, error)
	VoidBilling(ctx context.Context, company, number string, version int64, actor shared.Actor) (*Billing, error)
	CancelBilling(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*Billing, error)
	GetBilling(ctx context.Context, company, number string) (*Billing, error)
	ListBillings(ctx context.Context, filter BillingFilter) ([]Billing, error)
}

// Handler exposes dispatch tariffs, tickets and billings.
type Handler struct {
	logger    *slog.Logger
	service   dispatchService
	validator *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service dispatchService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers /tariffs, /tickets and /billings under the dispatch prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tariffs", func(r chi.Router) {
		r.Get("/", h.listTariffs)
		r.Put("/", h.saveTariff)
	})
	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.listTickets)
		r.Post("/", h.createTicket)
		r.Get("/{number}", h.getTicket)
	})
	r.Route("/billings", func(r chi.Router) {
		r.Get("/", h.listBillings)
		r.Post("/", h.createBilling)
		r.Route("/{number}", func(r chi.Router) {
			r.Get("/", h.getBilling)
			r.Put("/", h.editBilling)
			r.Post("/post", h.transition(documents.ActionPost))
			r.Post("/void", h.transition(documents.ActionVoid))
			r.Post("/cancel", h.transition(documents.ActionCancel))
		})
	})
}

type tariffRequest struct {
	Company      string          `json:"company" validate:"required"`
	Terminal     string          `json:"terminal" validate:"required,max=80"`
	CustomerType string          `json:"customer_type" validate:"required,max=40"`
	DispatchRate decimal.Decimal `json:"dispatch_rate"`
	BAFRate      decimal.Decimal `json:"baf_rate"`
}

type ticketRequest struct {
	Company             string          `json:"company" validate:"required"`
	CustomerID          int64           `json:"customer_id" validate:"required,gt=0"`
	Vessel              string          `json:"vessel" validate:"required,max=120"`
	Terminal            string          `json:"terminal" validate:"required,max=80"`
	DateLeft            time.Time       `json:"date_left" validate:"required"`
	DateArrived         time.Time       `json:"date_arrived" validate:"required"`
	DispatchDiscountPct decimal.Decimal `json:"dispatch_discount_pct"`
	BAFDiscountPct      decimal.Decimal `json:"baf_discount_pct"`
}

type billingRequest struct {
	Company    string  `json:"company" validate:"required"`
	Version    int64   `json:"version" validate:"gte=0"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	TicketIDs  []int64 `json:"ticket_ids" validate:"required,min=1,dive,gt=0"`
	Remarks    string  `json:"remarks" validate:"max=500"`
}

func (h *Handler) saveTariff(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req tariffRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	t := Tariff{Company: req.Company, Terminal: req.Terminal, CustomerType: req.CustomerType, DispatchRate: req.DispatchRate, BAFRate: req.BAFRate}
	if err := h.service.SaveTariff(r.Context(), t, actor); err != nil {
		h.fail(w, "save tariff", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listTariffs(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	tariffs, err := h.service.ListTariffs(r.Context(), company)
	if err != nil {
		h.fail(w, "list tariffs", err)
		return
	}
	if tariffs == nil {
		tariffs = []Tariff{}
	}
	httpx.JSON(w, http.StatusOK, tariffs)
}

func (h *Handler) createTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req ticketRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	ticket, err := h.service.CreateTicket(r.Context(), TicketInput{
		Company:             req.Company,
		CustomerID:          req.CustomerID,
		Vessel:              req.Vessel,
		Terminal:            req.Terminal,
		DateLeft:            req.DateLeft,
		DateArrived:         req.DateArrived,
		DispatchDiscountPct: req.DispatchDiscountPct,
		BAFDiscountPct:      req.BAFDiscountPct,
		Actor:               actor,
	})
	if err != nil {
		h.fail(w, "create dispatch ticket", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ticket)
}

func (h *Handler) getTicket(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	ticket, err := h.service.GetTicket(r.Context(), company, chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, "get dispatch ticket", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := TicketFilter{Company: company, Unbilled: q.Get("unbilled") == "true", Limit: httpx.QueryLimit(r, 100)}
	if raw := q.Get("customer_id"); raw != "" {
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
	tickets, err := h.service.ListTickets(r.Context(), filter)
	if err != nil {
		h.fail(w, "list dispatch tickets", err)
		return
	}
	if tickets == nil {
		tickets = []Ticket{}
	}
	httpx.JSON(w, http.StatusOK, tickets)
}

func (h *Handler) bindBilling(w http.ResponseWriter, r *http.Request) (BillingInput, bool) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return BillingInput{}, false
	}
	var req billingRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return BillingInput{}, false
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	return BillingInput{
		Company:    req.Company,
		Number:     chi.URLParam(r, "number"),
		Version:    req.Version,
		Date:       date,
		CustomerID: req.CustomerID,
		TicketIDs:  req.TicketIDs,
		Remarks:    req.Remarks,
		Actor:      actor,
	}, true
}

func (h *Handler) createBilling(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindBilling(w, r)
	if !ok {
		return
	}
	billing, err := h.service.CreateBilling(r.Context(), in)
	if err != nil {
		h.fail(w, "create dispatch billing", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, billing)
}

func (h *Handler) editBilling(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindBilling(w, r)
	if !ok {
		return
	}
	billing, err := h.service.EditBilling(r.Context(), in)
	if err != nil {
		h.fail(w, "edit dispatch billing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, billing)
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
			billing *Billing
			err     error
		)
		switch action {
		case documents.ActionPost:
			billing, err = h.service.PostBilling(r.Context(), req.Company, number, req.Version, actor)
		case documents.ActionVoid:
			billing, err = h.service.VoidBilling(r.Context(), req.Company, number, req.Version, actor)
		default:
			billing, err = h.service.CancelBilling(r.Context(), req.Company, number, req.Version, req.Reason, actor)
		}
		if err != nil {
			h.fail(w, "dispatch billing "+action, err)
			return
		}
		httpx.JSON(w, http.StatusOK, billing)
	}
}

func (h *Handler) getBilling(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	billing, err := h.service.GetBilling(r.Context(), company, chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, "get dispatch billing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, billing)
}

func (h *Handler) listBillings(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	filter := BillingFilter{Company: company, Status: documents.Status(r.URL.Query().Get("status")), Limit: httpx.QueryLimit(r, 50)}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "customer_id must be numeric")
			return
		}
		filter.CustomerID = id
	}
	billings, err := h.service.ListBillings(r.Context(), filter)
	if err != nil {
		h.fail(w, "list dispatch billings", err)
		return
	}
	if billings == nil {
		billings = []Billing{}
	}
	httpx.JSON(w, http.StatusOK, billings)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
