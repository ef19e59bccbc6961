package procurement

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

type procurementService interface {
	CreatePO(ctx context.Context, in POInput) (*PurchaseOrder, error)
	EditPO(ctx context.Context, in POInput) (*PurchaseOrder, error)
	PostPO(ctx context.Context, company, number string, version int64, actor shared.Actor) (*PurchaseOrder, error)
	VoidPO(ctx context.Context, company, number string, version int64, actor shared.Actor) (*PurchaseOrder, error)
	CancelPO(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*PurchaseOrder, error)
	GetPO(ctx context.Context, company, number string) (*PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	CreateRR(ctx context.Context, in RRInput) (*ReceivingReport, error)
	EditRR(ctx context.Context, in RRInput) (*ReceivingReport, error)
	PostRR(ctx context.Context, company, number string, version int64, actor shared.Actor) (*ReceivingReport, error)
	VoidRR(ctx context.Context, company, number string, version int64, actor shared.Actor) (*ReceivingReport, error)
	CancelRR(ctx context.Context, company, number string, version int64, reason string, actor shared.Actor) (*ReceivingReport, error)
	GetRR(ctx context.Context, company, number string) (*ReceivingReport, error)
	ListRRs(ctx context.Context, filter ListFilter) ([]ReceivingReport, error)
}

// Handler exposes purchase order and receiving report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   procurementService
	validator *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service procurementService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountPurchaseOrderRoutes registers /purchase-orders.
func (h *Handler) MountPurchaseOrderRoutes(r chi.Router) {
	r.Get("/", h.listPOs)
	r.Post("/", h.createPO)
	r.Route("/{number}", func(r chi.Router) {
		r.Get("/", h.getPO)
		r.Put("/", h.editPO)
		r.Post("/post", h.transitionPO(documents.ActionPost))
		r.Post("/void", h.transitionPO(documents.ActionVoid))
		r.Post("/cancel", h.transitionPO(documents.ActionCancel))
	})
}

// MountReceivingReportRoutes registers /receiving-reports.
func (h *Handler) MountReceivingReportRoutes(r chi.Router) {
	r.Get("/", h.listRRs)
	r.Post("/", h.createRR)
	r.Route("/{number}", func(r chi.Router) {
		r.Get("/", h.getRR)
		r.Put("/", h.editRR)
		r.Post("/post", h.transitionRR(documents.ActionPost))
		r.Post("/void", h.transitionRR(documents.ActionVoid))
		r.Post("/cancel", h.transitionRR(documents.ActionCancel))
	})
}

type poRequest struct {
	Company    string          `json:"company" validate:"required"`
	Version    int64           `json:"version" validate:"gte=0"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	SupplierID int64           `json:"supplier_id" validate:"required,gt=0"`
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Terms      string          `json:"terms" validate:"max=120"`
	Remarks    string          `json:"remarks" validate:"max=500"`
}

type rrRequest struct {
	Company  string          `json:"company" validate:"required"`
	Version  int64           `json:"version" validate:"gte=0"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	POID     int64           `json:"po_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Remarks  string          `json:"remarks" validate:"max=500"`
}

func (h *Handler) bindPO(w http.ResponseWriter, r *http.Request) (POInput, bool) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return POInput{}, false
	}
	var req poRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return POInput{}, false
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	return POInput{
		Company:    req.Company,
		Number:     chi.URLParam(r, "number"),
		Version:    req.Version,
		Date:       date,
		SupplierID: req.SupplierID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Terms:      req.Terms,
		Remarks:    req.Remarks,
		Actor:      actor,
	}, true
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindPO(w, r)
	if !ok {
		return
	}
	po, err := h.service.CreatePO(r.Context(), in)
	h.respond(w, "create purchase order", http.StatusCreated, po, err)
}

func (h *Handler) editPO(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindPO(w, r)
	if !ok {
		return
	}
	po, err := h.service.EditPO(r.Context(), in)
	h.respond(w, "edit purchase order", http.StatusOK, po, err)
}

func (h *Handler) transitionPO(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, req, ok := h.bindTransition(w, r)
		if !ok {
			return
		}
		number := chi.URLParam(r, "number")
		var (
			po  *PurchaseOrder
			err error
		)
		switch action {
		case documents.ActionPost:
			po, err = h.service.PostPO(r.Context(), req.Company, number, req.Version, actor)
		case documents.ActionVoid:
			po, err = h.service.VoidPO(r.Context(), req.Company, number, req.Version, actor)
		default:
			po, err = h.service.CancelPO(r.Context(), req.Company, number, req.Version, req.Reason, actor)
		}
		h.respond(w, "purchase order "+action, http.StatusOK, po, err)
	}
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPO(r.Context(), company, chi.URLParam(r, "number"))
	h.respond(w, "get purchase order", http.StatusOK, po, err)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	pos, err := h.service.ListPOs(r.Context(), filter)
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	h.respond(w, "list purchase orders", http.StatusOK, pos, err)
}

func (h *Handler) bindRR(w http.ResponseWriter, r *http.Request) (RRInput, bool) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return RRInput{}, false
	}
	var req rrRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return RRInput{}, false
	}
	date, _ := time.Parse(httpx.DateLayout, req.Date)
	return RRInput{
		Company:  req.Company,
		Number:   chi.URLParam(r, "number"),
		Version:  req.Version,
		Date:     date,
		POID:     req.POID,
		Quantity: req.Quantity,
		Remarks:  req.Remarks,
		Actor:    actor,
	}, true
}

func (h *Handler) createRR(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindRR(w, r)
	if !ok {
		return
	}
	rr, err := h.service.CreateRR(r.Context(), in)
	h.respond(w, "create receiving report", http.StatusCreated, rr, err)
}

func (h *Handler) editRR(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindRR(w, r)
	if !ok {
		return
	}
	rr, err := h.service.EditRR(r.Context(), in)
	h.respond(w, "edit receiving report", http.StatusOK, rr, err)
}

func (h *Handler) transitionRR(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, req, ok := h.bindTransition(w, r)
		if !ok {
			return
		}
		number := chi.URLParam(r, "number")
		var (
			rr  *ReceivingReport
			err error
		)
		switch action {
		case documents.ActionPost:
			rr, err = h.service.PostRR(r.Context(), req.Company, number, req.Version, actor)
		case documents.ActionVoid:
			rr, err = h.service.VoidRR(r.Context(), req.Company, number, req.Version, actor)
		default:
			rr, err = h.service.CancelRR(r.Context(), req.Company, number, req.Version, req.Reason, actor)
		}
		h.respond(w, "receiving report "+action, http.StatusOK, rr, err)
	}
}

func (h *Handler) getRR(w http.ResponseWriter, r *http.Request) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return
	}
	rr, err := h.service.GetRR(r.Context(), company, chi.URLParam(r, "number"))
	h.respond(w, "get receiving report", http.StatusOK, rr, err)
}

func (h *Handler) listRRs(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	rrs, err := h.service.ListRRs(r.Context(), filter)
	if rrs == nil {
		rrs = []ReceivingReport{}
	}
	h.respond(w, "list receiving reports", http.StatusOK, rrs, err)
}

func (h *Handler) bindTransition(w http.ResponseWriter, r *http.Request) (shared.Actor, httpx.TransitionRequest, bool) {
	var req httpx.TransitionRequest
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return actor, req, false
	}
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.BadRequest(w, err)
		return actor, req, false
	}
	return actor, req, true
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	company, ok := httpx.RequireCompany(w, r)
	if !ok {
		return ListFilter{}, false
	}
	filter := ListFilter{Company: company, Status: documents.Status(r.URL.Query().Get("status")), Limit: httpx.QueryLimit(r, 50)}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "supplier_id must be numeric")
			return ListFilter{}, false
		}
		filter.SupplierID = id
	}
	var err error
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "from must be YYYY-MM-DD")
		return ListFilter{}, false
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "to must be YYYY-MM-DD")
		return ListFilter{}, false
	}
	return filter, true
}

func (h *Handler) respond(w http.ResponseWriter, op string, status int, body any, err error) {
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error(op, slog.Any("error", err))
		} else {
			h.logger.Warn(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, body)
}
