package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/harborline/ibs/internal/platform/httpx"
)

type notificationService interface {
	List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, recipient string, id uuid.UUID) error
	Subscribe(ctx context.Context, recipient string) (*redis.PubSub, error)
}

// Handler serves the current user's notifications.
type Handler struct {
	logger  *slog.Logger
	service notificationService
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service notificationService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/stream", h.stream)
	r.Post("/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), actor.ID, r.URL.Query().Get("unread") == "true", httpx.QueryLimit(r, 50))
	if err != nil {
		h.logger.Error("list notifications", slog.String("recipient", actor.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Notification", "id must be a UUID")
		return
	}
	if err := h.service.MarkRead(r.Context(), actor.ID, id); err != nil {
		h.logger.Warn("mark notification read", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream relays the recipient channel as server-sent events until the client leaves.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}
	ps, err := h.service.Subscribe(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("subscribe notifications", slog.String("recipient", actor.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Live Notifications Unavailable", "")
		return
	}
	defer ps.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messages := ps.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
