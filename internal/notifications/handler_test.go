package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/shared"
)

func newRouter(svc *Service) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-User-ID"); id != "" {
				r = r.WithContext(shared.ContextWithActor(r.Context(), shared.Actor{ID: id, Role: shared.RoleAccounting}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/notifications", h.MountRoutes)
	return r
}

func TestHandlerListAndMarkRead(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, Config{}, nil)
	require.NoError(t, svc.Notify(context.Background(), "clerk-1", "Purchase Order PO0000000001 was posted by acct-1", "/purchase-orders/PO0000000001"))
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/notifications?unread=true", nil)
	req.Header.Set("X-User-ID", "clerk-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var items []Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 1)

	req = httptest.NewRequest(http.MethodPost, "/notifications/"+items[0].ID.String()+"/read", nil)
	req.Header.Set("X-User-ID", "clerk-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/notifications/"+uuid.NewString()+"/read", nil)
	req.Header.Set("X-User-ID", "clerk-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/notifications/nope/read", nil)
	req.Header.Set("X-User-ID", "clerk-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerStreamRelaysPublishedNotifications(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, newRedis(t), Config{}, nil)
	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "acct-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, svc.Notify(ctx, "acct-1", "Dispatch Billing DSB0000000001 was posted by clerk-1", ""))

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	require.Equal(t, "acct-1", n.Recipient)
}
