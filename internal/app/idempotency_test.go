package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdempotencyStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Hour), mr
}

func TestIdempotencyStoreCheckAndInsert(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "maria", "k1"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "maria", "k1"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "jun", "k1"), "keys are scoped per actor")

	require.NoError(t, store.Delete(ctx, "maria", "k1"))
	require.NoError(t, store.CheckAndInsert(ctx, "maria", "k1"))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, store.CheckAndInsert(ctx, "maria", "k1"), "keys expire after the ttl")

	require.Error(t, store.CheckAndInsert(ctx, "maria", ""))
	require.NoError(t, NewIdempotencyStore(nil, 0).CheckAndInsert(ctx, "maria", "k1"))
}

func TestIdempotencyMiddleware(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	calls := 0
	status := http.StatusCreated
	h := ActorMiddleware(store.Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(status)
		})))

	send := func(method, key string) int {
		req := httptest.NewRequest(method, "/memos", nil)
		req.Header.Set(HeaderUserID, "maria")
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, send(http.MethodPost, "abc"))
	require.Equal(t, http.StatusConflict, send(http.MethodPost, "abc"))
	require.Equal(t, 1, calls)

	require.Equal(t, http.StatusCreated, send(http.MethodPost, ""))
	require.Equal(t, http.StatusCreated, send(http.MethodGet, "abc"), "only POST is guarded")
	require.Equal(t, 3, calls)

	status = http.StatusUnprocessableEntity
	require.Equal(t, http.StatusUnprocessableEntity, send(http.MethodPost, "def"))
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send(http.MethodPost, "def"), "failed requests release their key")
}
