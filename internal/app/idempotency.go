package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/harborline/ibs/internal/platform/httpx"
	"github.com/harborline/ibs/internal/shared"
)

// HeaderIdempotencyKey lets clients retry a write without repeating its effect.
const HeaderIdempotencyKey = "Idempotency-Key"

const idempotencyPrefix = "ibs:idempotency:"

// ErrIdempotencyConflict indicates a key that was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore persists processed keys in Redis.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store. A nil client disables the check.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return idempotencyPrefix + scope + ":" + key
}

// CheckAndInsert claims key within scope.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, scope, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(scope, key), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a key, used when the request it guarded failed.
func (s *IdempotencyStore) Delete(ctx context.Context, scope, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, idempotencyKey(scope, key)).Err()
}

// Middleware guards POST requests carrying an Idempotency-Key header. Keys are
// scoped per actor. The key is released again when the handler fails so the
// client can retry.
func (s *IdempotencyStore) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if r.Method != http.MethodPost || key == "" || s == nil || s.client == nil {
				next.ServeHTTP(w, r)
				return
			}
			scope := "anonymous"
			if actor, ok := shared.ActorFromContext(r.Context()); ok {
				scope = actor.ID
			}
			if err := s.CheckAndInsert(r.Context(), scope, key); err != nil {
				if errors.Is(err, ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this Idempotency-Key was already used")
					return
				}
				logger.Warn("idempotency check", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusBadRequest {
				if err := s.Delete(context.WithoutCancel(r.Context()), scope, key); err != nil {
					logger.Warn("release idempotency key", slog.Any("error", err))
				}
			}
		})
	}
}
