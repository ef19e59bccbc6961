package documents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harborline/ibs/internal/ledger"
	"github.com/harborline/ibs/internal/shared"
)

// Event describes a committed document transition.
type Event struct {
	Entity    string        `json:"entity"`
	Module    ledger.Module `json:"module"`
	Action    string        `json:"action"`
	Company   string        `json:"company"`
	Number    string        `json:"number"`
	CreatedBy string        `json:"created_by"`
	ActorID   string        `json:"actor_id"`
	At        time.Time     `json:"at"`
}

// NewEvent captures the header state after a transition.
func NewEvent(subject Subject, action string, actor shared.Actor, at time.Time) Event {
	return Event{
		Entity:    subject.Entity,
		Module:    subject.Module,
		Action:    action,
		Company:   subject.Header.Company,
		Number:    subject.Header.Number,
		CreatedBy: subject.Header.CreatedBy,
		ActorID:   actor.ID,
		At:        at,
	}
}

// Notifier tells interested users about a document transition.
type Notifier interface {
	NotifyDocument(ctx context.Context, event Event) error
}

// Invalidator drops cached statements after the ledger changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Hooks run after a document transaction finishes.
type Hooks struct {
	Logger   *slog.Logger
	Notifier Notifier
	Cache    Invalidator
	Observer shared.PostingObserver
}

// Finish records the outcome. On success it invalidates the statement cache when
// the ledger moved and notifies users of post, void and cancel. Hook failures are
// logged only: the transaction has already committed.
func (h Hooks) Finish(ctx context.Context, event Event, err error) {
	if h.Observer != nil {
		h.Observer.ObservePosting(string(event.Module), event.Action, err)
	}
	if err != nil {
		return
	}
	if h.Cache != nil && (event.Action == ActionPost || event.Action == ActionVoid) {
		if bumpErr := h.Cache.Bump(ctx); bumpErr != nil {
			h.warn("invalidate statement cache", event, bumpErr)
		}
	}
	if h.Notifier != nil && event.Action != ActionCreate && event.Action != ActionEdit {
		if notifyErr := h.Notifier.NotifyDocument(ctx, event); notifyErr != nil {
			h.warn("notify document transition", event, notifyErr)
		}
	}
}

func (h Hooks) warn(msg string, event Event, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(msg,
		slog.String("entity", event.Entity),
		slog.String("number", event.Number),
		slog.String("action", event.Action),
		slog.Any("error", err))
}

// IsUniqueViolation reports whether err is a postgres unique constraint failure
// on the named constraint. An empty name matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
