package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/harborline/ibs/internal/documents"
)

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, recipient string, id uuid.UUID, at time.Time) error
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Config lists the standing recipients of document notifications.
type Config struct {
	AccountingUsers []string
	Queue           string
}

// Service queues, delivers and reads notifications.
type Service struct {
	store  Store
	queue  Enqueuer
	redis  *redis.Client
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewService constructs the service. A nil queue delivers inline.
func NewService(store Store, queue Enqueuer, client *redis.Client, cfg Config, logger *slog.Logger) *Service {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, redis: client, cfg: cfg, logger: logger, now: time.Now, newID: uuid.New}
}

// Notify queues a notification for recipient.
func (s *Service) Notify(ctx context.Context, recipient, message, link string) error {
	n := Notification{
		ID:        s.newID(),
		Recipient: recipient,
		Message:   message,
		Link:      link,
		CreatedAt: s.now().UTC(),
	}
	if s.queue == nil {
		return s.Deliver(ctx, n)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueContext(ctx, asynq.NewTask(TaskDeliver, payload), asynq.Queue(s.cfg.Queue), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("notifications: enqueue: %w", err)
	}
	return nil
}

// NotifyDocument tells the document creator and the accounting users that a
// document was posted, voided or canceled. The acting user is skipped.
func (s *Service) NotifyDocument(ctx context.Context, event documents.Event) error {
	message := fmt.Sprintf("%s %s was %s by %s", entityLabel(event.Entity), event.Number, pastTense(event.Action), event.ActorID)
	link := linkFor(event)
	var errs []error
	for _, recipient := range recipients(event, s.cfg.AccountingUsers) {
		if err := s.Notify(ctx, recipient, message, link); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recipients(event documents.Event, accounting []string) []string {
	seen := map[string]struct{}{event.ActorID: {}}
	var out []string
	for _, r := range append([]string{event.CreatedBy}, accounting...) {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

var titleCase = cases.Title(language.English)

func entityLabel(entity string) string {
	return titleCase.String(strings.ReplaceAll(entity, "_", " "))
}

func pastTense(action string) string {
	switch action {
	case documents.ActionPost:
		return "posted"
	case documents.ActionVoid:
		return "voided"
	case documents.ActionCancel:
		return "canceled"
	default:
		return action + "ed"
	}
}

func linkFor(event documents.Event) string {
	switch event.Entity {
	case "debit_memo":
		return "/memos/DEBIT/" + event.Number
	case "credit_memo":
		return "/memos/CREDIT/" + event.Number
	case "delivery_receipt":
		return "/delivery-receipts/" + event.Number
	case "purchase_order":
		return "/purchase-orders/" + event.Number
	case "receiving_report":
		return "/receiving-reports/" + event.Number
	case "dispatch_billing":
		return "/dispatch/billings/" + event.Number
	default:
		return ""
	}
}

// Deliver persists the notification and publishes it to the recipient channel.
func (s *Service) Deliver(ctx context.Context, n Notification) error {
	if err := s.store.Insert(ctx, n); err != nil {
		return err
	}
	if s.redis == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, Channel(n.Recipient), payload).Err(); err != nil {
		return fmt.Errorf("notifications: publish: %w", err)
	}
	return nil
}

// HandleDeliverTask processes TaskDeliver tasks.
func (s *Service) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("notifications: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := s.Deliver(ctx, n); err != nil {
		s.logger.Warn("deliver notification", slog.String("job", TaskDeliver), slog.String("recipient", n.Recipient), slog.Any("error", err))
		return err
	}
	return nil
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, recipient, unreadOnly, limit)
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, recipient string, id uuid.UUID) error {
	return s.store.MarkRead(ctx, recipient, id, s.now().UTC())
}

// Subscribe opens the recipient's live channel. The caller closes the PubSub.
func (s *Service) Subscribe(ctx context.Context, recipient string) (*redis.PubSub, error) {
	if s.redis == nil {
		return nil, errors.New("notifications: live delivery not configured")
	}
	ps := s.redis.Subscribe(ctx, Channel(recipient))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notifications: subscribe: %w", err)
	}
	return ps, nil
}
