package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/documents"
	"github.com/harborline/ibs/internal/ledger"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Notification
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: map[uuid.UUID]Notification{}}
}

func (m *memoryStore) Insert(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[n.ID]; !ok {
		m.items[n.ID] = n
	}
	return nil
}

func (m *memoryStore) List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.Recipient != recipient || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) MarkRead(ctx context.Context, recipient string, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.Recipient != recipient {
		return ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	m.items[id] = n
	return nil
}

type captureQueue struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var postedMemo = documents.Event{
	Entity:    "debit_memo",
	Module:    ledger.ModuleAR,
	Action:    documents.ActionPost,
	Company:   "ACME",
	Number:    "DM0000000001",
	CreatedBy: "clerk-1",
	ActorID:   "supervisor-1",
	At:        time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
}

func TestNotifyDocumentQueuesCreatorAndAccounting(t *testing.T) {
	queue := &captureQueue{}
	svc := NewService(newMemoryStore(), queue, nil, Config{AccountingUsers: []string{"acct-1", "clerk-1", " ", "supervisor-1"}}, nil)

	require.NoError(t, svc.NotifyDocument(context.Background(), postedMemo))
	require.Len(t, queue.tasks, 2)

	var got []Notification
	for _, task := range queue.tasks {
		require.Equal(t, TaskDeliver, task.Type())
		var n Notification
		require.NoError(t, json.Unmarshal(task.Payload(), &n))
		got = append(got, n)
	}
	require.Equal(t, "clerk-1", got[0].Recipient)
	require.Equal(t, "acct-1", got[1].Recipient)
	require.Equal(t, "Debit Memo DM0000000001 was posted by supervisor-1", got[0].Message)
	require.Equal(t, "/memos/DEBIT/DM0000000001", got[0].Link)
	require.NotEqual(t, uuid.Nil, got[0].ID)
}

func TestNotifyDocumentJoinsEnqueueErrors(t *testing.T) {
	queue := &captureQueue{err: errors.New("redis down")}
	svc := NewService(newMemoryStore(), queue, nil, Config{AccountingUsers: []string{"acct-1"}}, nil)
	err := svc.NotifyDocument(context.Background(), postedMemo)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis down")
}

func TestDeliverTaskPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := NewService(store, &captureQueue{}, newRedis(t), Config{}, nil)

	ps, err := svc.Subscribe(ctx, "clerk-1")
	require.NoError(t, err)
	defer ps.Close()

	n := Notification{ID: uuid.New(), Recipient: "clerk-1", Message: "Delivery Receipt DR0000000001 was voided by admin-1", CreatedAt: time.Now().UTC()}
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	require.NoError(t, svc.HandleDeliverTask(ctx, asynq.NewTask(TaskDeliver, payload)))
	require.NoError(t, svc.HandleDeliverTask(ctx, asynq.NewTask(TaskDeliver, payload)), "redelivery is harmless")

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, Channel("clerk-1"), msg.Channel)
	var published Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
	require.Equal(t, n.ID, published.ID)

	items, err := svc.List(ctx, "clerk-1", true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, svc.MarkRead(ctx, "clerk-1", n.ID))
	items, err = svc.List(ctx, "clerk-1", true, 0)
	require.NoError(t, err)
	require.Empty(t, items)

	require.ErrorIs(t, svc.MarkRead(ctx, "other", n.ID), ErrNotFound)
}

func TestDeliverTaskRejectsGarbage(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil, Config{}, nil)
	err := svc.HandleDeliverTask(context.Background(), asynq.NewTask(TaskDeliver, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotifyWithoutQueueDeliversInline(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil, Config{}, nil)
	require.NoError(t, svc.Notify(context.Background(), "acct-1", "Period AR March 2024 closed", ""))
	items, err := svc.List(context.Background(), "acct-1", false, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Period AR March 2024 closed", items[0].Message)
}
