package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harborline/ibs/internal/importer"
	"github.com/harborline/ibs/internal/notifications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationDeliver persists and publishes one notification.
	TaskNotificationDeliver = notifications.TaskDeliver
	// TaskPeriodClose closes a module month.
	TaskPeriodClose = "period:close"
	// TaskGLIntegrity re-sums debits and credits per reference for a month.
	TaskGLIntegrity = "gl:integrity"
	// TaskImportLegacy loads the legacy chart and opening balances.
	TaskImportLegacy = "import:legacy"

	monthLayout = "2006-01"
)

// PeriodClosePayload describes a queued period close.
type PeriodClosePayload struct {
	Company string `json:"company"`
	Module  string `json:"module"`
	Month   string `json:"month"`
	ActorID string `json:"actor_id"`
}

// GLIntegrityPayload selects the month to check. An empty company checks every
// company; an empty month checks the previous calendar month.
type GLIntegrityPayload struct {
	Company string `json:"company,omitempty"`
	Month   string `json:"month,omitempty"`
}

// NewPeriodCloseTask constructs a period close task.
func NewPeriodCloseTask(payload PeriodClosePayload) (*asynq.Task, error) {
	if _, err := time.Parse(monthLayout, payload.Month); err != nil {
		return nil, fmt.Errorf("jobs: period close month %q: %w", payload.Month, err)
	}
	return newTask(TaskPeriodClose, payload)
}

// NewGLIntegrityTask constructs a ledger integrity task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, payload)
}

// NewImportTask constructs a legacy import task.
func NewImportTask(req importer.Request) (*asynq.Task, error) {
	return newTask(TaskImportLegacy, req)
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}
