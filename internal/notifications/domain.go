// Package notifications delivers in-app messages about document transitions.
package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborline/ibs/internal/shared"
)

// TaskDeliver is the asynq task type that persists and publishes one notification.
const TaskDeliver = "notification:deliver"

// Notification is a message for one user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	Recipient string     `json:"recipient"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ErrNotFound indicates the notification does not exist for the recipient.
var ErrNotFound = fmt.Errorf("%w: notification not found", shared.ErrNotFound)

// Channel is the redis pub/sub channel a recipient listens on.
func Channel(recipient string) string {
	return "notifications:" + recipient
}
