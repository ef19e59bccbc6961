package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a notification. Redelivered tasks are ignored by id.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO notifications (id, recipient, message, link, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5) ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Recipient, n.Message, n.Link, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notifications: insert: %w", err)
	}
	return nil
}

// List returns the newest notifications of a recipient.
func (r *Repository) List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, recipient, message, COALESCE(link, ''), created_at, read_at
FROM notifications WHERE recipient = $1 AND (NOT $2 OR read_at IS NULL)
ORDER BY created_at DESC LIMIT $3`, recipient, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Message, &n.Link, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps the read time once.
func (r *Repository) MarkRead(ctx context.Context, recipient string, id uuid.UUID, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $3)
WHERE id = $1 AND recipient = $2`, id, recipient, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
