// Package documents holds the header and status lifecycle shared by every
// transactional document (memos, delivery receipts, purchase orders, receiving
// reports, dispatch billings).
package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/harborline/ibs/internal/shared"
)

// Status enumerates document lifecycle values.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusPosted   Status = "Posted"
	StatusVoided   Status = "Voided"
	StatusCanceled Status = "Canceled"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusVoided || s == StatusCanceled
}

// Header carries the identity, status and audit stamps of a document.
type Header struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Company      string     `json:"company"`
	Date         time.Time  `json:"date"`
	Status       Status     `json:"status"`
	Version      int64      `json:"version"`
	Remarks      string     `json:"remarks,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedBy     string     `json:"edited_by,omitempty"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	PostedBy     string     `json:"posted_by,omitempty"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	VoidedBy     string     `json:"voided_by,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
	CanceledBy   string     `json:"canceled_by,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

var (
	// ErrAlreadyPosted indicates a second post attempt.
	ErrAlreadyPosted = shared.NewClassError(shared.ErrConflict, "documents: already posted")
	// ErrInvalidTransition indicates the requested status change is not allowed.
	ErrInvalidTransition = shared.NewClassError(shared.ErrConflict, "documents: invalid status transition")
	// ErrNotEditable indicates the document is no longer pending.
	ErrNotEditable = shared.NewClassError(shared.ErrConflict, "documents: only pending documents can be edited")
	// ErrCancelReasonRequired indicates a cancel without reason.
	ErrCancelReasonRequired = shared.NewClassError(shared.ErrInvalidInput, "documents: cancel reason required")
	// ErrConcurrentUpdate indicates the row version moved since it was read.
	ErrConcurrentUpdate = shared.NewClassError(shared.ErrConflict, "documents: document was modified by another user, reload and try again")
	// ErrNotFound indicates a missing document.
	ErrNotFound = shared.NewClassError(shared.ErrNotFound, "documents: not found")
	// ErrPendingSiblingExists indicates another unposted document already targets the same source.
	ErrPendingSiblingExists = shared.NewClassError(shared.ErrConflict, "documents: an unposted document already exists for this source")
)

// EnsureEditable returns ErrNotEditable unless the document is pending.
func (h Header) EnsureEditable() error {
	if h.Status != StatusPending {
		return fmt.Errorf("%w (status %s)", ErrNotEditable, h.Status)
	}
	return nil
}

// MarkEdited stamps an edit.
func (h *Header) MarkEdited(actor string, at time.Time) error {
	if err := h.EnsureEditable(); err != nil {
		return err
	}
	h.EditedBy = actor
	h.EditedAt = &at
	return nil
}

// Post moves a pending document to Posted.
func (h *Header) Post(actor string, at time.Time) error {
	switch h.Status {
	case StatusPending:
	case StatusPosted:
		return ErrAlreadyPosted
	default:
		return fmt.Errorf("%w: cannot post %s document", ErrInvalidTransition, strings.ToLower(string(h.Status)))
	}
	h.Status = StatusPosted
	h.PostedBy = actor
	h.PostedAt = &at
	return nil
}

// Void moves a posted document to Voided and clears the posting stamp.
func (h *Header) Void(actor string, at time.Time) error {
	if h.Status != StatusPosted {
		return fmt.Errorf("%w: cannot void %s document", ErrInvalidTransition, strings.ToLower(string(h.Status)))
	}
	h.Status = StatusVoided
	h.PostedBy = ""
	h.PostedAt = nil
	h.VoidedBy = actor
	h.VoidedAt = &at
	return nil
}

// Cancel moves a pending document to Canceled without any ledger reversal.
func (h *Header) Cancel(actor, reason string, at time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrCancelReasonRequired
	}
	if h.Status != StatusPending {
		return fmt.Errorf("%w: cannot cancel %s document", ErrInvalidTransition, strings.ToLower(string(h.Status)))
	}
	h.Status = StatusCanceled
	h.CanceledBy = actor
	h.CanceledAt = &at
	h.CancelReason = reason
	return nil
}

// FormatNumber renders a company-scoped sequential document number.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%010d", prefix, seq)
}
