// Package transcript keeps a write-only audit trail of completed tutor
// exchanges. Records are never fed back into a session's history.
package transcript

import (
	"context"
	"time"
)

// Record is one redacted question/answer pair.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Mode        string    `json:"mode"`
	Question    string    `json:"question"`
	Response    string    `json:"response"`
	Reply       string    `json:"reply"`
	Review      string    `json:"review,omitempty"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink persists records and lists the most recent ones per session.
type Sink interface {
	Save(ctx context.Context, record Record) error
	// Recent returns up to limit records for sessionID, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}

const defaultRecentLimit = 20
