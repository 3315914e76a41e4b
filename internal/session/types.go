package session

import (
	"time"

	"github.com/ent0n29/tutor/internal/mode"
)

// CreateRequest is the payload for opening a tutoring session.
type CreateRequest struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
	Option string `json:"option"`
}

// Info is a point-in-time view of a registered session.
type Info struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	Mode           mode.Mode `json:"mode"`
	HistoryTurns   int       `json:"history_turns"`
	SubmitCount    int       `json:"submit_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	Info
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}
