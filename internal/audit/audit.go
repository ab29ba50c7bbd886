// Package audit is the append-only event log consumed by the request
// pipeline. Records are immutable once written; application code never
// updates or deletes them, and pruning is an explicit administrative
// operation.
package audit

import (
	"context"
	"errors"
	"time"
)

// Outcome of an access decision.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// ErrSinkClosed is returned when recording after Close.
var ErrSinkClosed = errors.New("audit: sink closed")

// Record is one audit event. Subject and TenantID are empty for
// unauthenticated actors.
type Record struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	EventType  string         `json:"event_type"`
	Subject    string         `json:"subject,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Resource   string         `json:"resource"`
	Action     string         `json:"action"`
	Outcome    Outcome        `json:"outcome"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Filter selects records for Query. Zero values match everything.
type Filter struct {
	Subject  string
	Resource string
	Outcome  Outcome
	From     time.Time
	To       time.Time
	Limit    int
}

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Query returns matching records most-recent-first.
	Query(ctx context.Context, f Filter) ([]Record, error)
	// Prune removes records older than before and returns how many were
	// dropped. Only called by explicit administrative action.
	Prune(ctx context.Context, before time.Time) (int, error)
}
