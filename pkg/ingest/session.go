package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// SessionStatus is the lifecycle state of one ingestion cycle.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// ErrSessionNotFound is returned by stores when a session id is unknown.
var ErrSessionNotFound = errors.New("ingest: session not found")

// Session is one ingestion cycle. The ticker and collector sets are
// persisted with the session so a resume can rebuild the exact unit set the
// original run intended.
type Session struct {
	ID         string
	Status     SessionStatus
	Tickers    []string
	Collectors []string
	StartedAt  time.Time
	EndedAt    time.Time
}

// SessionStore persists session lifecycle transitions. Create must be
// durable before any unit is dispatched; Finish records the terminal status
// and counters.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Finish(ctx context.Context, sum *Summary) error
}

// Summary aggregates a finished (or aborted) cycle for the session store,
// the journal and the CLI.
type Summary struct {
	SessionID   string        `json:"session_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Units       int           `json:"units"`
	Skipped     int           `json:"skipped"`
	Served      int           `json:"served"`
	Failed      int           `json:"failed"`
	Calls       int           `json:"calls"`
	Records     int           `json:"records"`
	RateLimited int           `json:"rate_limited"`
}

// counters accumulates unit results while the cycle's goroutines run.
// Everything is atomic; the Summary snapshot happens after Wait.
type counters struct {
	units       atomic.Int64
	skipped     atomic.Int64
	served      atomic.Int64
	failed      atomic.Int64
	calls       atomic.Int64
	records     atomic.Int64
	rateLimited atomic.Int64
}

func (c *counters) summary(sess *Session, status SessionStatus, endedAt time.Time) *Summary {
	return &Summary{
		SessionID:   sess.ID,
		Status:      status,
		StartedAt:   sess.StartedAt,
		EndedAt:     endedAt,
		Units:       int(c.units.Load()),
		Skipped:     int(c.skipped.Load()),
		Served:      int(c.served.Load()),
		Failed:      int(c.failed.Load()),
		Calls:       int(c.calls.Load()),
		Records:     int(c.records.Load()),
		RateLimited: int(c.rateLimited.Load()),
	}
}
