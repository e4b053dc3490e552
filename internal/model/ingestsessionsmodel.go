package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ IngestSessionsModel = (*defaultIngestSessionsModel)(nil)

type (
	// IngestSessionsModel persists ingestion cycle lifecycle rows.
	IngestSessionsModel interface {
		Insert(ctx context.Context, data *IngestSessions) error
		FindOne(ctx context.Context, id string) (*IngestSessions, error)
		Finish(ctx context.Context, data *IngestSessions) error
	}

	// IngestSessions mirrors the ingest_sessions table. Tickers and
	// Collectors are JSON arrays so a resume can rebuild the unit set.
	IngestSessions struct {
		Id          string       `db:"id"`
		Status      string       `db:"status"`
		Tickers     string       `db:"tickers"`
		Collectors  string       `db:"collectors"`
		StartedAt   time.Time    `db:"started_at"`
		EndedAt     sql.NullTime `db:"ended_at"`
		Units       int64        `db:"units"`
		Skipped     int64        `db:"skipped"`
		Served      int64        `db:"served"`
		Failed      int64        `db:"failed"`
		Calls       int64        `db:"calls"`
		Records     int64        `db:"records"`
		RateLimited int64        `db:"rate_limited"`
	}

	defaultIngestSessionsModel struct {
		conn sqlx.SqlConn
	}
)

// NewIngestSessionsModel returns a model for the ingest_sessions table.
func NewIngestSessionsModel(conn sqlx.SqlConn) IngestSessionsModel {
	return &defaultIngestSessionsModel{conn: conn}
}

func (m *defaultIngestSessionsModel) Insert(ctx context.Context, data *IngestSessions) error {
	stmt := `
INSERT INTO public.ingest_sessions (id, status, tickers, collectors, started_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW());`
	_, err := m.conn.ExecCtx(ctx, stmt, data.Id, data.Status, data.Tickers, data.Collectors, data.StartedAt.UTC())
	return err
}

func (m *defaultIngestSessionsModel) FindOne(ctx context.Context, id string) (*IngestSessions, error) {
	stmt := `
SELECT id, status, tickers, collectors, started_at, ended_at, units, skipped, served, failed, calls, records, rate_limited
FROM public.ingest_sessions WHERE id = $1 LIMIT 1;`
	var row IngestSessions
	err := m.conn.QueryRowCtx(ctx, &row, stmt, id)
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, sqlx.ErrNotFound) || errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// Finish records the terminal status and the cycle counters.
func (m *defaultIngestSessionsModel) Finish(ctx context.Context, data *IngestSessions) error {
	stmt := `
UPDATE public.ingest_sessions
SET status = $2,
    ended_at = $3,
    units = $4,
    skipped = $5,
    served = $6,
    failed = $7,
    calls = $8,
    records = $9,
    rate_limited = $10,
    updated_at = NOW()
WHERE id = $1;`
	_, err := m.conn.ExecCtx(ctx, stmt,
		data.Id,
		data.Status,
		data.EndedAt,
		data.Units,
		data.Skipped,
		data.Served,
		data.Failed,
		data.Calls,
		data.Records,
		data.RateLimited,
	)
	return err
}
