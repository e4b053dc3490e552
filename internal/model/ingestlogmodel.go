package model

import (
	"context"
	"database/sql"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ IngestLogModel = (*defaultIngestLogModel)(nil)

type (
	// IngestLogModel appends one audit row per provider call attempt. The
	// table is append-only; rows are never mutated.
	IngestLogModel interface {
		Insert(ctx context.Context, data *IngestLog) error
	}

	// IngestLog mirrors the ingest_log table.
	IngestLog struct {
		Id        int64          `db:"id"`
		SessionId string         `db:"session_id"`
		Provider  string         `db:"provider"`
		Endpoint  string         `db:"endpoint"`
		Ticker    string         `db:"ticker"`
		Outcome   string         `db:"outcome"`
		LatencyMs int64          `db:"latency_ms"`
		Retries   int64          `db:"retries"`
		Detail    sql.NullString `db:"detail"`
	}

	defaultIngestLogModel struct {
		conn sqlx.SqlConn
	}
)

// NewIngestLogModel returns a model for the ingest_log table.
func NewIngestLogModel(conn sqlx.SqlConn) IngestLogModel {
	return &defaultIngestLogModel{conn: conn}
}

func (m *defaultIngestLogModel) Insert(ctx context.Context, data *IngestLog) error {
	stmt := `
INSERT INTO public.ingest_log (session_id, provider, endpoint, ticker, outcome, latency_ms, retries, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW());`
	_, err := m.conn.ExecCtx(ctx, stmt,
		data.SessionId,
		data.Provider,
		data.Endpoint,
		data.Ticker,
		data.Outcome,
		data.LatencyMs,
		data.Retries,
		data.Detail,
	)
	return err
}
