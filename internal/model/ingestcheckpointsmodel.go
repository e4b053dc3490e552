package model

import (
	"context"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ IngestCheckpointsModel = (*defaultIngestCheckpointsModel)(nil)

type (
	// IngestCheckpointsModel marks (session, ticker, provider, endpoint)
	// units whose payload reached the sink. Rows are written once and never
	// updated or deleted; re-marking a done unit is a no-op.
	IngestCheckpointsModel interface {
		MarkDone(ctx context.Context, sessionID, ticker, provider, endpoint string) error
		Exists(ctx context.Context, sessionID, ticker, provider, endpoint string) (bool, error)
	}

	defaultIngestCheckpointsModel struct {
		conn sqlx.SqlConn
	}
)

// NewIngestCheckpointsModel returns a model for the ingest_checkpoints table.
func NewIngestCheckpointsModel(conn sqlx.SqlConn) IngestCheckpointsModel {
	return &defaultIngestCheckpointsModel{conn: conn}
}

func (m *defaultIngestCheckpointsModel) MarkDone(ctx context.Context, sessionID, ticker, provider, endpoint string) error {
	stmt := `
INSERT INTO public.ingest_checkpoints (session_id, ticker, provider, endpoint, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (session_id, ticker, provider, endpoint) DO NOTHING;`
	_, err := m.conn.ExecCtx(ctx, stmt, sessionID, ticker, provider, endpoint)
	return err
}

func (m *defaultIngestCheckpointsModel) Exists(ctx context.Context, sessionID, ticker, provider, endpoint string) (bool, error) {
	stmt := `
SELECT EXISTS (
    SELECT 1 FROM public.ingest_checkpoints
    WHERE session_id = $1 AND ticker = $2 AND provider = $3 AND endpoint = $4
);`
	var exists bool
	if err := m.conn.QueryRowCtx(ctx, &exists, stmt, sessionID, ticker, provider, endpoint); err != nil {
		return false, err
	}
	return exists, nil
}
