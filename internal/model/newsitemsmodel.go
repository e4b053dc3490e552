package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ NewsItemsModel = (*defaultNewsItemsModel)(nil)

type (
	// NewsItemsModel persists event-shaped records (news, filings).
	NewsItemsModel interface {
		// Upsert writes the row and reports whether anything changed.
		Upsert(ctx context.Context, data *NewsItems) (bool, error)
		FindOne(ctx context.Context, ticker, source, kind string, tsMs int64) (*NewsItems, error)
	}

	// NewsItems mirrors the news_items table.
	NewsItems struct {
		Ticker string `db:"ticker"`
		Source string `db:"source"`
		Kind   string `db:"kind"`
		TsMs   int64  `db:"ts_ms"`
		Fields string `db:"fields"`
	}

	defaultNewsItemsModel struct {
		conn sqlx.SqlConn
	}
)

// NewNewsItemsModel returns a model for the news_items table.
func NewNewsItemsModel(conn sqlx.SqlConn) NewsItemsModel {
	return &defaultNewsItemsModel{conn: conn}
}

func (m *defaultNewsItemsModel) Upsert(ctx context.Context, data *NewsItems) (bool, error) {
	stmt := `
INSERT INTO public.news_items (ticker, source, kind, ts_ms, fields, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, NOW(), NOW())
ON CONFLICT (ticker, source, kind, ts_ms) DO UPDATE SET
    fields = EXCLUDED.fields,
    updated_at = NOW()
WHERE news_items.fields IS DISTINCT FROM EXCLUDED.fields;`
	res, err := m.conn.ExecCtx(ctx, stmt,
		data.Ticker,
		data.Source,
		data.Kind,
		data.TsMs,
		data.Fields,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (m *defaultNewsItemsModel) FindOne(ctx context.Context, ticker, source, kind string, tsMs int64) (*NewsItems, error) {
	stmt := `
SELECT ticker, source, kind, ts_ms, fields
FROM public.news_items
WHERE ticker = $1 AND source = $2 AND kind = $3 AND ts_ms = $4
LIMIT 1;`
	var row NewsItems
	err := m.conn.QueryRowCtx(ctx, &row, stmt, ticker, source, kind, tsMs)
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, sqlx.ErrNotFound) || errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}
