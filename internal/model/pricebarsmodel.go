package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PriceBarsModel = (*defaultPriceBarsModel)(nil)

type (
	// PriceBarsModel persists bar-shaped records (prices, indicators) keyed
	// by their natural tuple.
	PriceBarsModel interface {
		// Upsert writes the row and reports whether anything changed. A
		// re-upsert with identical fields leaves the row untouched and
		// returns false.
		Upsert(ctx context.Context, data *PriceBars) (bool, error)
		FindOne(ctx context.Context, ticker, source, interval string, tsMs int64) (*PriceBars, error)
		FindLatest(ctx context.Context, ticker, source, interval string) (*PriceBars, error)
	}

	// PriceBars mirrors the price_bars table. Fields carries the normalized
	// payload as JSON.
	PriceBars struct {
		Ticker   string `db:"ticker"`
		Source   string `db:"source"`
		Interval string `db:"interval"`
		TsMs     int64  `db:"ts_ms"`
		Kind     string `db:"kind"`
		Fields   string `db:"fields"`
	}

	defaultPriceBarsModel struct {
		conn sqlx.SqlConn
	}
)

// NewPriceBarsModel returns a model for the price_bars table.
func NewPriceBarsModel(conn sqlx.SqlConn) PriceBarsModel {
	return &defaultPriceBarsModel{conn: conn}
}

func (m *defaultPriceBarsModel) Upsert(ctx context.Context, data *PriceBars) (bool, error) {
	// The DO UPDATE is guarded so an identical payload touches no row,
	// which keeps RowsAffected an exact changed-or-not signal.
	stmt := `
INSERT INTO public.price_bars (ticker, source, interval, ts_ms, kind, fields, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW(), NOW())
ON CONFLICT (ticker, source, interval, ts_ms) DO UPDATE SET
    kind = EXCLUDED.kind,
    fields = EXCLUDED.fields,
    updated_at = NOW()
WHERE price_bars.fields IS DISTINCT FROM EXCLUDED.fields;`
	res, err := m.conn.ExecCtx(ctx, stmt,
		data.Ticker,
		data.Source,
		data.Interval,
		data.TsMs,
		data.Kind,
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

func (m *defaultPriceBarsModel) FindLatest(ctx context.Context, ticker, source, interval string) (*PriceBars, error) {
	stmt := `
SELECT ticker, source, interval, ts_ms, kind, fields
FROM public.price_bars
WHERE ticker = $1 AND source = $2 AND interval = $3
ORDER BY ts_ms DESC
LIMIT 1;`
	var row PriceBars
	err := m.conn.QueryRowCtx(ctx, &row, stmt, ticker, source, interval)
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, sqlx.ErrNotFound) || errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *defaultPriceBarsModel) FindOne(ctx context.Context, ticker, source, interval string, tsMs int64) (*PriceBars, error) {
	stmt := `
SELECT ticker, source, interval, ts_ms, kind, fields
FROM public.price_bars
WHERE ticker = $1 AND source = $2 AND interval = $3 AND ts_ms = $4
LIMIT 1;`
	var row PriceBars
	err := m.conn.QueryRowCtx(ctx, &row, stmt, ticker, source, interval, tsMs)
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, sqlx.ErrNotFound) || errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}
