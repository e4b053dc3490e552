// Package ingestpersist wires Postgres and Redis behind the ingestion
// pipeline: the idempotent record sink, the append-only call audit log and
// the session store.
package ingestpersist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "finfeed/internal/cache"
	"finfeed/internal/model"
	"finfeed/pkg/collector"
	"finfeed/pkg/ingest"
	"finfeed/pkg/provider"
)

var (
	_ collector.Sink      = (*Service)(nil)
	_ collector.AuditLog  = (*Service)(nil)
	_ ingest.SessionStore = (*Service)(nil)
)

// Service implements the persistence hooks the pipeline needs.
type Service struct {
	sqlConn       sqlx.SqlConn
	barsModel     model.PriceBarsModel
	newsModel     model.NewsItemsModel
	logModel      model.IngestLogModel
	sessionsModel model.IngestSessionsModel
	redis         *redis.Redis
	ttl           cachekeys.TTLSet
}

// Config enumerates dependencies required to persist ingestion data.
type Config struct {
	SQLConn       sqlx.SqlConn
	BarsModel     model.PriceBarsModel
	NewsModel     model.NewsItemsModel
	LogModel      model.IngestLogModel
	SessionsModel model.IngestSessionsModel
	Redis         *redis.Redis
	TTL           cachekeys.TTLSet
}

// NewService wires an ingestion persistence service. Returns nil when
// mandatory dependencies are missing.
func NewService(cfg Config) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{
		sqlConn:       cfg.SQLConn,
		barsModel:     cfg.BarsModel,
		newsModel:     cfg.NewsModel,
		logModel:      cfg.LogModel,
		sessionsModel: cfg.SessionsModel,
		redis:         cfg.Redis,
		ttl:           cfg.TTL,
	}
}

// Upsert writes one normalized record by its natural key. Re-upserting an
// identical record reports SinkUnchanged, which is what keeps resumed and
// retried units from inflating session totals.
func (s *Service) Upsert(ctx context.Context, rec provider.Record) (collector.SinkOutcome, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return collector.SinkUnchanged, fmt.Errorf("encode record fields: %w", err)
	}

	changed, err := s.upsertByKind(ctx, rec, string(fields))
	if err != nil && isUniqueViolation(err) {
		// Two units racing on the first insert of the same natural key; the
		// second pass lands on the conflict arm.
		changed, err = s.upsertByKind(ctx, rec, string(fields))
	}
	if err != nil {
		return collector.SinkUnchanged, err
	}
	if !changed {
		return collector.SinkUnchanged, nil
	}
	s.cacheLatest(ctx, rec, fields)
	return collector.SinkWritten, nil
}

func (s *Service) upsertByKind(ctx context.Context, rec provider.Record, fields string) (bool, error) {
	switch rec.Kind {
	case provider.KindBar, provider.KindIndicator:
		if s.barsModel == nil {
			return false, fmt.Errorf("sink: bars model not configured")
		}
		return s.barsModel.Upsert(ctx, &model.PriceBars{
			Ticker:   rec.Ticker,
			Source:   rec.Source,
			Interval: rec.Interval,
			TsMs:     rec.Timestamp.UTC().UnixMilli(),
			Kind:     string(rec.Kind),
			Fields:   fields,
		})
	case provider.KindNews, provider.KindFiling:
		if s.newsModel == nil {
			return false, fmt.Errorf("sink: news model not configured")
		}
		return s.newsModel.Upsert(ctx, &model.NewsItems{
			Ticker: rec.Ticker,
			Source: rec.Source,
			Kind:   string(rec.Kind),
			TsMs:   rec.Timestamp.UTC().UnixMilli(),
			Fields: fields,
		})
	default:
		return false, fmt.Errorf("sink: unknown record kind %q", rec.Kind)
	}
}

// hotRecord is the msgpack payload stored under the latest-record keys.
type hotRecord struct {
	Ticker string          `msgpack:"ticker"`
	Source string          `msgpack:"source"`
	Kind   string          `msgpack:"kind"`
	TsMs   int64           `msgpack:"ts_ms"`
	Fields json.RawMessage `msgpack:"fields"`
}

// cacheLatest refreshes the per-(source, ticker) hot key. Cache failures
// are logged and swallowed; Postgres is the source of truth.
func (s *Service) cacheLatest(ctx context.Context, rec provider.Record, fields []byte) {
	if s.redis == nil {
		return
	}
	var key string
	switch rec.Kind {
	case provider.KindBar, provider.KindIndicator:
		key = cachekeys.BarLatestKey(rec.Source, rec.Ticker)
	case provider.KindNews, provider.KindFiling:
		key = cachekeys.NewsLatestKey(rec.Source, rec.Ticker)
	default:
		return
	}
	ttl := cachekeys.BarLatestTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	payload, err := msgpack.Marshal(hotRecord{
		Ticker: rec.Ticker,
		Source: rec.Source,
		Kind:   string(rec.Kind),
		TsMs:   rec.Timestamp.UTC().UnixMilli(),
		Fields: fields,
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("ingestpersist: encode hot record key=%s err=%v", key, err)
		return
	}
	if err := s.redis.SetexCtx(ctx, key, string(payload), int(ttl.Seconds())); err != nil {
		logx.WithContext(ctx).Errorf("ingestpersist: cache hot record key=%s err=%v", key, err)
	}
}

// LatestBarRow is the read-side view of the most recent bar for one
// (source, ticker, interval).
type LatestBarRow struct {
	Ticker string          `json:"ticker"`
	Source string          `json:"source"`
	Kind   string          `json:"kind"`
	TsMs   int64           `json:"ts_ms"`
	Fields json.RawMessage `json:"fields"`
}

// LatestBar serves the most recent bar from the Redis hot key when present,
// falling back to Postgres. Returns model.ErrNotFound when nothing has been
// ingested for the tuple yet.
func (s *Service) LatestBar(ctx context.Context, source, ticker, interval string) (*LatestBarRow, error) {
	if s.redis != nil {
		key := cachekeys.BarLatestKey(source, ticker)
		if val, err := s.redis.GetCtx(ctx, key); err != nil {
			logx.WithContext(ctx).Errorf("ingestpersist: cache read key=%s err=%v", key, err)
		} else if val != "" {
			var rec hotRecord
			if err := msgpack.Unmarshal([]byte(val), &rec); err == nil {
				return &LatestBarRow{
					Ticker: rec.Ticker,
					Source: rec.Source,
					Kind:   rec.Kind,
					TsMs:   rec.TsMs,
					Fields: rec.Fields,
				}, nil
			}
			logx.WithContext(ctx).Errorf("ingestpersist: decode hot record key=%s", key)
		}
	}

	if s.barsModel == nil {
		return nil, fmt.Errorf("ingestpersist: bars model not configured")
	}
	row, err := s.barsModel.FindLatest(ctx, ticker, source, interval)
	if err != nil {
		return nil, err
	}
	return &LatestBarRow{
		Ticker: row.Ticker,
		Source: row.Source,
		Kind:   row.Kind,
		TsMs:   row.TsMs,
		Fields: json.RawMessage(row.Fields),
	}, nil
}

// Record appends one call-attempt audit row.
func (s *Service) Record(ctx context.Context, entry collector.LogEntry) error {
	if s.logModel == nil {
		return nil
	}
	detail := sql.NullString{}
	if trimmed := strings.TrimSpace(entry.Detail); trimmed != "" {
		detail = sql.NullString{String: trimmed, Valid: true}
	}
	return s.logModel.Insert(ctx, &model.IngestLog{
		SessionId: entry.SessionID,
		Provider:  entry.Provider,
		Endpoint:  entry.Endpoint,
		Ticker:    entry.Ticker,
		Outcome:   entry.Outcome,
		LatencyMs: entry.Latency.Milliseconds(),
		Retries:   int64(entry.Retries),
		Detail:    detail,
	})
}

// Create durably registers a new session before any unit runs.
func (s *Service) Create(ctx context.Context, sess *ingest.Session) error {
	if s.sessionsModel == nil {
		return fmt.Errorf("ingestpersist: sessions model not configured")
	}
	tickers, err := json.Marshal(sess.Tickers)
	if err != nil {
		return fmt.Errorf("encode session tickers: %w", err)
	}
	collectors, err := json.Marshal(sess.Collectors)
	if err != nil {
		return fmt.Errorf("encode session collectors: %w", err)
	}
	return s.sessionsModel.Insert(ctx, &model.IngestSessions{
		Id:         sess.ID,
		Status:     string(sess.Status),
		Tickers:    string(tickers),
		Collectors: string(collectors),
		StartedAt:  sess.StartedAt,
	})
}

// Load retrieves a session for resumption.
func (s *Service) Load(ctx context.Context, id string) (*ingest.Session, error) {
	if s.sessionsModel == nil {
		return nil, fmt.Errorf("ingestpersist: sessions model not configured")
	}
	row, err := s.sessionsModel.FindOne(ctx, id)
	if err != nil {
		if err == model.ErrNotFound {
			return nil, ingest.ErrSessionNotFound
		}
		return nil, err
	}
	sess := &ingest.Session{
		ID:        row.Id,
		Status:    ingest.SessionStatus(row.Status),
		StartedAt: row.StartedAt,
	}
	if row.EndedAt.Valid {
		sess.EndedAt = row.EndedAt.Time
	}
	if err := json.Unmarshal([]byte(row.Tickers), &sess.Tickers); err != nil {
		return nil, fmt.Errorf("decode session tickers: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Collectors), &sess.Collectors); err != nil {
		return nil, fmt.Errorf("decode session collectors: %w", err)
	}
	return sess, nil
}

// Finish records the terminal status and counters, then caches the summary
// for quick CLI lookups.
func (s *Service) Finish(ctx context.Context, sum *ingest.Summary) error {
	if s.sessionsModel == nil {
		return fmt.Errorf("ingestpersist: sessions model not configured")
	}
	err := s.sessionsModel.Finish(ctx, &model.IngestSessions{
		Id:          sum.SessionID,
		Status:      string(sum.Status),
		EndedAt:     sql.NullTime{Time: sum.EndedAt.UTC(), Valid: !sum.EndedAt.IsZero()},
		Units:       int64(sum.Units),
		Skipped:     int64(sum.Skipped),
		Served:      int64(sum.Served),
		Failed:      int64(sum.Failed),
		Calls:       int64(sum.Calls),
		Records:     int64(sum.Records),
		RateLimited: int64(sum.RateLimited),
	})
	if err != nil {
		return err
	}
	s.cacheSummary(ctx, sum)
	return nil
}

func (s *Service) cacheSummary(ctx context.Context, sum *ingest.Summary) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.SessionSummaryTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.SessionSummaryKey(sum.SessionID)
	payload, err := json.Marshal(sum)
	if err != nil {
		logx.WithContext(ctx).Errorf("ingestpersist: encode summary key=%s err=%v", key, err)
		return
	}
	if err := s.redis.SetexCtx(ctx, key, string(payload), int(ttl.Seconds())); err != nil {
		logx.WithContext(ctx).Errorf("ingestpersist: cache summary key=%s err=%v", key, err)
	}
}

func isUniqueViolation(err error) bool {
	pgErr, ok := err.(*pq.Error)
	return ok && pgErr.Code == "23505"
}
