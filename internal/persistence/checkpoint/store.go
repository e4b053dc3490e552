// Package checkpoint backs the pipeline's unit checkpoints with Postgres as
// the source of truth and Redis as a read-through marker cache.
package checkpoint

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "finfeed/internal/cache"
	"finfeed/internal/model"
	"finfeed/pkg/collector"
)

var _ collector.CheckpointStore = (*Store)(nil)

const doneMarker = "1"

// Store persists done-markers for (session, ticker, provider, endpoint)
// units. Markers are immutable once written.
type Store struct {
	model model.IngestCheckpointsModel
	redis *redis.Redis
	ttl   cachekeys.TTLSet
}

// NewStore wires a checkpoint store. Redis is optional; when absent every
// lookup falls through to Postgres.
func NewStore(m model.IngestCheckpointsModel, rds *redis.Redis, ttl cachekeys.TTLSet) *Store {
	return &Store{model: m, redis: rds, ttl: ttl}
}

// IsDone reports whether the unit was checkpointed. A cached marker short
// circuits the database; cache misses and cache errors hit Postgres.
func (s *Store) IsDone(ctx context.Context, sessionID, ticker, providerName, endpoint string) (bool, error) {
	key := cachekeys.CheckpointKey(sessionID, ticker, providerName, endpoint)
	if s.redis != nil {
		val, err := s.redis.GetCtx(ctx, key)
		if err != nil {
			logx.WithContext(ctx).Errorf("checkpoint: cache read key=%s err=%v", key, err)
		} else if val == doneMarker {
			return true, nil
		}
	}

	done, err := s.model.Exists(ctx, sessionID, ticker, providerName, endpoint)
	if err != nil {
		return false, err
	}
	if done {
		s.cacheMarker(ctx, key)
	}
	return done, nil
}

// MarkDone durably records the marker, then refreshes the cache. The
// Postgres insert must succeed before anything touches Redis.
func (s *Store) MarkDone(ctx context.Context, sessionID, ticker, providerName, endpoint string) error {
	if err := s.model.MarkDone(ctx, sessionID, ticker, providerName, endpoint); err != nil {
		return err
	}
	s.cacheMarker(ctx, cachekeys.CheckpointKey(sessionID, ticker, providerName, endpoint))
	return nil
}

func (s *Store) cacheMarker(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.CheckpointTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	if err := s.redis.SetexCtx(ctx, key, doneMarker, int(ttl/time.Second)); err != nil {
		logx.WithContext(ctx).Errorf("checkpoint: cache write key=%s err=%v", key, err)
	}
}
