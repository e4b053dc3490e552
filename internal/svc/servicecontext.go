package svc

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "finfeed/internal/cache"
	"finfeed/internal/config"
	"finfeed/internal/model"
	"finfeed/internal/persistence/checkpoint"
	ingestpersist "finfeed/internal/persistence/ingest"
	"finfeed/pkg/collector"
	"finfeed/pkg/ingest"
	"finfeed/pkg/journal"
	"finfeed/pkg/provider"
	_ "finfeed/pkg/provider/httpapi" // register the httpapi adapter
	_ "finfeed/pkg/provider/sim"     // register the sim adapter
)

type ServiceContext struct {
	Config config.Config

	ProviderConfig  *provider.Config
	CollectorConfig *collector.Config
	Runtimes        map[string]*provider.Runtime
	Collectors      map[string]*collector.Collector

	// Orchestrator is nil when Postgres is not configured; ingestion needs a
	// durable session and checkpoint store.
	Orchestrator *ingest.Orchestrator
	Journal      *journal.Writer

	DBConn sqlx.SqlConn
	Redis  *redis.Redis
	TTL    cachekeys.TTLSet

	Persistence *ingestpersist.Service
	Checkpoints *checkpoint.Store

	IngestSessionsModel    model.IngestSessionsModel
	IngestCheckpointsModel model.IngestCheckpointsModel
	IngestLogModel         model.IngestLogModel
	PriceBarsModel         model.PriceBarsModel
	NewsItemsModel         model.NewsItemsModel
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	providerCfg := c.Providers.Value
	if providerCfg == nil {
		providerCfg = provider.MustLoad()
	}
	collectorCfg := c.Collectors.Value
	if collectorCfg == nil {
		collectorCfg = collector.MustLoad()
	}
	svc.ProviderConfig = providerCfg
	svc.CollectorConfig = collectorCfg

	runtimes, err := providerCfg.BuildRuntimes(provider.SystemClock)
	if err != nil {
		log.Fatalf("failed to build provider runtimes: %v", err)
	}
	svc.Runtimes = runtimes

	if c.Redis.Host != "" {
		svc.Redis = redis.MustNewRedis(c.Redis)
	}

	jw, err := journal.NewWriter(c.Ingest.JournalDir)
	if err != nil {
		log.Fatalf("failed to prepare journal dir: %v", err)
	}
	svc.Journal = jw

	// Ingestion is only wired when a durable store exists: checkpoints and
	// sessions cannot live in memory across a crash.
	if c.Postgres.DSN != "" {
		db, err := sql.Open("pgx", c.Postgres.DSN)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		db.SetMaxOpenConns(c.Postgres.MaxOpen)
		db.SetMaxIdleConns(c.Postgres.MaxIdle)
		conn := sqlx.NewSqlConnFromDB(db)
		svc.DBConn = conn

		svc.IngestSessionsModel = model.NewIngestSessionsModel(conn)
		svc.IngestCheckpointsModel = model.NewIngestCheckpointsModel(conn)
		svc.IngestLogModel = model.NewIngestLogModel(conn)
		svc.PriceBarsModel = model.NewPriceBarsModel(conn)
		svc.NewsItemsModel = model.NewNewsItemsModel(conn)

		svc.Persistence = ingestpersist.NewService(ingestpersist.Config{
			SQLConn:       conn,
			BarsModel:     svc.PriceBarsModel,
			NewsModel:     svc.NewsItemsModel,
			LogModel:      svc.IngestLogModel,
			SessionsModel: svc.IngestSessionsModel,
			Redis:         svc.Redis,
			TTL:           svc.TTL,
		})
		svc.Checkpoints = checkpoint.NewStore(svc.IngestCheckpointsModel, svc.Redis, svc.TTL)

		collectors, err := collectorCfg.Build(runtimes, collector.Deps{
			Sink:        svc.Persistence,
			Checkpoints: svc.Checkpoints,
			Audit:       svc.Persistence,
			Clock:       provider.SystemClock,
		})
		if err != nil {
			log.Fatalf("failed to build collectors: %v", err)
		}
		svc.Collectors = collectors

		orch, err := ingest.New(ingest.Config{
			MaxInFlight: c.Ingest.MaxInFlight,
			UnitTimeout: time.Duration(c.Ingest.UnitTimeoutSec) * time.Second,
		}, ingest.Deps{
			Collectors:  collectors,
			Runtimes:    runtimes,
			Checkpoints: svc.Checkpoints,
			Sessions:    svc.Persistence,
			Journal:     jw,
			Clock:       provider.SystemClock,
		})
		if err != nil {
			log.Fatalf("failed to build orchestrator: %v", err)
		}
		svc.Orchestrator = orch
	}

	return svc
}
