package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lender-match-workers/internal/api"
	"lender-match-workers/internal/catalog"
	"lender-match-workers/internal/common/camunda"
	"lender-match-workers/internal/common/config"
	"lender-match-workers/internal/common/database"
	"lender-match-workers/internal/common/http"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/observability"
	"lender-match-workers/internal/recommendation"

	nld "lender-match-workers/internal/workers/recommendation/notify-lender-desk"
	rlp "lender-match-workers/internal/workers/recommendation/recommend-lender-products"
	slp "lender-match-workers/internal/workers/recommendation/sync-lender-products"
)

// infrastructure holds the stores this process connected to. Any of them
// may be nil when the configuration does not call for it.
type infrastructure struct {
	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient
}

func needsPostgres(c config.CatalogConfig) bool {
	return c.Source == catalog.SourcePostgres || c.PersistOnSync
}

func needsElasticsearch(c config.CatalogConfig) bool {
	return c.Source == catalog.SourceElasticsearch || c.IndexOnSync
}

// connectInfrastructure dials the stores with retry. A store backing the
// primary catalog source is required; the others are dropped with a warning.
func connectInfrastructure(ctx context.Context, cfg *config.Config, log *zap.Logger) *infrastructure {
	deps := &infrastructure{}

	if needsPostgres(cfg.Catalog) {
		err := retryWithBackoff(func() error {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			deps.pg = pg
			return nil
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		switch {
		case err == nil:
			log.Info("PostgreSQL connected successfully")
			if err := catalog.NewPostgresRepository(deps.pg.GetDB()).EnsureSchema(ctx); err != nil {
				log.Fatal("lender_products schema setup failed", zap.Error(err))
			}
		case cfg.Catalog.Source == catalog.SourcePostgres:
			log.Fatal("postgres failed after retries", zap.Error(err))
		default:
			log.Warn("postgres unavailable, catalog persistence disabled", zap.Error(err))
		}
	}

	if needsElasticsearch(cfg.Catalog) {
		err := retryWithBackoff(func() error {
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(ctx); err != nil {
				return err
			}
			deps.es = es
			return nil
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		switch {
		case err == nil:
			log.Info("Elasticsearch connected successfully")
		case cfg.Catalog.Source == catalog.SourceElasticsearch:
			log.Fatal("elasticsearch failed after retries", zap.Error(err))
		default:
			log.Warn("elasticsearch unavailable, catalog indexing disabled", zap.Error(err))
		}
	}

	if cfg.Database.Redis.Address != "" {
		err := retryWithBackoff(func() error {
			rdb, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rdb.Ping(ctx); err != nil {
				rdb.Close()
				return err
			}
			deps.redis = rdb
			return nil
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			log.Warn("redis unavailable, caching catalog in memory", zap.Error(err))
		} else {
			log.Info("Redis connected successfully")
		}
	}

	return deps
}

func (d *infrastructure) Close(log *zap.Logger) {
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			log.Error("Error closing PostgreSQL", zap.Error(err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Error("Error closing Redis", zap.Error(err))
		}
	}
}

func (d *infrastructure) ReadinessChecks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{}
	if d.pg != nil {
		checks["postgres"] = d.pg.Ping
	}
	if d.redis != nil {
		checks["redis"] = d.redis.Ping
	}
	if d.es != nil {
		checks["elasticsearch"] = d.es.Ping
	}
	return checks
}

// sourceOrder puts the configured primary first and keeps the rest as
// fallbacks in a fixed order.
func sourceOrder(primary string, available map[string]catalog.Source) []catalog.Source {
	var ordered []catalog.Source
	if src, ok := available[primary]; ok {
		ordered = append(ordered, src)
	}
	for _, name := range []string{catalog.SourceStaffAPI, catalog.SourcePostgres, catalog.SourceElasticsearch} {
		if name == primary {
			continue
		}
		if src, ok := available[name]; ok {
			ordered = append(ordered, src)
		}
	}
	return ordered
}

func buildCatalog(cfg *config.Config, deps *infrastructure, log logger.Logger) *catalog.Service {
	available := map[string]catalog.Source{}
	if cfg.Catalog.StaffAPIURL != "" {
		client := http.NewClient(config.GetDuration(cfg.Catalog.FetchTimeout))
		available[catalog.SourceStaffAPI] = catalog.NewStaffAPISource(cfg.Catalog.StaffAPIURL, client, log)
	}
	if deps.pg != nil {
		available[catalog.SourcePostgres] = catalog.NewPostgresRepository(deps.pg.GetDB())
	}
	if deps.es != nil {
		available[catalog.SourceElasticsearch] = catalog.NewElasticsearchIndex(deps.es.Client, cfg.Database.Elasticsearch.ProductIndex)
	}

	var store catalog.Store
	if deps.redis != nil {
		store = catalog.NewRedisStore(deps.redis.Client, cfg.Catalog.CacheKey, config.GetDuration(cfg.Catalog.MaxStaleAge))
	} else {
		store = catalog.NewMemoryStore()
	}

	return catalog.NewService(store, sourceOrder(cfg.Catalog.Source, available), catalogOptions(cfg.Catalog), log)
}

func workerOptions(w config.WorkerConfig) camunda.WorkerOptions {
	return camunda.WorkerOptions{
		MaxJobsActive: w.MaxJobsActive,
		Timeout:       config.GetDuration(w.Timeout),
	}
}

func startWorkers(
	cfg *config.Config,
	zeebe *camunda.Client,
	catalogSvc *catalog.Service,
	recommender *recommendation.Service,
	deps *infrastructure,
	obs *observability.Observability,
	zapLog *zap.Logger,
	log logger.Logger,
) ([]*camunda.CamundaWorker, error) {
	var workers []*camunda.CamundaWorker
	start := func(taskType string, handler camunda.HandlerFunc) {
		w := camunda.NewWorker(zeebe.GetClient(), taskType, workerOptions(config.GetWorkerConfig(cfg, taskType)), handler, obs, zapLog)
		w.Start()
		workers = append(workers, w)
	}

	if config.IsWorkerEnabled(cfg, rlp.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, rlp.TaskType)
		handler := rlp.NewHandler(&rlp.Config{
			Timeout:    config.GetDuration(wcfg.Timeout),
			MaxResults: cfg.Recommendation.MaxResults,
		}, recommender, log)
		start(rlp.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, slp.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, slp.TaskType)

		var repo slp.ProductRepository
		if cfg.Catalog.PersistOnSync && deps.pg != nil {
			repo = catalog.NewPostgresRepository(deps.pg.GetDB())
		}
		var indexer slp.ProductIndexer
		if cfg.Catalog.IndexOnSync && deps.es != nil {
			indexer = catalog.NewElasticsearchIndex(deps.es.Client, cfg.Database.Elasticsearch.ProductIndex)
		}

		handler := slp.NewHandler(&slp.Config{
			Timeout:           config.GetDuration(wcfg.Timeout),
			DeactivateMissing: cfg.Catalog.DeactivateMissing,
		}, catalogSvc, repo, indexer, log)
		start(slp.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, nld.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, nld.TaskType)
		n := cfg.Notifications
		handler, err := nld.NewHandler(&nld.Config{
			Timeout:      config.GetDuration(wcfg.Timeout),
			EmailEnabled: n.Email.Enabled,
			SMSEnabled:   n.SMS.Enabled,
			FromEmail:    n.Email.FromEmail,
			DeskEmail:    n.Email.DeskEmail,
			DeskTopicARN: n.SMS.TopicARN,
			AWSRegion:    n.AWS.Region,
		}, log)
		if err != nil {
			return workers, fmt.Errorf("%s handler: %w", nld.TaskType, err)
		}
		start(nld.TaskType, handler.Handle)
	}

	return workers, nil
}
