// internal/workers/recommendation/sync-lender-products/handler.go
package synclenderproducts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

const (
	TaskType = "sync-lender-products"
)

// CatalogRefresher is satisfied by *catalog.Service.
type CatalogRefresher interface {
	Refresh(ctx context.Context) (*models.CatalogSnapshot, error)
}

// ProductRepository is satisfied by *catalog.PostgresRepository.
type ProductRepository interface {
	Upsert(ctx context.Context, products []models.LenderProduct) (int, error)
	DeactivateMissing(ctx context.Context, keep []string) (int64, error)
}

// ProductIndexer is satisfied by *catalog.ElasticsearchIndex.
type ProductIndexer interface {
	Index(ctx context.Context, products []models.LenderProduct) (int, error)
}

type Handler struct {
	config       *Config
	catalog      CatalogRefresher
	repo         ProductRepository
	indexer      ProductIndexer
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

// NewHandler wires the sync worker. repo and indexer are optional; a nil
// target is skipped.
func NewHandler(config *Config, catalog CatalogRefresher, repo ProductRepository, indexer ProductIndexer, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		catalog:      catalog,
		repo:         repo,
		indexer:      indexer,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if vars := strings.TrimSpace(job.Variables); vars != "" {
		if err := json.Unmarshal([]byte(vars), &input); err != nil {
			h.fail(client, job, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Execute pulls a fresh catalog, which also refreshes the cache, then copies
// it into the configured persistence targets. Persistence failures are
// reported in the output and never fail the sync.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	syncID := uuid.New().String()
	log := h.logger.WithFields(map[string]interface{}{"syncId": syncID})
	log.Info("catalog sync started", map[string]interface{}{"reason": input.Reason})

	snap, err := h.catalog.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	out := &Output{
		SyncID:       syncID,
		ProductCount: len(snap.Products),
		Categories:   recommendation.GroupByCategory(snap.Products, models.RecommendationFormData{}),
		Source:       snap.Source,
		SyncedAt:     h.now().UTC().Format(time.RFC3339),
	}

	// a catalog read back from Postgres does not need writing to it again
	if h.repo != nil && snap.Source != TargetPostgres {
		res := PersistResult{Target: TargetPostgres}
		res.Written, err = h.repo.Upsert(ctx, snap.Products)
		switch {
		case err != nil || !h.config.DeactivateMissing:
		case len(snap.Products) == 0:
			log.Warn("skipping deactivation of an empty catalog", nil)
		default:
			out.Deactivated, err = h.repo.DeactivateMissing(ctx, productIDs(snap.Products))
		}
		if err != nil {
			res.Error = persistError(err)
			log.Error("catalog persistence failed", map[string]interface{}{"target": TargetPostgres, "error": err})
		}
		out.Persisted = append(out.Persisted, res)
	}

	if h.indexer != nil && snap.Source != TargetElasticsearch {
		res := PersistResult{Target: TargetElasticsearch}
		res.Written, err = h.indexer.Index(ctx, snap.Products)
		if err != nil {
			res.Error = persistError(err)
			log.Error("catalog persistence failed", map[string]interface{}{"target": TargetElasticsearch, "error": err})
		}
		out.Persisted = append(out.Persisted, res)
	}

	log.Info("catalog sync finished", map[string]interface{}{
		"productCount": out.ProductCount,
		"source":       out.Source,
		"categories":   len(out.Categories),
		"deactivated":  out.Deactivated,
	})
	return out, nil
}

// persistError keeps the driver message that StandardError.Error leaves out.
func persistError(err error) string {
	if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Details != "" {
		return fmt.Sprintf("%s: %s", stdErr.Code, stdErr.Details)
	}
	return err.Error()
}

func productIDs(products []models.LenderProduct) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
