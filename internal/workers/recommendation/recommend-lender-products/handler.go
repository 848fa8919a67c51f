// internal/workers/recommendation/recommend-lender-products/handler.go
package recommendlenderproducts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

const (
	TaskType = "recommend-lender-products"
)

// Recommender is satisfied by *recommendation.Service.
type Recommender interface {
	RecommendTop(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int) (*recommendation.Result, error)
}

type Handler struct {
	config       *Config
	recommender  Recommender
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, recommender Recommender, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		recommender:  recommender,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// ParseInput validates the raw job variables and decodes them.
func ParseInput(variables string) (*Input, error) {
	res, err := inputSchema.Validate(variables)
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	if !res.Valid {
		stdErr := errors.NewInvalidInputError(res.Error())
		return nil, stdErr.WithMetadata("fields", res.Errors)
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute runs the recommendation for one applicant.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	limit := input.MaxResults
	if limit <= 0 {
		limit = h.config.MaxResults
	}

	result, err := h.recommender.RecommendTop(ctx, input.FormData, input.MonthlyRevenue, limit)
	if err != nil {
		if _, ok := errors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, errors.NewRecommendationFailedError(err)
	}

	fields := map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"eligibleCount":  result.EligibleCount,
		"totalEvaluated": result.TotalEvaluated,
		"catalogSource":  result.CatalogSource,
	}
	if result.NoEligibleProducts {
		fields["emptyReason"] = result.EmptyReason
	} else {
		fields["topProduct"] = result.Products[0].ID
		fields["topScore"] = result.Products[0].MatchScore
	}
	if result.CatalogStale {
		fields["catalogStale"] = true
	}
	h.logger.Info("recommendations computed", fields)

	return &Output{ApplicationID: input.ApplicationID, Result: *result}, nil
}

// fail reports err to the broker. Commands are sent on a fresh context since
// the job context may already be past its deadline.
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
