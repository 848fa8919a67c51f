// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/common/observability"
)

// HandlerFunc is the Zeebe job callback. Handlers complete or fail the job
// themselves.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// WorkerOptions configures job activation for one task type.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	client   zbc.Client
	worker   worker.JobWorker
	handler  HandlerFunc
	opts     WorkerOptions
	logger   *zap.Logger
	taskType string
}

func NewWorker(
	client zbc.Client,
	taskType string,
	opts WorkerOptions,
	handler HandlerFunc,
	obs *observability.Observability,
	logger *zap.Logger,
) *CamundaWorker {
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = 5
	}
	return &CamundaWorker{
		client:   client,
		handler:  Instrument(taskType, handler, obs),
		opts:     opts,
		logger:   logger,
		taskType: taskType,
	}
}

// Instrument wraps handler with the active-job gauge and duration metrics.
func Instrument(taskType string, handler HandlerFunc, obs *observability.Observability) HandlerFunc {
	return func(client worker.JobClient, job entities.Job) {
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		handler(client, job)
		elapsed := time.Since(start)

		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		obs.RecordJobDuration(context.Background(), taskType, elapsed, "handled")
	}
}

// Start opens the job worker. Calling Start twice is a no-op.
func (w *CamundaWorker) Start() {
	if w.worker != nil {
		return
	}
	cmd := w.client.NewJobWorker().
		JobType(w.taskType).
		Handler(worker.JobHandler(w.handler)).
		MaxJobsActive(w.opts.MaxJobsActive)
	if w.opts.Timeout > 0 {
		cmd = cmd.Timeout(w.opts.Timeout)
	}
	w.worker = cmd.Open()

	w.logger.Info("worker started",
		zap.String("taskType", w.taskType),
		zap.Int("maxJobsActive", w.opts.MaxJobsActive),
		zap.Duration("timeout", w.opts.Timeout),
	)
}

// Stop closes the job worker and waits for in-flight jobs. The shared Zeebe
// client is left open for the caller to close.
func (w *CamundaWorker) Stop(ctx context.Context) {
	if w.worker == nil {
		return
	}
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.worker.Close()

	done := make(chan struct{})
	go func() {
		w.worker.AwaitClose()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker did not drain before shutdown deadline", zap.String("taskType", w.taskType))
	}
}

func (w *CamundaWorker) TaskType() string {
	return w.taskType
}
