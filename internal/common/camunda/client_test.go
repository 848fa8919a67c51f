package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/metrics"
)

func testClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{
		RetryConfig: &RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}}
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(stderrors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(stderrors.New("context deadline exceeded")))
	assert.False(t, isRetryableZeebeError(stderrors.New("job with key 42 not found")))
}

func TestMapZeebeError(t *testing.T) {
	c := testClient(0)

	tests := []struct {
		msg       string
		code      errors.ErrorCode
		retryable bool
	}{
		{"connection refused", errors.ErrCodeExternalService, true},
		{"deadline exceeded", errors.ErrCodeTimeout, true},
		{"job with key 1 not found", errors.ErrCodeInvalidInput, false},
		{"process already exists", errors.ErrCodeInvalidInput, false},
		{"permission denied", errors.ErrCodeExternalService, false},
		{"something odd", errors.ErrCodeExternalService, true},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := c.mapZeebeError(stderrors.New(tt.msg), "complete-job", 1)
			stdErr, ok := errors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
		})
	}
}

func TestExecuteWithRetry(t *testing.T) {
	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		res, err := testClient(3).ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, stderrors.New("unavailable")
			}
			return "ok", nil
		}, "publish")
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		_, err := testClient(3).ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, stderrors.New("not found")
		}, "complete")
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := testClient(2).ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, stderrors.New("timeout")
		}, "activate")
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
	})
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	c := &Client{config: &ClientConfig{
		RetryConfig: &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour},
	}}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		calls++
		cancel()
		return nil, stderrors.New("unavailable")
	}, "topology")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, failureConnection, classify(stderrors.New("rpc error: code = Unavailable desc = broker timeout")))
	assert.Equal(t, failureTimeout, classify(stderrors.New("Deadline Exceeded")))
	assert.Equal(t, failureAuth, classify(stderrors.New("rpc error: code = Unauthenticated")))
	assert.Equal(t, failureUnknown, classify(stderrors.New("boom")))
}

func TestInstrument(t *testing.T) {
	const taskType = "instrument-test"
	var sawActive float64

	handler := Instrument(taskType, func(client worker.JobClient, job entities.Job) {
		sawActive = testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType))
	}, nil)

	handler(nil, entities.Job{})

	assert.Equal(t, float64(1), sawActive)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType)))
}
