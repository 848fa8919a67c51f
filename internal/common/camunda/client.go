// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"lender-match-workers/internal/common/errors"
)

// Client wraps the Zeebe gRPC client with retry and error mapping.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig bounds ExecuteWithRetry. MaxRetries counts retries after the
// first attempt.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// NewClientWithConfig dials the gateway and confirms it answers a topology
// request before handing the client out.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: config}
	if err := c.HealthCheck(context.Background()); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}
	return c, nil
}

func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck asks the gateway for its topology within ConnectionTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// Brokers reports how many brokers the gateway currently sees, retrying
// transient failures.
func (c *Client) Brokers(ctx context.Context) (int, error) {
	res, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return c.client.NewTopologyCommand().Send(ctx)
	}, "topology")
	if err != nil {
		return 0, err
	}
	topology, ok := res.(*pb.TopologyResponse)
	if !ok {
		return 0, nil
	}
	return len(topology.GetBrokers()), nil
}

// ExecuteWithRetry runs command, backing off exponentially between attempts.
// Only transient gateway failures are retried; the final error is mapped to
// a StandardError.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	command func(context.Context) (interface{}, error),
	operation string,
) (interface{}, error) {
	retry := c.config.RetryConfig
	for attempt := 0; ; attempt++ {
		result, err := command(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= retry.MaxRetries || !isRetryableZeebeError(err) {
			return nil, c.mapZeebeError(err, operation, attempt)
		}

		delay := retry.BaseDelay << attempt
		if delay > retry.MaxDelay || delay <= 0 {
			delay = retry.MaxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.NewTimeoutError("zeebe", fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempt+1, ctx.Err()))
		}
	}
}

type failureKind int

const (
	failureUnknown failureKind = iota
	failureConnection
	failureTimeout
	failureRejected
	failureAuth
)

// failurePhrases classifies gRPC error text. The first matching row wins.
var failurePhrases = []struct {
	kind    failureKind
	phrases []string
}{
	{failureConnection, []string{"connection refused", "connection reset", "unavailable", "unreachable", "broken pipe"}},
	{failureTimeout, []string{"timeout", "deadline exceeded"}},
	{failureRejected, []string{"not found", "already exists"}},
	{failureAuth, []string{"permission denied", "unauthorized", "unauthenticated"}},
}

func classify(err error) failureKind {
	msg := strings.ToLower(err.Error())
	for _, row := range failurePhrases {
		for _, phrase := range row.phrases {
			if strings.Contains(msg, phrase) {
				return row.kind
			}
		}
	}
	return failureUnknown
}

func isRetryableZeebeError(err error) bool {
	kind := classify(err)
	return kind == failureConnection || kind == failureTimeout
}

func (c *Client) mapZeebeError(err error, operation string, attempt int) error {
	prefix := fmt.Sprintf("zeebe %s failed", operation)
	if attempt > 0 {
		prefix += fmt.Sprintf(" after %d attempts", attempt+1)
	}
	wrapped := fmt.Errorf("%s: %w", prefix, err)

	switch classify(err) {
	case failureTimeout:
		return errors.NewTimeoutError("zeebe", wrapped)
	case failureRejected:
		// the broker rejected the command itself
		return errors.NewInvalidInputError(wrapped.Error()).WithMetadata("service", "zeebe")
	case failureAuth:
		stdErr := errors.NewExternalServiceError("zeebe", wrapped)
		stdErr.Retryable = false
		return stdErr.WithMetadata("reason", "unauthorized")
	default:
		return errors.NewExternalServiceError("zeebe", wrapped)
	}
}
