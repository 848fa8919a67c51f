// internal/catalog/service.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/models"
)

const (
	DefaultTTL          = 12 * time.Hour
	DefaultFetchTimeout = 10 * time.Second
	DefaultRetryDelay   = 500 * time.Millisecond
)

type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	MaxRetries   int // attempts per source, including the first
	RetryDelay   time.Duration
	MaxStaleAge  time.Duration // zero keeps stale snapshots indefinitely
}

// Service hands out catalog snapshots. A fresh cached snapshot is served as is;
// otherwise the sources are tried in order and the first success is cached.
// When every source fails, the last cached snapshot is served marked stale.
type Service struct {
	store   Store
	sources []Source
	opts    Options
	group   singleflight.Group
	logger  logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewService(store Store, sources []Source, opts Options, log logger.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Service{
		store:   store,
		sources: sources,
		opts:    opts,
		logger:  log.WithFields(map[string]interface{}{"component": "catalog"}),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Products returns the catalog, fetching it when the cache is cold or expired.
func (s *Service) Products(ctx context.Context) (*models.CatalogSnapshot, error) {
	cached, err := s.store.Load(ctx)
	switch {
	case err == nil && cached.IsFresh(s.now(), s.opts.TTL):
		metrics.CatalogCacheTotal.WithLabelValues("fresh").Inc()
		return cached, nil
	case err == nil:
		metrics.CatalogCacheTotal.WithLabelValues("expired").Inc()
	case errors.Is(err, ErrCacheMiss):
		metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CatalogCacheTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Catalog cache read failed", map[string]interface{}{"error": err})
		cached = nil
	}

	snap, fetchErr := s.refresh(ctx)
	if fetchErr == nil {
		return snap, nil
	}

	if cached != nil && s.opts.MaxStaleAge > 0 && s.now().Sub(cached.FetchedAt) > s.opts.MaxStaleAge {
		cached = nil
	}
	if cached != nil {
		metrics.CatalogCacheTotal.WithLabelValues("stale").Inc()
		s.logger.Warn("Serving stale catalog", map[string]interface{}{
			"error":     fetchErr,
			"fetchedAt": cached.FetchedAt,
			"source":    cached.Source,
			"products":  len(cached.Products),
		})
		stale := *cached
		stale.Stale = true
		return &stale, nil
	}

	return nil, apperrors.NewCatalogUnavailableError(fetchErr)
}

// Refresh fetches from the sources regardless of what is cached.
func (s *Service) Refresh(ctx context.Context) (*models.CatalogSnapshot, error) {
	snap, err := s.refresh(ctx)
	if err != nil {
		return nil, apperrors.NewCatalogSyncFailedError(s.sourceNames(), err)
	}
	return snap, nil
}

// Prime replaces the cached snapshot, for callers that already hold a
// freshly synced catalog.
func (s *Service) Prime(ctx context.Context, snap *models.CatalogSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return apperrors.NewCatalogPersistFailedError("cache", err)
	}
	metrics.CatalogProducts.Set(float64(len(snap.Products)))
	return nil
}

func (s *Service) refresh(ctx context.Context) (*models.CatalogSnapshot, error) {
	// Concurrent callers share one upstream fetch. The fetch is detached from
	// the first caller's cancellation so the others are not failed by it.
	v, err, shared := s.group.Do("catalog", func() (interface{}, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})
	if shared {
		s.logger.Debug("Joined in-flight catalog fetch", nil)
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.CatalogSnapshot), nil
}

func (s *Service) fetch(ctx context.Context) (*models.CatalogSnapshot, error) {
	if len(s.sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	var errs []error
	for _, src := range s.sources {
		products, err := s.fetchWithRetry(ctx, src)
		if err != nil {
			metrics.CatalogFetchTotal.WithLabelValues(src.Name(), "error").Inc()
			s.logger.Warn("Catalog source failed", map[string]interface{}{
				"source": src.Name(),
				"error":  err,
			})
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		metrics.CatalogFetchTotal.WithLabelValues(src.Name(), "success").Inc()

		snap := &models.CatalogSnapshot{
			Products:  products,
			FetchedAt: s.now(),
			Source:    src.Name(),
		}
		if err := s.store.Save(ctx, snap); err != nil {
			s.logger.Warn("Catalog cache write failed", map[string]interface{}{"error": err})
		}
		metrics.CatalogProducts.Set(float64(len(products)))
		s.logger.Info("Catalog loaded", map[string]interface{}{
			"source":   src.Name(),
			"products": len(products),
		})
		return snap, nil
	}
	return nil, errors.Join(errs...)
}

func (s *Service) fetchWithRetry(ctx context.Context, src Source) ([]models.LenderProduct, error) {
	delay := s.opts.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		products, err := src.Fetch(attemptCtx)
		cancel()
		if err == nil {
			return products, nil
		}
		lastErr = err
		if !retryable(err) || attempt == s.opts.MaxRetries {
			break
		}
		s.logger.Debug("Retrying catalog fetch", map[string]interface{}{
			"source":  src.Name(),
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		})
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

func (s *Service) sourceNames() string {
	names := ""
	for i, src := range s.sources {
		if i > 0 {
			names += ","
		}
		names += src.Name()
	}
	return names
}

// retryable is false for payload problems another attempt will not fix.
func retryable(err error) bool {
	if stdErr, ok := apperrors.AsStandardError(err); ok && !stdErr.Retryable {
		return false
	}
	return !errors.Is(err, ErrNoValidProducts) && !errors.Is(err, ErrInvalidPayload)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
