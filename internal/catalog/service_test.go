package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/models"
)

type stubSource struct {
	name     string
	calls    atomic.Int32
	products []models.LenderProduct
	errs     []error // consumed one per call; nil entries succeed
	gate     chan struct{}
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) ([]models.LenderProduct, error) {
	n := int(s.calls.Add(1)) - 1
	if s.gate != nil {
		<-s.gate
	}
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return s.products, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, store Store, opts Options, sources ...Source) (*Service, *clock) {
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, sources, opts, logger.NewTestLogger(t))
	svc.now = clk.Now
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc, clk
}

func TestService_FetchesOnMissAndCaches(t *testing.T) {
	src := &stubSource{name: SourceStaffAPI, products: sampleSnapshot(time.Time{}).Products}
	store := NewMemoryStore()
	svc, _ := newTestService(t, store, Options{TTL: time.Hour}, src)
	ctx := context.Background()

	snap, err := svc.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 2)
	assert.Equal(t, SourceStaffAPI, snap.Source)
	assert.False(t, snap.Stale)

	_, err = svc.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "second call should be served from cache")

	cached, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cached.Products, 2)
}

func TestService_RefetchesAfterTTL(t *testing.T) {
	src := &stubSource{name: SourceStaffAPI, products: sampleSnapshot(time.Time{}).Products}
	svc, clk := newTestService(t, NewMemoryStore(), Options{TTL: 12 * time.Hour}, src)
	ctx := context.Background()

	_, err := svc.Products(ctx)
	require.NoError(t, err)

	clk.Advance(11 * time.Hour)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	clk.Advance(2 * time.Hour)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestService_ServesStaleWhenSourcesFail(t *testing.T) {
	store := NewMemoryStore()
	svc, clk := newTestService(t, store, Options{TTL: time.Hour, MaxRetries: 2}, &stubSource{
		name: SourceStaffAPI,
		errs: []error{errors.New("503"), errors.New("503")},
	})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot(clk.Now().Add(-3*time.Hour))))

	snap, err := svc.Products(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Stale)
	assert.Len(t, snap.Products, 2)
}

func TestService_StaleBeyondMaxAgeIsUnavailable(t *testing.T) {
	store := NewMemoryStore()
	svc, clk := newTestService(t, store, Options{TTL: time.Hour, MaxStaleAge: 24 * time.Hour}, &stubSource{
		name: SourceStaffAPI,
		errs: []error{errors.New("down")},
	})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot(clk.Now().Add(-48*time.Hour))))

	_, err := svc.Products(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogUnavailable))
}

func TestService_UnavailableWithoutCache(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryStore(), Options{MaxRetries: 3}, &stubSource{
		name: SourceStaffAPI,
		errs: []error{errors.New("a"), errors.New("b"), errors.New("c")},
	})

	_, err := svc.Products(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogUnavailable))
}

func TestService_RetriesThenSucceeds(t *testing.T) {
	src := &stubSource{
		name:     SourceStaffAPI,
		products: sampleSnapshot(time.Time{}).Products,
		errs:     []error{errors.New("timeout"), nil},
	}
	svc, _ := newTestService(t, NewMemoryStore(), Options{MaxRetries: 3}, src)

	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := svc.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, delays)
}

func TestService_DoesNotRetryBadPayload(t *testing.T) {
	src := &stubSource{name: SourceStaffAPI, errs: []error{ErrNoValidProducts}}
	svc, _ := newTestService(t, NewMemoryStore(), Options{MaxRetries: 3}, src)

	_, err := svc.Products(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.ErrorIs(t, err, ErrNoValidProducts)
}

func TestService_FallsBackToSecondarySource(t *testing.T) {
	primary := &stubSource{name: SourceStaffAPI, errs: []error{errors.New("down")}}
	secondary := &stubSource{name: SourcePostgres, products: sampleSnapshot(time.Time{}).Products}
	svc, _ := newTestService(t, NewMemoryStore(), Options{}, primary, secondary)

	snap, err := svc.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourcePostgres, snap.Source)
}

func TestService_ConcurrentCallersShareOneFetch(t *testing.T) {
	src := &stubSource{
		name:     SourceStaffAPI,
		products: sampleSnapshot(time.Time{}).Products,
		gate:     make(chan struct{}),
	}
	svc, _ := newTestService(t, NewMemoryStore(), Options{}, src)

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Products(context.Background())
			assert.NoError(t, err)
		}()
	}

	// let the callers pile up on the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestService_RefreshAndPrime(t *testing.T) {
	src := &stubSource{name: SourceStaffAPI, products: sampleSnapshot(time.Time{}).Products}
	store := NewMemoryStore()
	svc, clk := newTestService(t, store, Options{}, src)
	ctx := context.Background()

	snap, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 2)

	primed := &models.CatalogSnapshot{
		Products:  snap.Products[:1],
		FetchedAt: clk.Now(),
		Source:    "sync",
	}
	require.NoError(t, svc.Prime(ctx, primed))

	got, err := svc.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Products, 1)
	assert.Equal(t, int32(1), src.calls.Load())

	failing := &stubSource{name: SourceStaffAPI, errs: []error{errors.New("down")}}
	svc2, _ := newTestService(t, NewMemoryStore(), Options{}, failing)
	_, err = svc2.Refresh(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogSyncFailed))
}
