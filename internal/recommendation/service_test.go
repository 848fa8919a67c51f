package recommendation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/models"
)

type fakeCatalog struct {
	snap *models.CatalogSnapshot
	err  error
}

func (f *fakeCatalog) Products(ctx context.Context) (*models.CatalogSnapshot, error) {
	return f.snap, f.err
}

func snapshotOf(products ...models.LenderProduct) *models.CatalogSnapshot {
	return &models.CatalogSnapshot{Products: products, FetchedAt: time.Now(), Source: "staff_api"}
}

func TestService_Recommend(t *testing.T) {
	catalog := &fakeCatalog{snap: snapshotOf(
		product("ca-term", "term_loan", "CA", 10000, models.Float64(50000)),
		product("us-equip", "equipment_financing", "US", 0, nil),
		product("both-loc", "line_of_credit", "Both", 0, nil),
	)}
	svc := NewService(catalog, Options{}, nil, logger.NewTestLogger(t))

	form := models.RecommendationFormData{
		Headquarters:              "CA",
		FundingAmount:             30000,
		LookingFor:                models.LookingForCapital,
		AccountsReceivableBalance: 5000,
		FundsPurpose:              "working-capital",
	}
	res, err := svc.Recommend(context.Background(), form, 10000)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalEvaluated)
	assert.Equal(t, 2, res.EligibleCount)
	assert.False(t, res.NoEligibleProducts)
	assert.Empty(t, res.EmptyReason)
	assert.Equal(t, "staff_api", res.CatalogSource)
	assert.Equal(t, []string{"both-loc", "ca-term"}, rankedIDs(res.Products))
	assert.NotEmpty(t, res.Categories)
	assert.NotEmpty(t, res.Insights)
}

func TestService_RecommendTopLimits(t *testing.T) {
	var products []models.LenderProduct
	for i := 0; i < 10; i++ {
		products = append(products, product(fmt.Sprintf("p%d", i), "term_loan", "US", 0, nil))
	}
	svc := NewService(&fakeCatalog{snap: snapshotOf(products...)}, Options{MaxResults: 4}, nil, logger.NewNoOpLogger())

	res, err := svc.Recommend(context.Background(), capitalForm("US", 1000), 0)
	require.NoError(t, err)
	assert.Len(t, res.Products, 4)
	assert.Equal(t, 10, res.EligibleCount)

	res, err = svc.RecommendTop(context.Background(), capitalForm("US", 1000), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, rankedIDs(res.Products))
}

func TestService_EmptyStates(t *testing.T) {
	t.Run("no match", func(t *testing.T) {
		form := capitalForm("US", 1000)
		svc := NewService(&fakeCatalog{snap: snapshotOf(product("f", "invoice_factoring", "US", 0, nil))}, Options{}, nil, logger.NewNoOpLogger())

		res, err := svc.Recommend(context.Background(), form, 0)
		require.NoError(t, err)
		assert.True(t, res.NoEligibleProducts)
		assert.Equal(t, EmptyReasonNoMatch, res.EmptyReason)
		assert.Empty(t, res.Products)
		assert.Equal(t, 1, res.TotalEvaluated)
	})

	t.Run("catalog empty", func(t *testing.T) {
		svc := NewService(&fakeCatalog{snap: snapshotOf()}, Options{}, nil, logger.NewNoOpLogger())

		res, err := svc.Recommend(context.Background(), capitalForm("US", 1000), 0)
		require.NoError(t, err)
		assert.True(t, res.NoEligibleProducts)
		assert.Equal(t, EmptyReasonCatalogEmpty, res.EmptyReason)
	})
}

func TestService_CatalogUnavailable(t *testing.T) {
	svc := NewService(&fakeCatalog{err: errors.New("redis down")}, Options{}, nil, logger.NewNoOpLogger())

	_, err := svc.Recommend(context.Background(), capitalForm("US", 1000), 0)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogUnavailable))

	passthrough := apperrors.NewCatalogUnavailableError(errors.New("all sources failed"))
	svc = NewService(&fakeCatalog{err: passthrough}, Options{}, nil, logger.NewNoOpLogger())
	_, err = svc.Recommend(context.Background(), capitalForm("US", 1000), 0)
	assert.Same(t, passthrough, err)
}

func TestService_StaleCatalogIsReported(t *testing.T) {
	snap := snapshotOf(product("p", "term_loan", "US", 0, nil))
	snap.Stale = true
	svc := NewService(&fakeCatalog{snap: snap}, Options{}, nil, logger.NewNoOpLogger())

	res, err := svc.Recommend(context.Background(), capitalForm("US", 1000), 0)
	require.NoError(t, err)
	assert.True(t, res.CatalogStale)
}

type sequenceCatalog struct {
	snaps []*models.CatalogSnapshot
	calls int
}

func (c *sequenceCatalog) Products(ctx context.Context) (*models.CatalogSnapshot, error) {
	snap := c.snaps[c.calls%len(c.snaps)]
	c.calls++
	return snap, nil
}

func TestService_RecommendExplained(t *testing.T) {
	catalog := &sequenceCatalog{snaps: []*models.CatalogSnapshot{
		snapshotOf(
			product("ok", "term_loan", "US", 0, nil),
			product("far", "term_loan", "CA", 0, nil),
		),
		snapshotOf(product("refreshed", "term_loan", "US", 0, nil)),
	}}
	svc := NewService(catalog, Options{}, nil, logger.NewNoOpLogger())

	res, err := svc.RecommendExplained(context.Background(), capitalForm("US", 1000), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.calls)

	assert.Equal(t, []string{"ok"}, rankedIDs(res.Products))
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, "ok", res.Decisions[0].ProductID)
	assert.True(t, res.Decisions[0].Eligible)
	assert.Equal(t, "far", res.Decisions[1].ProductID)
	assert.False(t, res.Decisions[1].Eligible)
	assert.NotEmpty(t, res.Decisions[1].Reasons)

	res, err = svc.RecommendTop(context.Background(), capitalForm("US", 1000), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Decisions)
}

// ==========================================
// Benchmarks
// ==========================================

func benchCatalog(n int) []models.LenderProduct {
	categories := []string{"term_loan", "invoice_factoring", "line_of_credit", "equipment_financing", "purchase_order_financing"}
	countries := []string{"US", "CA", "Both"}
	out := make([]models.LenderProduct, n)
	for i := range out {
		out[i] = product(fmt.Sprintf("p%04d", i), categories[i%len(categories)], countries[i%len(countries)],
			float64((i%10)*5000), models.Float64(float64(100000+(i%7)*50000)))
		out[i].MinRevenue = float64((i % 5) * 4000)
	}
	return out
}

func BenchmarkCalculateRecommendationScore(b *testing.B) {
	p := product("p", "invoice_factoring", "Both", 10000, models.Float64(500000))
	form := capitalForm("united-states", 75000)
	form.AccountsReceivableBalance = 20000
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateRecommendationScore(p, form, 15000)
	}
}

func BenchmarkRank(b *testing.B) {
	catalog := benchCatalog(500)
	form := capitalForm("CA", 60000)
	form.AccountsReceivableBalance = 10000
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Rank(catalog, form, 12000)
	}
}
