// internal/recommendation/service.go
package recommendation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/common/observability"
	"lender-match-workers/internal/models"
)

// Reasons reported when no product is eligible.
const (
	EmptyReasonCatalogEmpty = "catalog_empty"
	EmptyReasonNoMatch      = "no_match"
)

const DefaultMaxResults = 25

// CatalogProvider supplies the current catalog snapshot.
type CatalogProvider interface {
	Products(ctx context.Context) (*models.CatalogSnapshot, error)
}

type Result struct {
	Products           []models.ScoredProduct `json:"recommendations"`
	Categories         []models.CategoryStat  `json:"categories"`
	Insights           []string               `json:"insights"`
	TotalEvaluated     int                    `json:"totalEvaluated"`
	EligibleCount      int                    `json:"eligibleCount"`
	NoEligibleProducts bool                   `json:"noEligibleProducts"`
	EmptyReason        string                 `json:"emptyReason,omitempty"`
	CatalogSource      string                 `json:"catalogSource"`
	CatalogStale       bool                   `json:"catalogStale"`
	CatalogFetchedAt   time.Time              `json:"catalogFetchedAt"`
	Decisions          []FilterDecision       `json:"decisions,omitempty"`
}

type Options struct {
	MaxResults    int
	SlowThreshold time.Duration
}

type Service struct {
	catalog CatalogProvider
	opts    Options
	obs     *observability.Observability
	logger  logger.Logger
}

func NewService(catalog CatalogProvider, opts Options, obs *observability.Observability, log logger.Logger) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	return &Service{
		catalog: catalog,
		opts:    opts,
		obs:     obs,
		logger:  log.WithFields(map[string]interface{}{"component": "recommendation"}),
	}
}

// Recommend ranks the catalog for the applicant and returns at most
// Options.MaxResults products. An empty result is reported through
// NoEligibleProducts, never as an error.
func (s *Service) Recommend(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64) (*Result, error) {
	return s.RecommendTop(ctx, form, monthlyRevenue, s.opts.MaxResults)
}

// RecommendTop is Recommend with an explicit result limit. A limit <= 0 uses
// the configured default.
func (s *Service) RecommendTop(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int) (*Result, error) {
	return s.recommend(ctx, form, monthlyRevenue, limit, false)
}

// RecommendExplained is RecommendTop plus the filter decision for every
// catalog product, taken from the snapshot the ranking used.
func (s *Service) RecommendExplained(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int) (*Result, error) {
	return s.recommend(ctx, form, monthlyRevenue, limit, true)
}

func (s *Service) recommend(ctx context.Context, form models.RecommendationFormData, monthlyRevenue float64, limit int, explain bool) (*Result, error) {
	country := NormalizeCountry(form.Headquarters)
	ctx, span := observability.StartSpan(ctx, "recommendation.Recommend",
		attribute.String("country", country),
		attribute.String("lookingFor", normalizeIntent(form.LookingFor)),
	)
	defer span.End()

	start := time.Now()
	snap, err := s.catalog.Products(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog unavailable")
		metrics.RecommendationsTotal.WithLabelValues("error", country).Inc()
		if _, ok := apperrors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, apperrors.NewCatalogUnavailableError(err)
	}

	ranked := Rank(snap.Products, form, monthlyRevenue)
	categories := GroupScored(ranked, form)

	result := &Result{
		Products:         ranked,
		Categories:       categories,
		Insights:         Insights(categories, form),
		TotalEvaluated:   len(snap.Products),
		EligibleCount:    len(ranked),
		CatalogSource:    snap.Source,
		CatalogStale:     snap.Stale,
		CatalogFetchedAt: snap.FetchedAt,
	}
	if explain {
		result.Decisions = explainAll(snap.Products, form)
	}
	if limit <= 0 {
		limit = s.opts.MaxResults
	}
	if len(result.Products) > limit {
		result.Products = result.Products[:limit]
	}

	outcome := "eligible"
	if len(ranked) == 0 {
		result.NoEligibleProducts = true
		result.EmptyReason = EmptyReasonNoMatch
		if len(snap.Products) == 0 {
			result.EmptyReason = EmptyReasonCatalogEmpty
		}
		outcome = result.EmptyReason
		s.logger.Info("No eligible lender products", map[string]interface{}{
			"country":        country,
			"fundingAmount":  form.FundingAmount,
			"lookingFor":     form.LookingFor,
			"reason":         result.EmptyReason,
			"totalEvaluated": result.TotalEvaluated,
		})
	} else {
		s.obs.RecordTopScore(ctx, country, ranked[0].MatchScore)
	}

	elapsed := time.Since(start)
	metrics.RecommendationsTotal.WithLabelValues(outcome, country).Inc()
	metrics.RecommendationDuration.Observe(elapsed.Seconds())
	metrics.EligibleProducts.Observe(float64(len(ranked)))
	span.SetAttributes(
		attribute.Int("totalEvaluated", result.TotalEvaluated),
		attribute.Int("eligibleCount", result.EligibleCount),
	)

	if s.opts.SlowThreshold > 0 && elapsed > s.opts.SlowThreshold {
		s.logger.Warn("Slow recommendation", map[string]interface{}{
			"duration":       elapsed.String(),
			"totalEvaluated": result.TotalEvaluated,
		})
	}
	return result, nil
}

func explainAll(products []models.LenderProduct, form models.RecommendationFormData) []FilterDecision {
	decisions := make([]FilterDecision, 0, len(products))
	for _, p := range products {
		decisions = append(decisions, ExplainFilter(p, form))
	}
	return decisions
}

// Catalog exposes the current snapshot for browsing endpoints.
func (s *Service) Catalog(ctx context.Context) (*models.CatalogSnapshot, error) {
	return s.catalog.Products(ctx)
}
