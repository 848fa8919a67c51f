package recommendation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"lender-match-workers/internal/models"
)

func TestCalculateRecommendationScore_ExampleScenario(t *testing.T) {
	termLoan := product("ca-term", "term_loan", "CA", 10000, models.Float64(50000))
	termLoan.MinRevenue = 8000

	form := models.RecommendationFormData{
		Headquarters:              "CA",
		FundingAmount:             30000,
		LookingFor:                models.LookingForCapital,
		AccountsReceivableBalance: 5000,
		FundsPurpose:              "working-capital",
	}

	assert.Equal(t, 100, CalculateRecommendationScore(termLoan, form, 8000))
	assert.Equal(t, 75, CalculateRecommendationScore(termLoan, form, 7999))
}

func TestCalculateRecommendationScore_ClampsBonuses(t *testing.T) {
	factoring := product("fact", "invoice_factoring", "US", 0, nil)
	form := capitalForm("US", 40000)
	form.AccountsReceivableBalance = 12000

	b := Breakdown(factoring, form, 0)
	assert.Equal(t, 110, b.Total())
	assert.Equal(t, MaxScore, CalculateRecommendationScore(factoring, form, 0))
}

func TestBreakdown_Components(t *testing.T) {
	tests := []struct {
		name    string
		product models.LenderProduct
		form    models.RecommendationFormData
		revenue float64
		want    models.ScoreBreakdown
	}{
		{
			name:    "nothing matches",
			product: models.LenderProduct{ID: "x", Category: "equipment_financing", Country: "US", MinAmount: 100000, MaxAmount: models.Float64(200000), MinRevenue: 50000},
			form:    capitalForm("CA", 5000),
			revenue: 1000,
			want:    models.ScoreBreakdown{},
		},
		{
			name:    "geography and amount only",
			product: models.LenderProduct{ID: "x", Category: "equipment_financing", Country: "Both", MinRevenue: 50000},
			form:    capitalForm("CA", 5000),
			revenue: 1000,
			want:    models.ScoreBreakdown{Geography: 25, Amount: 25},
		},
		{
			name:    "inventory purchase order bonus",
			product: models.LenderProduct{ID: "po", Category: "purchase_order_financing", Country: "US"},
			form:    models.RecommendationFormData{Headquarters: "US", FundingAmount: 20000, LookingFor: "both", FundsPurpose: "Inventory"},
			revenue: 0,
			want:    models.ScoreBreakdown{Geography: 25, Amount: 25, Intent: 25, Revenue: 25, InventoryBonus: 10},
		},
		{
			name:    "inventory bonus needs purchase order category",
			product: models.LenderProduct{ID: "tl", Category: "term_loan", Country: "US"},
			form:    models.RecommendationFormData{Headquarters: "US", FundingAmount: 20000, LookingFor: "both", FundsPurpose: "inventory"},
			want:    models.ScoreBreakdown{Geography: 25, Amount: 25, Intent: 25, Revenue: 25},
		},
		{
			name:    "factoring without receivables earns no bonus",
			product: models.LenderProduct{ID: "f", Category: "Factoring", Country: "US"},
			form:    capitalForm("US", 1000),
			want:    models.ScoreBreakdown{Geography: 25, Amount: 25, Intent: 25, Revenue: 25},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Breakdown(tt.product, tt.form, tt.revenue))
		})
	}
}

func TestCalculateRecommendationScore_Range(t *testing.T) {
	categories := []string{"term_loan", "invoice_factoring", "purchase_order_financing", "equipment_financing"}
	for _, c := range categories {
		for _, ar := range []float64{0, 1} {
			form := models.RecommendationFormData{
				Headquarters:              "US",
				FundingAmount:             1000,
				LookingFor:                models.LookingForBoth,
				AccountsReceivableBalance: ar,
				FundsPurpose:              "inventory",
			}
			score := CalculateRecommendationScore(product("p", c, "US", 0, nil), form, math.MaxFloat64)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}

func TestRecommendationLevel(t *testing.T) {
	assert.Equal(t, LevelExcellent, RecommendationLevel(100))
	assert.Equal(t, LevelExcellent, RecommendationLevel(70))
	assert.Equal(t, LevelGood, RecommendationLevel(69))
	assert.Equal(t, LevelGood, RecommendationLevel(50))
	assert.Equal(t, LevelFair, RecommendationLevel(49))
	assert.Equal(t, LevelFair, RecommendationLevel(0))
}

func TestScore_ReasonsAndLevel(t *testing.T) {
	p := product("loc", "line_of_credit", "US", 10000, models.Float64(250000))
	p.MinRevenue = 20000

	sp := Score(p, capitalForm("united-states", 75000), 10000)
	assert.Equal(t, 75, sp.MatchScore)
	assert.Equal(t, LevelExcellent, sp.RecommendationLevel)
	assert.Equal(t, []string{
		"Available in US",
		"Funding amount $75,000 within $10,000-$250,000",
		"Business Line of Credit fits a capital request",
	}, sp.MatchReasons)
	assert.Equal(t, 0, sp.Breakdown.Revenue)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$0", formatAmount(0))
	assert.Equal(t, "$999", formatAmount(999))
	assert.Equal(t, "$1,000", formatAmount(1000))
	assert.Equal(t, "$1,234,567", formatAmount(1234567.4))
	assert.Equal(t, "-$5,000", formatAmount(-5000))
	assert.Equal(t, "no limit", formatAmount(math.Inf(1)))
}
