// internal/recommendation/score.go
package recommendation

import (
	"fmt"
	"math"
	"strings"

	"lender-match-workers/internal/models"
)

const (
	PointsGeography = 25
	PointsAmount    = 25
	PointsIntent    = 25
	PointsRevenue   = 25

	BonusFactoring = 10
	BonusInventory = 10

	MaxScore = 100
)

const (
	LevelExcellent = "excellent"
	LevelGood      = "good"
	LevelFair      = "fair"
)

// Breakdown computes each scoring component for one product.
func Breakdown(p models.LenderProduct, form models.RecommendationFormData, monthlyRevenue float64) models.ScoreBreakdown {
	var b models.ScoreBreakdown

	if CountryMatches(p, form.Headquarters) {
		b.Geography = PointsGeography
	}
	if AmountInRange(p, form.FundingAmount) {
		b.Amount = PointsAmount
	}
	if IntentMatches(p, form) {
		b.Intent = PointsIntent
	}
	if monthlyRevenue >= p.MinRevenue {
		b.Revenue = PointsRevenue
	}
	if IsFactoringCategory(p.Category) && form.AccountsReceivableBalance > 0 {
		b.FactoringBonus = BonusFactoring
	}
	if purposeKey(form.FundsPurpose) == "inventory" && IsPurchaseOrderCategory(p.Category) {
		b.InventoryBonus = BonusInventory
	}
	return b
}

// CalculateRecommendationScore returns a 0-100 match score. Bonuses can push
// the raw sum past 100; the result is clamped.
func CalculateRecommendationScore(p models.LenderProduct, form models.RecommendationFormData, monthlyRevenue float64) int {
	return clampScore(Breakdown(p, form, monthlyRevenue).Total())
}

// Score builds the full scored view of a product.
func Score(p models.LenderProduct, form models.RecommendationFormData, monthlyRevenue float64) models.ScoredProduct {
	b := Breakdown(p, form, monthlyRevenue)
	score := clampScore(b.Total())
	return models.ScoredProduct{
		LenderProduct:       p,
		MatchScore:          score,
		RecommendationLevel: RecommendationLevel(score),
		Breakdown:           b,
		MatchReasons:        MatchReasons(p, form, b),
	}
}

func RecommendationLevel(score int) string {
	switch {
	case score >= 70:
		return LevelExcellent
	case score >= 50:
		return LevelGood
	default:
		return LevelFair
	}
}

// MatchReasons renders the scoring components a product earned as short
// human readable strings.
func MatchReasons(p models.LenderProduct, form models.RecommendationFormData, b models.ScoreBreakdown) []string {
	var reasons []string
	if b.Geography > 0 {
		reasons = append(reasons, fmt.Sprintf("Available in %s", NormalizeCountry(form.Headquarters)))
	}
	if b.Amount > 0 {
		lo, hi := p.AmountRange()
		reasons = append(reasons, fmt.Sprintf("Funding amount %s within %s", formatAmount(form.FundingAmount), formatRange(lo, hi)))
	}
	if b.Intent > 0 {
		reasons = append(reasons, fmt.Sprintf("%s fits a %s request", FormatCategoryName(p.Category), normalizeIntent(form.LookingFor)))
	}
	if b.Revenue > 0 {
		if p.MinRevenue > 0 {
			reasons = append(reasons, fmt.Sprintf("Meets minimum revenue of %s", formatAmount(p.MinRevenue)))
		} else {
			reasons = append(reasons, "No minimum revenue requirement")
		}
	}
	if b.FactoringBonus > 0 {
		reasons = append(reasons, "Outstanding receivables can be factored")
	}
	if b.InventoryBonus > 0 {
		reasons = append(reasons, "Purchase order financing suits inventory purchases")
	}
	return reasons
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// purposeKey lower-cases a funds purpose and folds separators to underscores.
func purposeKey(purpose string) string {
	p := strings.ToLower(strings.TrimSpace(purpose))
	p = strings.NewReplacer("-", "_", " ", "_").Replace(p)
	return p
}

func formatAmount(v float64) string {
	if math.IsInf(v, 1) {
		return "no limit"
	}
	whole := int64(math.Round(v))
	neg := whole < 0
	if neg {
		whole = -whole
	}
	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func formatRange(lo, hi float64) string {
	return formatAmount(lo) + "-" + formatAmount(hi)
}
