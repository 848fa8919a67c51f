// internal/recommendation/rank.go
package recommendation

import (
	"sort"

	"lender-match-workers/internal/models"
)

// Rank filters the catalog, scores what is left and orders it best first.
// Equal scores are ordered by product ID so the output does not depend on
// the order the catalog arrived in.
func Rank(products []models.LenderProduct, form models.RecommendationFormData, monthlyRevenue float64) []models.ScoredProduct {
	eligible := FilterProducts(products, form)
	scored := make([]models.ScoredProduct, 0, len(eligible))
	for _, p := range eligible {
		scored = append(scored, Score(p, form, monthlyRevenue))
	}
	SortScored(scored)
	return scored
}

// SortScored sorts in place: score descending, then ID ascending.
func SortScored(scored []models.ScoredProduct) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].MatchScore != scored[j].MatchScore {
			return scored[i].MatchScore > scored[j].MatchScore
		}
		return scored[i].ID < scored[j].ID
	})
}
