// internal/recommendation/categories.go
package recommendation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"lender-match-workers/internal/models"
)

var categoryNames = map[string]string{
	"line_of_credit":           "Business Line of Credit",
	"business_line_of_credit":  "Business Line of Credit",
	"term_loan":                "Term Loan",
	"equipment_financing":      "Equipment Financing",
	"invoice_factoring":        "Invoice Factoring",
	"working_capital":          "Working Capital",
	"purchase_order_financing": "Purchase Order Financing",
	"commercial_real_estate":   "Commercial Real Estate",
	"merchant_cash_advance":    "Merchant Cash Advance",
}

// purposeProductTypes lists the product types that serve each funds purpose.
// A purpose that is absent, or maps to nothing, places no restriction.
var purposeProductTypes = map[string][]string{
	"equipment":          {"equipment_financing"},
	"business_expansion": {"line_of_credit", "invoice_factoring", "working_capital", "term_loan"},
	"working_capital":    {"line_of_credit", "working_capital", "term_loan"},
	"inventory":          {"line_of_credit", "invoice_factoring", "purchase_order_financing", "term_loan", "working_capital"},
	"marketing":          {"line_of_credit", "term_loan", "working_capital"},
	"debt_consolidation": {"line_of_credit", "invoice_factoring", "term_loan", "working_capital"},
	"other":              {},
}

const (
	categoryBaseScore     = 60
	categoryAmountWeight  = 30
	categoryPurposeWeight = 10
)

// CategoryKey folds a category into snake_case: "Term Loan" -> "term_loan".
func CategoryKey(category string) string {
	return strings.ReplaceAll(categoryText(category), " ", "_")
}

// FormatCategoryName returns the display name for a product type.
// Known types use the fixed table; already formatted names pass through.
func FormatCategoryName(productType string) string {
	trimmed := strings.TrimSpace(productType)
	if trimmed == "" {
		return "Other"
	}
	if name, ok := categoryNames[CategoryKey(trimmed)]; ok {
		return name
	}
	if strings.IndexFunc(trimmed, unicode.IsUpper) >= 0 && !strings.Contains(trimmed, "_") {
		return trimmed
	}

	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(trimmed)))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// AllowedProductTypes returns the product types suited to a funds purpose,
// or nil when the purpose places no restriction.
func AllowedProductTypes(purpose string) []string {
	types := purposeProductTypes[purposeKey(purpose)]
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	copy(out, types)
	return out
}

// GroupByCategory summarizes products per display category with a
// compatibility score for the applicant, best match first.
func GroupByCategory(products []models.LenderProduct, form models.RecommendationFormData) []models.CategoryStat {
	if len(products) == 0 {
		return []models.CategoryStat{}
	}

	groups := make(map[string][]models.LenderProduct)
	var order []string
	for _, p := range products {
		name := FormatCategoryName(p.Category)
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], p)
	}

	total := float64(len(products))
	stats := make([]models.CategoryStat, 0, len(groups))
	for _, name := range order {
		members := groups[name]
		stats = append(stats, models.CategoryStat{
			Category:   name,
			Count:      len(members),
			Percentage: int(math.Round(float64(len(members)) / total * 100)),
			MatchScore: categoryMatchScore(members, form),
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].MatchScore != stats[j].MatchScore {
			return stats[i].MatchScore > stats[j].MatchScore
		}
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Category < stats[j].Category
	})
	return stats
}

// GroupScored groups ranked products, keeping the products themselves out of
// the summary.
func GroupScored(scored []models.ScoredProduct, form models.RecommendationFormData) []models.CategoryStat {
	products := make([]models.LenderProduct, len(scored))
	for i, s := range scored {
		products[i] = s.LenderProduct
	}
	return GroupByCategory(products, form)
}

func categoryMatchScore(products []models.LenderProduct, form models.RecommendationFormData) int {
	score := float64(categoryBaseScore)
	n := float64(len(products))

	if form.FundingAmount > 0 {
		inRange := 0
		for _, p := range products {
			if AmountInRange(p, form.FundingAmount) {
				inRange++
			}
		}
		score += float64(inRange) / n * categoryAmountWeight
	}

	if allowed := AllowedProductTypes(form.FundsPurpose); len(allowed) > 0 {
		matches := 0
		for _, p := range products {
			if containsString(allowed, CategoryKey(p.Category)) {
				matches++
			}
		}
		score += float64(matches) / n * categoryPurposeWeight
	}

	return clampScore(int(math.Round(score)))
}

// Insights produces short advisory lines for the category summary.
func Insights(categories []models.CategoryStat, form models.RecommendationFormData) []string {
	var insights []string

	if len(categories) > 0 {
		top := categories[0]
		insights = append(insights, fmt.Sprintf("%s shows the highest compatibility (%d%% match) for your business profile.", top.Category, top.MatchScore))
		if top.Count > 5 {
			insights = append(insights, fmt.Sprintf("Strong market availability with %d products across multiple lenders.", top.Count))
		}
	}

	switch normalizeIntent(form.LookingFor) {
	case models.LookingForEquipment:
		insights = append(insights, "Equipment financing typically offers 100% financing with the equipment serving as collateral.")
	case models.LookingForCapital:
		insights = append(insights, "Working capital solutions provide flexibility for operational expenses and growth opportunities.")
	}

	if NormalizeCountry(form.Headquarters) == CountryCA {
		insights = append(insights, "Canadian businesses may qualify for additional government-backed financing programs.")
	}
	return insights
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
