// internal/recommendation/filter.go
package recommendation

import (
	"fmt"
	"strings"

	"lender-match-workers/internal/models"
)

// FilterDecision explains why a product was kept or dropped for an applicant.
type FilterDecision struct {
	ProductID string   `json:"productId"`
	Eligible  bool     `json:"eligible"`
	Reasons   []string `json:"reasons,omitempty"`
}

// FilterProducts returns the products the applicant is eligible for, in
// catalog order. The result never contains a product that was not in the
// input; an empty or nil catalog yields an empty slice.
func FilterProducts(products []models.LenderProduct, form models.RecommendationFormData) []models.LenderProduct {
	out := make([]models.LenderProduct, 0, len(products))
	for _, p := range products {
		if IsEligible(p, form) {
			out = append(out, p)
		}
	}
	return out
}

// IsEligible applies every exclusion rule to a single product.
func IsEligible(p models.LenderProduct, form models.RecommendationFormData) bool {
	return CountryMatches(p, form.Headquarters) &&
		AmountInRange(p, form.FundingAmount) &&
		!ExcludedForFactoring(p, form) &&
		!ExcludedForEquipment(p, form) &&
		IntentMatches(p, form)
}

// ExplainFilter runs the same rules as IsEligible and names each one that failed.
func ExplainFilter(p models.LenderProduct, form models.RecommendationFormData) FilterDecision {
	var reasons []string

	if !CountryMatches(p, form.Headquarters) {
		reasons = append(reasons, fmt.Sprintf("country mismatch: product %q does not serve %s",
			productCountryLabel(p), NormalizeCountry(form.Headquarters)))
	}
	if !AmountInRange(p, form.FundingAmount) {
		lo, hi := p.AmountRange()
		reasons = append(reasons, fmt.Sprintf("amount out of range: %s not in %s", formatAmount(form.FundingAmount), formatRange(lo, hi)))
	}
	if ExcludedForFactoring(p, form) {
		reasons = append(reasons, "factoring product requires an accounts receivable balance")
	}
	if ExcludedForEquipment(p, form) {
		reasons = append(reasons, "equipment product excluded for a capital-only request")
	}
	if !IntentMatches(p, form) {
		reasons = append(reasons, fmt.Sprintf("intent mismatch: %q does not cover category %q", normalizeIntent(form.LookingFor), p.Category))
	}

	return FilterDecision{
		ProductID: p.ID,
		Eligible:  len(reasons) == 0,
		Reasons:   reasons,
	}
}

// AmountInRange is an inclusive check against the product's funding range.
func AmountInRange(p models.LenderProduct, amount float64) bool {
	lo, hi := p.AmountRange()
	return amount >= lo && amount <= hi
}

// ExcludedForFactoring drops invoice factoring when there is nothing to factor.
func ExcludedForFactoring(p models.LenderProduct, form models.RecommendationFormData) bool {
	return IsFactoringCategory(p.Category) && form.AccountsReceivableBalance <= 0
}

// ExcludedForEquipment drops equipment products for a capital-only request
// unless the funds purpose itself mentions equipment.
func ExcludedForEquipment(p models.LenderProduct, form models.RecommendationFormData) bool {
	return IsEquipmentCategory(p.Category) &&
		normalizeIntent(form.LookingFor) == models.LookingForCapital &&
		!mentionsEquipment(form.FundsPurpose)
}

// IntentMatches checks the product category against what the applicant is
// looking for. An equipment funds purpose always admits equipment categories.
func IntentMatches(p models.LenderProduct, form models.RecommendationFormData) bool {
	equipment := IsEquipmentCategory(p.Category)
	if equipment && mentionsEquipment(form.FundsPurpose) {
		return true
	}

	switch normalizeIntent(form.LookingFor) {
	case models.LookingForCapital:
		return !equipment
	case models.LookingForEquipment:
		return equipment
	default:
		return true
	}
}

func IsEquipmentCategory(category string) bool {
	return strings.Contains(categoryText(category), "equipment")
}

func IsFactoringCategory(category string) bool {
	c := categoryText(category)
	return strings.Contains(c, "factoring") || strings.Contains(c, "invoice")
}

func IsPurchaseOrderCategory(category string) bool {
	c := categoryText(category)
	return strings.Contains(c, "purchase order") || c == "po financing"
}

// normalizeIntent lower-cases the intent. Blank or unknown intents behave like "both".
func normalizeIntent(lookingFor string) string {
	switch v := strings.ToLower(strings.TrimSpace(lookingFor)); v {
	case models.LookingForCapital, models.LookingForEquipment:
		return v
	default:
		return models.LookingForBoth
	}
}

func mentionsEquipment(purpose string) bool {
	return strings.Contains(strings.ToLower(purpose), "equipment")
}

// categoryText lower-cases a category and turns separators into spaces so
// "purchase_order_financing" and "Purchase Order Financing" read the same.
func categoryText(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = strings.NewReplacer("_", " ", "-", " ").Replace(c)
	return strings.Join(strings.Fields(c), " ")
}

func productCountryLabel(p models.LenderProduct) string {
	if len(p.Geography) > 0 {
		return strings.Join(p.Geography, ",")
	}
	return p.Country
}
