// internal/models/recommendation.go
package models

// Funding intents collected by the wizard's first step.
const (
	LookingForCapital   = "capital"
	LookingForEquipment = "equipment"
	LookingForBoth      = "both"
)

// RecommendationFormData is the applicant profile the engine scores against.
// It is passed by value so a scoring call cannot mutate it.
type RecommendationFormData struct {
	Headquarters              string  `json:"headquarters"`
	FundingAmount             float64 `json:"fundingAmount"`
	LookingFor                string  `json:"lookingFor"`
	AccountsReceivableBalance float64 `json:"accountsReceivableBalance"`
	FundsPurpose              string  `json:"fundsPurpose"`
}

type ScoreBreakdown struct {
	Geography      int `json:"geography"`
	Amount         int `json:"amount"`
	Intent         int `json:"intent"`
	Revenue        int `json:"revenue"`
	FactoringBonus int `json:"factoringBonus"`
	InventoryBonus int `json:"inventoryBonus"`
}

// Total is the raw sum before clamping.
func (b ScoreBreakdown) Total() int {
	return b.Geography + b.Amount + b.Intent + b.Revenue + b.FactoringBonus + b.InventoryBonus
}

// ScoredProduct is a transient view of a product for one applicant.
type ScoredProduct struct {
	LenderProduct
	MatchScore          int            `json:"matchScore"`
	RecommendationLevel string         `json:"recommendationLevel"`
	Breakdown           ScoreBreakdown `json:"scoreBreakdown"`
	MatchReasons        []string       `json:"matchReasons,omitempty"`
}

type CategoryStat struct {
	Category   string `json:"category"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
	MatchScore int    `json:"matchScore"`
}
