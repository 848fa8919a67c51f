// internal/models/lender_product.go
package models

import (
	"math"
	"time"
)

// LenderProduct is the canonical catalog record. Every source is collapsed
// onto this shape before the recommendation engine sees it.
type LenderProduct struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	LenderName        string    `json:"lenderName"`
	Category          string    `json:"category"`
	Country           string    `json:"country"`
	Geography         []string  `json:"geography,omitempty"`
	MinAmount         float64   `json:"minAmount"`
	MaxAmount         *float64  `json:"maxAmount,omitempty"` // nil means no upper bound
	MinRevenue        float64   `json:"minRevenue"`
	Industries        []string  `json:"industries,omitempty"`
	InterestRate      string    `json:"interestRate,omitempty"`
	Description       string    `json:"description,omitempty"`
	RequiredDocuments []string  `json:"requiredDocuments,omitempty"`
	Active            bool      `json:"active"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// AmountRange returns the inclusive funding range. A missing maximum is +Inf.
func (p LenderProduct) AmountRange() (float64, float64) {
	if p.MaxAmount == nil {
		return p.MinAmount, math.Inf(1)
	}
	return p.MinAmount, *p.MaxAmount
}

// Float64 returns a pointer to v, for optional amounts.
func Float64(v float64) *float64 {
	return &v
}
