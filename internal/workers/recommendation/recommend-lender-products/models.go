// internal/workers/recommendation/recommend-lender-products/models.go
package recommendlenderproducts

import (
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

type Input struct {
	ApplicationID  string                        `json:"applicationId,omitempty"`
	FormData       models.RecommendationFormData `json:"formData"`
	MonthlyRevenue float64                       `json:"monthlyRevenue"`
	MaxResults     int                           `json:"maxResults,omitempty"`
}

// Output flattens the recommendation result into the process variables.
type Output struct {
	ApplicationID string `json:"applicationId,omitempty"`
	recommendation.Result
}
