// internal/workers/recommendation/sync-lender-products/models.go
package synclenderproducts

import "lender-match-workers/internal/models"

// Targets reported in Output.Persisted.
const (
	TargetPostgres      = "postgres"
	TargetElasticsearch = "elasticsearch"
)

type Input struct {
	// Reason is free text recorded in the logs ("scheduled", "manual").
	Reason string `json:"reason,omitempty"`
}

type PersistResult struct {
	Target  string `json:"target"`
	Written int    `json:"written"`
	Error   string `json:"error,omitempty"`
}

type Output struct {
	SyncID       string                `json:"syncId"`
	ProductCount int                   `json:"productCount"`
	Categories   []models.CategoryStat `json:"categories"`
	Source       string                `json:"source"`
	SyncedAt     string                `json:"syncedAt"`
	Persisted    []PersistResult       `json:"persisted,omitempty"`
	Deactivated  int64                 `json:"deactivated,omitempty"`
}
