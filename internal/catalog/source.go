// internal/catalog/source.go
package catalog

import (
	"context"

	"lender-match-workers/internal/models"
)

const (
	SourceStaffAPI      = "staff_api"
	SourcePostgres      = "postgres"
	SourceElasticsearch = "elasticsearch"
)

// Source fetches the full active catalog from an upstream system.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.LenderProduct, error)
}
