// internal/catalog/store.go
package catalog

import (
	"context"
	"errors"

	"lender-match-workers/internal/models"
)

// ErrCacheMiss is returned by Store.Load when nothing is cached.
var ErrCacheMiss = errors.New("catalog cache miss")

// Store persists the last good catalog snapshot. Freshness is decided by the
// caller; a Store only keeps what it was given.
type Store interface {
	Load(ctx context.Context) (*models.CatalogSnapshot, error)
	Save(ctx context.Context, snap *models.CatalogSnapshot) error
}
