// internal/workers/recommendation/sync-lender-products/config.go
package synclenderproducts

import "time"

type Config struct {
	Timeout time.Duration
	// DeactivateMissing marks Postgres rows absent from the sync as inactive.
	DeactivateMissing bool
}
