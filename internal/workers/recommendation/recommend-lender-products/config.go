// internal/workers/recommendation/recommend-lender-products/config.go
package recommendlenderproducts

import "time"

type Config struct {
	Timeout    time.Duration
	MaxResults int
}
