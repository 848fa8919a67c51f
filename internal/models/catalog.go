// internal/models/catalog.go
package models

import "time"

// CatalogSnapshot is one loaded copy of the lender product catalog.
type CatalogSnapshot struct {
	Products  []LenderProduct `json:"products"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Source    string          `json:"source"`
	// Stale is set when the snapshot is served past its TTL because every
	// upstream source failed.
	Stale bool `json:"stale"`
}

// IsFresh reports whether the snapshot is younger than ttl at now.
func (s *CatalogSnapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s == nil || s.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(s.FetchedAt) < ttl
}
