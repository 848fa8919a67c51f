// internal/catalog/staff_api_source.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/http"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/models"
)

const lendersPath = "/public/lenders"

// StaffAPISource reads the public lender catalog from the staff application.
type StaffAPISource struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewStaffAPISource(baseURL string, client *http.Client, log logger.Logger) *StaffAPISource {
	return &StaffAPISource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  log.WithFields(map[string]interface{}{"source": SourceStaffAPI}),
	}
}

func (s *StaffAPISource) Name() string { return SourceStaffAPI }

// Fetch returns the active products. A payload that yields no product is
// CATALOG_INVALID, so the caller keeps its previous snapshot.
func (s *StaffAPISource) Fetch(ctx context.Context) ([]models.LenderProduct, error) {
	body, err := s.client.Get(ctx, s.baseURL+lendersPath)
	if err != nil {
		return nil, fmt.Errorf("staff api: %w", err)
	}

	products, rejections, err := DecodeProducts(body)
	if errors.Is(err, ErrInvalidPayload) {
		return nil, apperrors.NewCatalogInvalidError(fmt.Sprintf("source: %s, %v", SourceStaffAPI, err), err)
	}
	if err != nil {
		return nil, fmt.Errorf("staff api: %w", err)
	}
	if len(rejections) > 0 {
		s.logger.Warn("Skipped malformed catalog entries", map[string]interface{}{
			"rejected":   len(rejections),
			"first":      rejections[0].Reason,
			"firstIndex": rejections[0].Index,
		})
	}
	if len(products) == 0 {
		return nil, apperrors.NewCatalogInvalidError(
			fmt.Sprintf("source: %s, rejected: %d", SourceStaffAPI, len(rejections)), ErrNoValidProducts)
	}
	return products, nil
}
