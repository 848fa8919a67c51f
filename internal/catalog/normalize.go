// internal/catalog/normalize.go
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

var (
	ErrInvalidPayload  = errors.New("catalog payload is neither a product array nor a products envelope")
	ErrNoValidProducts = errors.New("catalog contains no valid products")
	errMissingCategory = errors.New("missing category")
	errMissingName     = errors.New("missing product and lender name")
	errInvertedRange   = errors.New("minimum amount exceeds maximum amount")
)

// Field aliases seen across the staff API, the product sync payloads and the
// legacy catalog exports. The first key present wins.
var (
	idKeys         = []string{"id", "productId", "product_id"}
	nameKeys       = []string{"name", "productName", "product_name"}
	lenderKeys     = []string{"lenderName", "lender_name", "lender"}
	categoryKeys   = []string{"category", "productCategory", "product_category", "product_type", "productType", "type"}
	countryKeys    = []string{"country", "countryOffered", "country_offered"}
	geographyKeys  = []string{"geography", "countries", "regions"}
	minAmountKeys  = []string{"minAmount", "min_amount", "amountMin", "amount_min", "fundingMin", "minimumLendingAmount"}
	maxAmountKeys  = []string{"maxAmount", "max_amount", "amountMax", "amount_max", "fundingMax", "maximumLendingAmount"}
	minRevenueKeys = []string{"minRevenue", "min_revenue", "minimumRevenue", "minMonthlyRevenue", "min_monthly_revenue"}
	industryKeys   = []string{"industries", "industry"}
	rateKeys       = []string{"interestRate", "interest_rate"}
	descKeys       = []string{"description"}
	documentKeys   = []string{"requiredDocuments", "required_documents", "documentsRequired", "doc_requirements"}
	activeKeys     = []string{"active", "isActive", "is_active"}
)

// Rejection records a catalog entry that could not be normalized.
type Rejection struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// DecodeProducts parses a raw catalog payload into canonical products.
// It accepts a bare array or an object wrapping the array under "products"
// or "data"; anything else is ErrInvalidPayload. Inactive products are
// skipped silently; malformed ones are returned as rejections.
func DecodeProducts(raw []byte) ([]models.LenderProduct, []Rejection, error) {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode catalog: %w", err)
	}

	records, err := unwrapRecords(payload)
	if err != nil {
		return nil, nil, err
	}

	products := make([]models.LenderProduct, 0, len(records))
	var rejections []Rejection
	for i, r := range records {
		rec, ok := r.(map[string]interface{})
		if !ok {
			rejections = append(rejections, Rejection{Index: i, Reason: "entry is not an object"})
			continue
		}
		p, err := NormalizeRecord(rec)
		if err != nil {
			rejections = append(rejections, Rejection{Index: i, ID: p.ID, Reason: err.Error()})
			continue
		}
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	return products, rejections, nil
}

func unwrapRecords(payload interface{}) ([]interface{}, error) {
	switch v := payload.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"products", "data"} {
			if list, ok := v[key].([]interface{}); ok {
				return list, nil
			}
		}
	}
	return nil, ErrInvalidPayload
}

// NormalizeRecord collapses one raw catalog entry onto LenderProduct.
// The returned product carries its ID even on error so callers can report it.
func NormalizeRecord(rec map[string]interface{}) (models.LenderProduct, error) {
	p := models.LenderProduct{
		ID:           firstString(rec, idKeys...),
		Name:         firstString(rec, nameKeys...),
		LenderName:   firstString(rec, lenderKeys...),
		Category:     firstString(rec, categoryKeys...),
		InterestRate: firstString(rec, rateKeys...),
		Description:  firstString(rec, descKeys...),
		Active:       true,
	}

	if p.Category == "" {
		return p, errMissingCategory
	}
	if p.Name == "" && p.LenderName == "" {
		return p, errMissingName
	}
	if p.ID == "" {
		owner := p.LenderName
		if owner == "" {
			owner = p.Name
		}
		p.ID = fmt.Sprintf("%s-%s", owner, p.Category)
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("%s %s", p.LenderName, recommendation.FormatCategoryName(p.Category))
	}

	p.Country = canonicalCountry(firstString(rec, countryKeys...))
	for _, g := range firstList(rec, geographyKeys...) {
		p.Geography = append(p.Geography, recommendation.NormalizeCountry(g))
	}

	if v, ok := firstAmount(rec, minAmountKeys...); ok && v > 0 {
		p.MinAmount = v
	}
	if v, ok := firstAmount(rec, maxAmountKeys...); ok && v > 0 {
		p.MaxAmount = models.Float64(v)
	}
	if p.MaxAmount != nil && p.MinAmount > *p.MaxAmount {
		return p, errInvertedRange
	}
	if v, ok := firstAmount(rec, minRevenueKeys...); ok && v > 0 {
		p.MinRevenue = v
	}

	p.Industries = firstList(rec, industryKeys...)
	p.RequiredDocuments = firstList(rec, documentKeys...)

	if v, ok := firstValue(rec, activeKeys...); ok {
		if b, isBool := v.(bool); isBool {
			p.Active = b
		}
	}
	return p, nil
}

// ParseAmount reads a numeric string after dropping every character other
// than digits, '.', and '-': "$10,000" -> 10000.
func ParseAmount(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// canonicalCountry keeps "US", "CA" and "Both"; anything naming both markets
// collapses to "Both".
func canonicalCountry(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "both", "us/ca", "ca/us", "us,ca", "ca,us", "north america":
		return "Both"
	}
	return recommendation.NormalizeCountry(raw)
}

func firstValue(rec map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(rec map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstAmount(rec map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case float64:
			return v, true
		case string:
			if f, ok := ParseAmount(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func firstList(rec map[string]interface{}, keys ...string) []string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, part := range strings.Split(v, ",") {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
