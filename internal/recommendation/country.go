// internal/recommendation/country.go
package recommendation

import (
	"strings"

	"lender-match-workers/internal/models"
)

const (
	CountryUS = "US"
	CountryCA = "CA"

	// countryBoth marks products offered in both markets.
	countryBoth = "both"
)

var countryAliases = map[string]string{
	"us":                       CountryUS,
	"usa":                      CountryUS,
	"u s":                      CountryUS,
	"united states":            CountryUS,
	"united states of america": CountryUS,
	"ca":                       CountryCA,
	"can":                      CountryCA,
	"canada":                   CountryCA,
}

// NormalizeCountry maps the spellings seen across the wizard and the catalog
// ("united-states", "US", "United States", "canada", ...) onto "US" or "CA".
// Unrecognised values come back trimmed and upper-cased.
func NormalizeCountry(s string) string {
	if code, ok := countryAliases[countryKey(s)]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func countryKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// CountryMatches reports whether p is offered in the applicant's headquarters
// country. hq is normalized before comparison.
func CountryMatches(p models.LenderProduct, hq string) bool {
	code := NormalizeCountry(hq)
	if code == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(p.Country), countryBoth) {
		return true
	}
	if p.Country != "" && NormalizeCountry(p.Country) == code {
		return true
	}
	for _, g := range p.Geography {
		if NormalizeCountry(g) == code {
			return true
		}
	}
	return false
}
