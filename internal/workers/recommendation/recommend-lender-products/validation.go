// internal/workers/recommendation/recommend-lender-products/validation.go
package recommendlenderproducts

import "lender-match-workers/internal/common/validation"

var inputSchema = validation.MustCompile(GetInputSchema())

// GetInputSchema mirrors the activity registry entry for this task type.
func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"formData", "monthlyRevenue"},
		"properties": map[string]interface{}{
			"applicationId": map[string]interface{}{"type": "string", "maxLength": 64},
			"formData": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"headquarters", "fundingAmount"},
				"properties": map[string]interface{}{
					"headquarters":              map[string]interface{}{"type": "string", "minLength": 1},
					"fundingAmount":             map[string]interface{}{"type": "number", "minimum": 0},
					"lookingFor":                map[string]interface{}{"type": "string"},
					"accountsReceivableBalance": map[string]interface{}{"type": "number", "minimum": 0},
					"fundsPurpose":              map[string]interface{}{"type": "string"},
				},
			},
			"monthlyRevenue": map[string]interface{}{"type": "number", "minimum": 0},
			"maxResults":     map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100},
		},
	}
}
