// internal/workers/recommendation/notify-lender-desk/validation.go
package notifylenderdesk

import "lender-match-workers/internal/common/validation"

var inputSchema = validation.MustCompile(GetInputSchema())

func GetInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"applicationId", "formData"},
		"properties": map[string]interface{}{
			"applicationId": map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 64},
			"businessName":  map[string]interface{}{"type": "string", "maxLength": 255},
			"contactEmail":  map[string]interface{}{"type": "string", "maxLength": 255},
			"formData": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"headquarters", "fundingAmount"},
				"properties": map[string]interface{}{
					"headquarters":  map[string]interface{}{"type": "string"},
					"fundingAmount": map[string]interface{}{"type": "number", "minimum": 0},
				},
			},
			"monthlyRevenue": map[string]interface{}{"type": "number", "minimum": 0},
			"emptyReason":    map[string]interface{}{"type": "string", "enum": []interface{}{"", "no_match", "catalog_empty"}},
			"totalEvaluated": map[string]interface{}{"type": "integer", "minimum": 0},
		},
	}
}
