package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"formData", "monthlyRevenue"},
	"properties": map[string]interface{}{
		"formData": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"headquarters", "fundingAmount"},
			"properties": map[string]interface{}{
				"headquarters":  map[string]interface{}{"type": "string", "minLength": 1},
				"fundingAmount": map[string]interface{}{"type": "number", "minimum": 0},
				"lookingFor":    map[string]interface{}{"type": "string", "enum": []interface{}{"capital", "equipment", "both"}},
			},
		},
		"monthlyRevenue": map[string]interface{}{"type": "number", "minimum": 0},
	},
}

func TestSchema_Valid(t *testing.T) {
	s, err := Compile(testSchema)
	require.NoError(t, err)

	res, err := s.Validate(map[string]interface{}{
		"formData":       map[string]interface{}{"headquarters": "US", "fundingAmount": 25000.0, "lookingFor": "both"},
		"monthlyRevenue": 10000,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestSchema_Errors(t *testing.T) {
	s := MustCompile(testSchema)

	res, err := s.Validate([]byte(`{"formData":{"fundingAmount":-5,"lookingFor":"cash"}}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	assert.True(t, res.HasErrors("monthlyRevenue"))
	assert.True(t, res.HasErrors("formData.headquarters"))
	assert.True(t, res.HasErrors("formData.fundingAmount"))
	assert.True(t, res.HasErrors("formData.lookingFor"))
	assert.Len(t, res.GetErrorsForField("formData"), 3)

	codes := map[string]string{}
	for _, e := range res.Errors {
		codes[e.Field] = e.Code
	}
	assert.Equal(t, "REQUIRED", codes["monthlyRevenue"])
	assert.Equal(t, "NUMBER_GTE", codes["formData.fundingAmount"])
	assert.Equal(t, "ENUM", codes["formData.lookingFor"])
	assert.Contains(t, res.Error(), "monthlyRevenue")
}

func TestSchema_WrongType(t *testing.T) {
	res, err := ValidateInput(`{"formData":"US","monthlyRevenue":"lots"}`, testSchema)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "INVALID_TYPE", res.GetErrorsForField("formData")[0].Code)
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(map[string]interface{}{"type": 12})
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("desk@lender.example.com"))
	assert.False(t, ValidateEmail("desk@"))
	assert.False(t, ValidateEmail(""))
}
