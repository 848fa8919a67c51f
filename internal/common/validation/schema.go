// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema, safe for concurrent use.
type Schema struct {
	compiled *gojsonschema.Schema
}

// Compile builds a Schema from a decoded JSON schema document.
func Compile(schema map[string]interface{}) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustCompile is Compile for schemas declared in code.
func MustCompile(schema map[string]interface{}) *Schema {
	s, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc, which may be a Go value or raw JSON bytes.
func (s *Schema) Validate(doc interface{}) (*ValidationResult, error) {
	var loader gojsonschema.JSONLoader
	switch d := doc.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(d)
	case string:
		loader = gojsonschema.NewStringLoader(d)
	default:
		loader = gojsonschema.NewGoLoader(d)
	}

	res, err := s.compiled.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	out := &ValidationResult{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   errorField(e),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out, nil
}

// ValidateInput compiles schema and validates input in one step.
func ValidateInput(input interface{}, schema map[string]interface{}) (*ValidationResult, error) {
	s, err := Compile(schema)
	if err != nil {
		return nil, err
	}
	return s.Validate(input)
}

// errorField reports the offending property. For "required" errors the
// library points at the parent object, so the missing property is appended.
func errorField(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() == "required" {
		if prop, ok := e.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY || field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
		return ""
	}
	return field
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Error joins every message, for wrapping into an INVALID_INPUT error.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}
