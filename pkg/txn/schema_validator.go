package txn

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator validates framework payloads against a compiled JSON
// Schema before they are imported. Content the authority already holds
// is never re-validated.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the given JSON Schema document.
func NewSchemaValidator(name, schema string) (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://framestore.schemas.local/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("framework schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("framework schema compile failed: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

func (v *SchemaValidator) Validate(payload map[string]any) ValidationResult {
	if err := v.schema.Validate(payload); err != nil {
		return ValidationResult{Issues: []string{err.Error()}}
	}
	return ValidationResult{IsValid: true}
}
