package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameworkSchema = `{
	"type": "object",
	"required": ["name", "dimensions"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"dimensions": {"type": "array", "minItems": 1}
	}
}`

func TestSchemaValidator_Accepts(t *testing.T) {
	v, err := NewSchemaValidator("framework", frameworkSchema)
	require.NoError(t, err)

	res := v.Validate(map[string]any{
		"name":       "civic_virtue",
		"dimensions": []any{"dignity"},
	})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Issues)
}

func TestSchemaValidator_RejectsWithIssues(t *testing.T) {
	v, err := NewSchemaValidator("framework", frameworkSchema)
	require.NoError(t, err)

	res := v.Validate(map[string]any{"name": "civic_virtue"})
	assert.False(t, res.IsValid)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "dimensions")
}

func TestSchemaValidator_CompileError(t *testing.T) {
	_, err := NewSchemaValidator("framework", `{"type": 42}`)
	require.Error(t, err)
}

func TestCoordinator_SchemaValidatorBlocksImport(t *testing.T) {
	v, err := NewSchemaValidator("framework", frameworkSchema)
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) { o.Validator = v })
	path := f.writeFile(t, "civic_virtue.json", map[string]any{"name": "civic_virtue"})

	st := f.coord.ValidateForUse(context.Background(), "civic_virtue", path, "")
	assert.Equal(t, ResultValidationError, st.Result)
	assert.False(t, st.NewVersionCreated)
}
