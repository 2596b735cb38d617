package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query   string   `json:"query" description:"Free-text search query"`
	Limit   int      `json:"limit,omitempty"`
	Exact   bool     `json:"exact"`
	Filters []string `json:"filters,omitempty"`
	Cursor  *string  `json:"cursor"`
	ignored string   `json:"ignored"`
	Skipped string   `json:"-"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	assert.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["query"].(map[string]any)["type"])
	assert.Equal(t, "Free-text search query", props["query"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["exact"].(map[string]any)["type"])
	assert.Equal(t, "array", props["filters"].(map[string]any)["type"])
	// Pointer fields resolve to the element type but are never required.
	assert.Equal(t, "string", props["cursor"].(map[string]any)["type"])

	assert.NotContains(t, props, "ignored")
	assert.NotContains(t, props, "Skipped")

	assert.Equal(t, []string{"query", "exact"}, schema["required"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateParameters_RequiredMissing(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	err := ValidateParameters(map[string]any{"exact": true}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "query", vErr.Field)
}

func TestValidateParameters_TypeMismatch(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	err := ValidateParameters(map[string]any{"query": 42, "exact": true}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "query", vErr.Field)
	assert.Contains(t, vErr.Message, "expected type string")
}

func TestValidateParameters_JSONDecodedNumbers(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	// JSON decoding turns every number into float64; whole values must
	// still satisfy integer fields.
	err := ValidateParameters(map[string]any{"query": "x", "exact": false, "limit": float64(5)}, schema)
	require.NoError(t, err)

	err = ValidateParameters(map[string]any{"query": "x", "exact": false, "limit": 5.5}, schema)
	require.Error(t, err)
}

func TestValidateParameters_RoundTrippedSchema(t *testing.T) {
	// A schema serialized and parsed back carries required as []any.
	raw, err := json.Marshal(CreateSchema(searchArgs{}))
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))

	err = ValidateParameters(map[string]any{"exact": true}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "query", vErr.Field)
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	schema := CreateSchema(searchArgs{})
	err := ValidateParameters(map[string]any{"query": "x", "exact": true, "unexpected": 1}, schema)
	require.NoError(t, err)
}
