package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeadersPlain(t *testing.T) {
	registry := newTestRegistry()
	schema, err := registry.Schema("api::country.country")
	require.NoError(t, err)

	mappings := MapHeaders([]string{"name", "population", "nonsense"}, schema)
	require.Len(t, mappings, 3)

	assert.True(t, mappings[0].Valid)
	assert.Equal(t, "name", mappings[0].TargetField)
	assert.False(t, mappings[0].Dotted)

	assert.True(t, mappings[1].Valid)
	assert.False(t, mappings[2].Valid)
}

func TestMapHeadersRelationDotNotation(t *testing.T) {
	registry := newTestRegistry()
	schema, _ := registry.Schema("api::country.country")

	mappings := MapHeaders([]string{"capital.name", "capital.name.extra", "missing.name"}, schema)

	assert.True(t, mappings[0].Valid)
	assert.Equal(t, "capital", mappings[0].TargetField)
	assert.Equal(t, "name", mappings[0].RelationSubfield)
	assert.True(t, mappings[0].Dotted)

	// a relation accepts exactly one subfield segment
	assert.False(t, mappings[1].Valid)
	// unknown base attribute
	assert.False(t, mappings[2].Valid)
}

func TestMapHeadersComponentDotNotation(t *testing.T) {
	registry := newTestRegistry()
	schema, _ := registry.Schema("api::country.country")

	mappings := MapHeaders([]string{"addresses.street", "addresses.region.name"}, schema)

	assert.True(t, mappings[0].Valid)
	assert.Equal(t, "addresses", mappings[0].TargetField)
	assert.Equal(t, "street", mappings[0].ComponentPath)
	assert.Equal(t, "shared.address", mappings[0].ComponentSchema)

	// deeper paths stay joined for the component processor
	assert.True(t, mappings[1].Valid)
	assert.Equal(t, "region.name", mappings[1].ComponentPath)
}

func TestMapHeadersDottedScalarIsInvalid(t *testing.T) {
	registry := newTestRegistry()
	schema, _ := registry.Schema("api::country.country")

	mappings := MapHeaders([]string{"population.count"}, schema)
	assert.False(t, mappings[0].Valid)
}
