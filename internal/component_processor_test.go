package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/tabula"
)

func newComponentProcessor(t *testing.T) (*ComponentProcessor, *stubSchemaRegistry) {
	t.Helper()
	registry := newTestRegistry()
	store := NewMemoryEntityStore()
	seedEntities(store, "api::city.city", []map[string]any{
		{"name": "New Delhi", "zip": "110001"}, // id 1
	})
	resolver := NewRelationResolver(registry, store)
	return NewComponentProcessor(registry, resolver), registry
}

func processOne(t *testing.T, processor *ComponentProcessor, registry *stubSchemaRegistry, row *tabula.Row) {
	t.Helper()
	schema, err := registry.Schema("api::country.country")
	require.NoError(t, err)
	processor.Process(context.Background(), []*tabula.Row{row}, schema)
}

func TestProcessSingleComponent(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"street": "MG Road",
		"city":   "Delhi",
		"zip":    "110001",
	}
	processOne(t, processor, registry, row)

	assert.Empty(t, row.Components, "captures must be consumed")
	value, ok := row.Values["headquarters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MG Road", value["street"])
	assert.Equal(t, "Delhi", value["city"])
	assert.Equal(t, int64(110001), value["zip"])
}

func TestProcessRepeatableCommaExpansion(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["addresses"] = map[string]string{
		"street": "A,B",
		"city":   "X",
	}
	processOne(t, processor, registry, row)

	entries, ok := row.Values["addresses"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, entries, 2, "the longest comma split decides the entry count")
	assert.Equal(t, "A", entries[0]["street"])
	assert.Equal(t, "X", entries[0]["city"])
	assert.Equal(t, "B", entries[1]["street"])
	_, hasCity := entries[1]["city"]
	assert.False(t, hasCity, "shorter splits leave later entries without the subfield")
}

func TestProcessRepeatableDropsEmptyEntries(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["addresses"] = map[string]string{
		"street": "A,,C",
		"city":   "X,,Z",
	}
	processOne(t, processor, registry, row)

	entries, ok := row.Values["addresses"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0]["street"])
	assert.Equal(t, "C", entries[1]["street"])
}

func TestProcessComponentRelationSubfield(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"street": "MG Road",
		"region": "New Delhi",
	}
	processOne(t, processor, registry, row)

	value, ok := row.Values["headquarters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), value["region"], "relation subfields resolve to identifiers")
}

func TestProcessComponentRelationExplicitSubfield(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"region.zip": "110001",
	}
	processOne(t, processor, registry, row)

	value, ok := row.Values["headquarters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), value["region"])
}

func TestProcessUnknownSubfieldIsBestEffort(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"street": "MG Road",
		"bogus":  "x",
	}
	processOne(t, processor, registry, row)

	value, ok := row.Values["headquarters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MG Road", value["street"])
	_, hasBogus := value["bogus"]
	assert.False(t, hasBogus)
	require.Len(t, row.Diagnostics, 1)
	assert.Contains(t, row.Diagnostics[0], "bogus")
}

func TestProcessCoercionFailureOmitsSubfield(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"street": "MG Road",
		"zip":    "not-a-zip",
	}
	processOne(t, processor, registry, row)

	value, ok := row.Values["headquarters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MG Road", value["street"])
	_, hasZip := value["zip"]
	assert.False(t, hasZip)
	assert.NotEmpty(t, row.Diagnostics)
}

func TestProcessAllSubfieldsFailLeavesFieldAbsent(t *testing.T) {
	processor, registry := newComponentProcessor(t)

	row := tabula.NewRow(1)
	row.Components["headquarters"] = map[string]string{
		"zip": "bad",
	}
	processOne(t, processor, registry, row)

	_, ok := row.Values["headquarters"]
	assert.False(t, ok)
	assert.Empty(t, row.Components)
}
