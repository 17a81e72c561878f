package internal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lychee-technology/tabula"
)

// exportMaxEntities caps how many entities a single export fetches.
const exportMaxEntities = 1000

// internalMarkerPrefix marks store-internal keys that never reach a CSV.
const internalMarkerPrefix = "__"

var bookkeepingFields = map[string]bool{"createdAt": true, "updatedAt": true}

// Exporter inverts the import flattening: persisted entities with populated
// relations and components become flat CSV rows with dot-notation column
// names.
type Exporter struct {
	registry tabula.SchemaRegistry
	store    tabula.EntityStore
	limit    int
}

// NewExporter creates an exporter; limit <= 0 selects the default ceiling.
func NewExporter(registry tabula.SchemaRegistry, store tabula.EntityStore, limit int) *Exporter {
	if limit <= 0 || limit > exportMaxEntities {
		limit = exportMaxEntities
	}
	return &Exporter{registry: registry, store: store, limit: limit}
}

// Export fetches the schema's entities (caller filters passed through
// verbatim, relations and components populated) and renders them as CSV. The
// column set is the union of flattened keys across all rows in first-seen
// order; repeatable components expand to "field.<index>.<subfield>" with a
// 1-based index, relations collapse to "field.<firstDeclaredAttr>".
func (e *Exporter) Export(ctx context.Context, schema *tabula.Schema, filters []tabula.Filter) ([]byte, error) {
	entities, err := e.store.FindMany(ctx, schema.UID, tabula.FindOptions{
		Filters:  filters,
		Populate: true,
		Limit:    e.limit,
	})
	if err != nil {
		return nil, tabula.NewEngineError(tabula.ErrCodeExportFailed, "fetch entities").WithCause(err)
	}

	var columns []string
	seen := NewSet[string]()
	flat := make([]map[string]string, 0, len(entities))

	for _, entity := range entities {
		row := make(map[string]string)
		var order []string
		add := func(key, value string) {
			if strings.HasPrefix(key, internalMarkerPrefix) {
				return
			}
			row[key] = value
			order = append(order, key)
		}

		e.flattenEntity(entity, schema, add)
		flat = append(flat, row)
		for _, key := range order {
			if !seen.Contains(key) {
				seen.Add(key)
				columns = append(columns, key)
			}
		}
	}

	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(escapeCell(col))
	}
	sb.WriteByte('\n')
	for _, row := range flat {
		for i, col := range columns {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(escapeCell(row[col]))
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

func (e *Exporter) flattenEntity(entity tabula.Entity, schema *tabula.Schema, add func(key, value string)) {
	if id, ok := entity["id"]; ok {
		add("id", formatScalar(id))
	}

	for _, name := range schema.AttributeOrder {
		if bookkeepingFields[name] {
			continue
		}
		attr := schema.Attributes[name]
		value, ok := entity[name]
		if !ok || value == nil {
			continue
		}

		switch attr.Type {
		case tabula.TypeComponent:
			e.flattenComponent(name, attr, value, add)
		case tabula.TypeRelation:
			e.flattenRelation(name, attr, value, add)
		case tabula.TypeMedia:
			// populated media values are objects, never exported
		default:
			if scalar, ok := formatIfScalar(value); ok {
				add(name, scalar)
			}
		}
	}
}

func (e *Exporter) flattenComponent(field string, attr tabula.AttributeDescriptor, value any, add func(key, value string)) {
	if attr.Repeatable {
		items, ok := value.([]any)
		if !ok {
			if typed, tok := value.([]map[string]any); tok {
				items = make([]any, len(typed))
				for i, item := range typed {
					items[i] = item
				}
			} else {
				return
			}
		}
		for i, item := range items {
			entry, ok := asMap(item)
			if !ok {
				continue
			}
			flattenComponentEntry(fmt.Sprintf("%s.%d", field, i+1), entry, add)
		}
		return
	}
	if entry, ok := asMap(value); ok {
		flattenComponentEntry(field, entry, add)
	}
}

func flattenComponentEntry(prefix string, entry map[string]any, add func(key, value string)) {
	// deterministic column order within a component
	keys := MapKeys(entry)
	sort.Strings(keys)
	for _, key := range keys {
		if key == "id" || strings.HasPrefix(key, internalMarkerPrefix) {
			continue
		}
		if scalar, ok := formatIfScalar(entry[key]); ok {
			add(prefix+"."+key, scalar)
		}
	}
}

func (e *Exporter) flattenRelation(field string, attr tabula.AttributeDescriptor, value any, add func(key, value string)) {
	column := field
	display := ""
	if target, err := e.registry.Schema(attr.Target); err == nil {
		display = target.FirstAttributeName()
	}
	if display != "" {
		column = field + "." + display
	}

	if attr.RelationKind.Many() {
		items, ok := value.([]any)
		if !ok {
			return
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, relationDisplayValue(item, display))
		}
		add(column, strings.Join(parts, ", "))
		return
	}
	add(column, relationDisplayValue(value, display))
}

// relationDisplayValue extracts the related entity's display value: the
// target's first declared attribute, then name/title/displayName, then the
// identifier.
func relationDisplayValue(value any, firstAttr string) string {
	related, ok := asMap(value)
	if !ok {
		return formatScalar(value)
	}
	if firstAttr != "" {
		if v, ok := related[firstAttr]; ok && v != nil {
			return formatScalar(v)
		}
	}
	for _, fallback := range []string{"name", "title", "displayName", "id"} {
		if v, ok := related[fallback]; ok && v != nil {
			return formatScalar(v)
		}
	}
	return ""
}

// asMap unwraps both plain maps and store Entity values.
func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case tabula.Entity:
		return v, true
	}
	return nil, false
}

func formatIfScalar(value any) (string, bool) {
	switch value.(type) {
	case map[string]any, tabula.Entity, []any, []map[string]any:
		return "", false
	}
	return formatScalar(value), true
}

func formatScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escapeCell wraps cells containing a comma or double-quote in quotes,
// doubling internal quotes.
func escapeCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}
