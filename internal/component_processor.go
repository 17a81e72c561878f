package internal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// ComponentProcessor reconstructs component (nested-record) values from the
// flattened dot-notation captures stashed by the validator. Subfields are
// coerced against the component's own schema; relation subfields resolve
// through the shared lookup. Failures inside a component are best-effort: the
// subfield is omitted and a diagnostic recorded.
type ComponentProcessor struct {
	registry tabula.SchemaRegistry
	resolver *RelationResolver
}

// NewComponentProcessor creates a processor sharing the resolver's relation
// lookup.
func NewComponentProcessor(registry tabula.SchemaRegistry, resolver *RelationResolver) *ComponentProcessor {
	return &ComponentProcessor{registry: registry, resolver: resolver}
}

// Process consumes every component capture of every row in place. Repeatable
// components comma-expand: the longest comma-split among the captured
// subfields decides the entry count, entry i takes the i-th segment of each
// subfield, empty segments count as absent, and entries with no populated
// subfields are dropped. The capture is discarded whether or not a value was
// produced.
func (p *ComponentProcessor) Process(ctx context.Context, rows []*tabula.Row, schema *tabula.Schema) {
	for _, name := range schema.AttributeOrder {
		attr := schema.Attributes[name]
		if attr.Type != tabula.TypeComponent {
			continue
		}
		nested, err := p.registry.Schema(attr.Component)
		if err != nil {
			zap.S().Debugw("component schema unavailable", "field", name, "component", attr.Component)
			for _, row := range rows {
				delete(row.Components, name)
			}
			continue
		}
		for _, row := range rows {
			capture, ok := row.Components[name]
			delete(row.Components, name)
			if !ok || len(capture) == 0 {
				continue
			}
			if attr.Repeatable {
				if entries := p.buildRepeatable(ctx, row, name, capture, nested); len(entries) > 0 {
					row.Values[name] = entries
				}
				continue
			}
			if value := p.buildOne(ctx, row, name, capture, nested); len(value) > 0 {
				row.Values[name] = value
			}
		}
	}
}

func (p *ComponentProcessor) buildRepeatable(ctx context.Context, row *tabula.Row, field string, capture map[string]string, nested *tabula.Schema) []map[string]any {
	split := make(map[string][]string, len(capture))
	count := 0
	for path, raw := range capture {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		split[path] = parts
		if len(parts) > count {
			count = len(parts)
		}
	}

	var entries []map[string]any
	for i := 0; i < count; i++ {
		entry := make(map[string]string)
		for path, parts := range split {
			if i < len(parts) && parts[i] != "" {
				entry[path] = parts[i]
			}
		}
		if len(entry) == 0 {
			continue
		}
		if value := p.buildOne(ctx, row, field, entry, nested); len(value) > 0 {
			entries = append(entries, value)
		}
	}
	return entries
}

// buildOne coerces one subfield->raw map into a component value. Deeper
// dotted subpaths on a relation subfield act as the explicit lookup subfield.
func (p *ComponentProcessor) buildOne(ctx context.Context, row *tabula.Row, field string, capture map[string]string, nested *tabula.Schema) map[string]any {
	value := make(map[string]any)
	for path, raw := range capture {
		segments := strings.SplitN(path, ".", 2)
		subfield := segments[0]
		attr, ok := nested.Attribute(subfield)
		if !ok {
			row.Diagnostics = append(row.Diagnostics,
				fmt.Sprintf("component %q: unknown subfield %q", field, subfield))
			continue
		}

		if attr.Type == tabula.TypeRelation {
			explicit := ""
			if len(segments) == 2 {
				explicit = segments[1]
			}
			target, err := p.registry.Schema(attr.Target)
			if err != nil {
				row.Diagnostics = append(row.Diagnostics,
					fmt.Sprintf("component %q: relation %q target unavailable", field, subfield))
				continue
			}
			if id, found := p.resolver.findRelatedEntity(ctx, target, raw, explicit); found {
				value[subfield] = id
			} else {
				row.Diagnostics = append(row.Diagnostics,
					fmt.Sprintf("component %q: relation %q has no match for %q", field, subfield, raw))
			}
			continue
		}

		coerced, err := coerceValue(subfield, attr, raw)
		if err != nil {
			row.Diagnostics = append(row.Diagnostics,
				fmt.Sprintf("component %q: %s", field, err.Error()))
			continue
		}
		value[subfield] = coerced
	}
	return value
}
