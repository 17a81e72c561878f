package internal

import (
	"strings"

	"github.com/lychee-technology/tabula"
)

// MapHeaders parses raw CSV column names into field targets against the
// schema's attribute map. A plain name is valid iff the attribute exists. A
// dotted name must start with an existing attribute: for a relation the rest
// of the path (exactly one segment) names the lookup subfield, for a
// component the rest (one or more segments) names the subfield path inside
// the component schema. Everything else is invalid; invalidity is reported by
// the caller as a warning, never an error.
func MapHeaders(headers []string, schema *tabula.Schema) []tabula.HeaderMapping {
	mappings := make([]tabula.HeaderMapping, 0, len(headers))
	for _, header := range headers {
		mappings = append(mappings, mapHeader(header, schema))
	}
	return mappings
}

func mapHeader(header string, schema *tabula.Schema) tabula.HeaderMapping {
	segments := strings.Split(header, ".")
	if len(segments) == 1 {
		_, ok := schema.Attribute(header)
		return tabula.HeaderMapping{
			Header:      header,
			TargetField: header,
			Valid:       ok,
		}
	}

	base := segments[0]
	rest := segments[1:]
	mapping := tabula.HeaderMapping{
		Header:      header,
		TargetField: base,
		Dotted:      true,
	}

	attr, ok := schema.Attribute(base)
	if !ok {
		return mapping
	}

	switch attr.Type {
	case tabula.TypeRelation:
		if len(rest) != 1 {
			return mapping
		}
		mapping.Valid = true
		mapping.RelationSubfield = rest[0]
	case tabula.TypeComponent:
		mapping.Valid = true
		mapping.ComponentPath = strings.Join(rest, ".")
		mapping.ComponentSchema = attr.Component
	}

	return mapping
}
