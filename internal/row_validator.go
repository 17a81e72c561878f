package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lychee-technology/tabula"
)

// RowValidator turns raw CSV rows into typed, validated rows. File-level
// errors (empty file, unsatisfiable required attributes) reject the whole
// file before any row is processed; row-level errors exclude only the
// offending row. Unknown columns are aggregated into a single warning.
type RowValidator struct {
	registry tabula.SchemaRegistry
}

// NewRowValidator creates a validator backed by the given schema registry,
// used for the dot-notation target-field uniqueness check.
func NewRowValidator(registry tabula.SchemaRegistry) *RowValidator {
	return &RowValidator{registry: registry}
}

// Validate maps headers once from the supplied column order (falling back to
// the first row's keys), checks required coverage and relation subfield
// uniqueness, then coerces every row. Valid rows carry coerced values plus
// relation/component captures; invalid rows keep their original raw form.
func (v *RowValidator) Validate(headers []string, rows []tabula.RawRow, schema *tabula.Schema) *tabula.ValidationResult {
	result := &tabula.ValidationResult{}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "CSV file is empty or invalid")
		return result
	}

	if len(headers) == 0 {
		headers = firstRowKeys(rows[0])
	}
	mappings := MapHeaders(headers, schema)

	if missing := missingRequiredFields(schema, mappings); len(missing) > 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")))
		return result
	}

	if unknown := invalidHeaders(mappings); len(unknown) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Unknown fields ignored: %s", strings.Join(unknown, ", ")))
	}

	v.checkRelationSubfields(schema, mappings, result)

	for i, raw := range rows {
		row := tabula.NewRow(i + 1)
		var rowErrs []string

		for _, m := range mappings {
			if !m.Valid {
				continue
			}
			value, present := raw[m.Header]
			present = present && value != ""

			if m.Dotted {
				if !present {
					continue
				}
				if m.ComponentPath != "" {
					capture := row.Components[m.TargetField]
					if capture == nil {
						capture = make(map[string]string)
						row.Components[m.TargetField] = capture
					}
					capture[m.ComponentPath] = value
				} else {
					// Last writer wins when duplicate headers target the
					// same relation field.
					row.Relations[m.TargetField] = tabula.RelationCapture{
						Subfield: m.RelationSubfield,
						Value:    value,
					}
				}
				continue
			}

			attr, _ := schema.Attribute(m.TargetField)
			if attr.Type == tabula.TypeComponent {
				// Component data arrives only through dotted capture.
				continue
			}

			if !present {
				if attr.Required && attr.Default == nil {
					rowErrs = append(rowErrs, fmt.Sprintf("Required field %q is missing", m.TargetField))
				}
				continue
			}

			coerced, err := coerceValue(m.TargetField, attr, value)
			if err != nil {
				rowErrs = append(rowErrs, err.Error())
				continue
			}
			row.Values[m.TargetField] = coerced
		}

		if len(rowErrs) > 0 {
			for _, msg := range rowErrs {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row.Index, msg))
			}
			result.Invalid = append(result.Invalid, raw)
			continue
		}
		result.Valid = append(result.Valid, row)
	}

	return result
}

// checkRelationSubfields enforces the referential-integrity precondition:
// every relation used with dot-notation must target a field that exists and
// is unique on the target schema. A missing target schema is advisory only; a
// failing mapping is downgraded to invalid so its captures never reach the
// resolver.
func (v *RowValidator) checkRelationSubfields(schema *tabula.Schema, mappings []tabula.HeaderMapping, result *tabula.ValidationResult) {
	seen := make(map[string]bool)
	for i := range mappings {
		m := &mappings[i]
		if !m.Valid || m.RelationSubfield == "" {
			continue
		}
		if seen[m.Header] {
			continue
		}
		seen[m.Header] = true

		attr, _ := schema.Attribute(m.TargetField)
		target, err := v.registry.Schema(attr.Target)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Unknown target schema %q for relation field %q", attr.Target, m.TargetField))
			continue
		}

		sub, ok := target.Attribute(m.RelationSubfield)
		if !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Field %q does not exist on target schema %q", m.RelationSubfield, target.UID))
			m.Valid = false
			continue
		}
		if !sub.Unique {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Field %q on target schema %q must be unique for relation matching", m.RelationSubfield, target.UID))
			m.Valid = false
		}
	}
}

// missingRequiredFields returns the required, defaultless attributes that no
// valid mapping targets.
func missingRequiredFields(schema *tabula.Schema, mappings []tabula.HeaderMapping) []string {
	covered := make(map[string]bool)
	for _, m := range mappings {
		if m.Valid {
			covered[m.TargetField] = true
		}
	}
	var missing []string
	for _, name := range schema.AttributeOrder {
		attr := schema.Attributes[name]
		if attr.Required && attr.Default == nil && !covered[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func invalidHeaders(mappings []tabula.HeaderMapping) []string {
	var unknown []string
	for _, m := range mappings {
		if !m.Valid {
			unknown = append(unknown, m.Header)
		}
	}
	return unknown
}

func firstRowKeys(row tabula.RawRow) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
