package internal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// DisplayFieldStrategy picks the candidate fields used to match a relation
// value against a target schema when no explicit subfield was given. The
// default is a fixed priority list of common human-readable fields; the
// interface exists so a schema-driven strategy can replace it.
type DisplayFieldStrategy interface {
	Candidates(schema *tabula.Schema) []string
}

type commonDisplayFields struct{}

var commonFieldPriority = []string{"name", "title", "slug", "displayName", "label", "country"}

func (commonDisplayFields) Candidates(schema *tabula.Schema) []string {
	var candidates []string
	for _, name := range commonFieldPriority {
		if attr, ok := schema.Attribute(name); ok && attr.Type == tabula.TypeString {
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// RelationResolver converts human-readable relation values into target entity
// identifiers. Resolution is best-effort by design: a miss omits the field
// from the row and records a diagnostic, never an error.
type RelationResolver struct {
	registry tabula.SchemaRegistry
	store    tabula.EntityStore
	strategy DisplayFieldStrategy
}

// NewRelationResolver creates a resolver with the default display-field
// strategy.
func NewRelationResolver(registry tabula.SchemaRegistry, store tabula.EntityStore) *RelationResolver {
	return &RelationResolver{
		registry: registry,
		store:    store,
		strategy: commonDisplayFields{},
	}
}

// Resolve consumes the relation captures of every row in place. Single-valued
// relations become the target identifier; multi-valued relations become the
// list of resolved identifiers in input order. Unresolved references delete
// the field rather than writing a null.
func (r *RelationResolver) Resolve(ctx context.Context, rows []*tabula.Row, schema *tabula.Schema) {
	for _, name := range schema.AttributeOrder {
		attr := schema.Attributes[name]
		if attr.Type != tabula.TypeRelation {
			continue
		}
		target, err := r.registry.Schema(attr.Target)
		if err != nil {
			zap.S().Debugw("relation target schema unavailable", "field", name, "target", attr.Target)
			continue
		}
		for _, row := range rows {
			r.resolveField(ctx, row, name, attr, target)
		}
	}
}

func (r *RelationResolver) resolveField(ctx context.Context, row *tabula.Row, field string, attr tabula.AttributeDescriptor, target *tabula.Schema) {
	var raw, subfield string
	if capture, ok := row.Relations[field]; ok {
		raw, subfield = capture.Value, capture.Subfield
		delete(row.Relations, field)
	} else if value, ok := row.Values[field].(string); ok && value != "" {
		raw = value
	} else {
		return
	}

	if attr.RelationKind.Many() {
		var ids []any
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, found := r.findRelatedEntity(ctx, target, part, subfield); found {
				ids = append(ids, id)
			} else {
				row.Diagnostics = append(row.Diagnostics, fmt.Sprintf("relation %q: no match for %q", field, part))
			}
		}
		if len(ids) == 0 {
			delete(row.Values, field)
			return
		}
		row.Values[field] = ids
		return
	}

	if id, found := r.findRelatedEntity(ctx, target, raw, subfield); found {
		row.Values[field] = id
		return
	}
	row.Diagnostics = append(row.Diagnostics, fmt.Sprintf("relation %q: no match for %q", field, raw))
	delete(row.Values, field)
}

// findRelatedEntity locates one entity of the target schema by value. An
// explicit subfield takes precedence; a fully numeric value is then tried as
// an identifier; finally the display-field candidates are scanned exact-first
// with a single contains fallback on the first candidate. Store errors are
// treated as "not found" for the field.
func (r *RelationResolver) findRelatedEntity(ctx context.Context, target *tabula.Schema, value, subfield string) (any, bool) {
	if subfield != "" {
		if _, ok := target.Attribute(subfield); ok {
			if id, found := r.findOne(ctx, target.UID, subfield, tabula.OpEqCI, value); found {
				return id, true
			}
			return r.findOne(ctx, target.UID, subfield, tabula.OpContainsCI, value)
		}
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return r.findOne(ctx, target.UID, "id", tabula.OpEq, n)
	}

	candidates := r.strategy.Candidates(target)
	for _, field := range candidates {
		if id, found := r.findOne(ctx, target.UID, field, tabula.OpEqCI, value); found {
			return id, true
		}
	}
	if len(candidates) > 0 {
		return r.findOne(ctx, target.UID, candidates[0], tabula.OpContainsCI, value)
	}
	return nil, false
}

func (r *RelationResolver) findOne(ctx context.Context, schemaUID, field string, op tabula.FilterOp, value any) (any, bool) {
	entities, err := r.store.FindMany(ctx, schemaUID, tabula.FindOptions{
		Filters: []tabula.Filter{{Field: field, Op: op, Value: value}},
		Limit:   1,
	})
	if err != nil {
		zap.S().Debugw("relation lookup failed", "schema", schemaUID, "field", field, "err", err)
		return nil, false
	}
	if len(entities) == 0 {
		return nil, false
	}
	return entities[0].ID(), true
}
