package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// schemaDocumentSchema validates schema definition files before load.
const schemaDocumentSchema = `{
  "type": "object",
  "required": ["uid", "attributes"],
  "properties": {
    "uid": {"type": "string", "minLength": 1},
    "info": {
      "type": "object",
      "properties": {
        "singularName": {"type": "string"},
        "pluralName": {"type": "string"},
        "displayName": {"type": "string"}
      }
    },
    "attributes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "required": {"type": "boolean"},
          "unique": {"type": "boolean"},
          "enum": {"type": "array", "items": {"type": "string"}},
          "relation": {"type": "string"},
          "target": {"type": "string"},
          "component": {"type": "string"},
          "repeatable": {"type": "boolean"}
        }
      }
    }
  }
}`

type schemaDocument struct {
	UID        string              `json:"uid"`
	Info       tabula.SchemaInfo   `json:"info"`
	Attributes []attributeDocument `json:"attributes"`
}

type attributeDocument struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	Unique     bool     `json:"unique"`
	Default    any      `json:"default"`
	Enum       []string `json:"enum"`
	Relation   string   `json:"relation"`
	Target     string   `json:"target"`
	Component  string   `json:"component"`
	Repeatable bool     `json:"repeatable"`
}

// fileSchemaRegistry loads schema definitions from *.schema.json documents in
// a directory. Attribute declaration order in the document is preserved, which
// is what makes "first declared attribute" well defined during export and
// relation display lookups.
type fileSchemaRegistry struct {
	schemas map[string]*tabula.Schema
}

// NewFileSchemaRegistry scans dir for *.schema.json files, validates each
// document against the built-in definition schema and builds the registry.
// Non-importable uids still load (they may be relation or component targets)
// but are excluded from Schemas listings.
func NewFileSchemaRegistry(dir string) (tabula.SchemaRegistry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.schema.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, tabula.NewEngineError(tabula.ErrCodeRegistryLoadFailed,
			fmt.Sprintf("no schema documents found in %s", dir))
	}
	sort.Strings(paths)

	var validator jsonschema.Schema
	if err := json.Unmarshal([]byte(schemaDocumentSchema), &validator); err != nil {
		return nil, fmt.Errorf("parse definition schema: %w", err)
	}
	resolved, err := validator.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve definition schema: %w", err)
	}

	registry := &fileSchemaRegistry{schemas: make(map[string]*tabula.Schema, len(paths))}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema document %s: %w", path, err)
		}

		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse schema document %s: %w", path, err)
		}
		if err := resolved.Validate(raw); err != nil {
			return nil, tabula.NewEngineError(tabula.ErrCodeRegistryLoadFailed,
				fmt.Sprintf("invalid schema document %s", filepath.Base(path))).WithCause(err)
		}

		var doc schemaDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode schema document %s: %w", path, err)
		}
		schema := buildSchema(doc)
		registry.schemas[schema.UID] = schema
		zap.S().Debugw("schema loaded", "uid", schema.UID, "attributes", len(schema.AttributeOrder))
	}
	return registry, nil
}

func buildSchema(doc schemaDocument) *tabula.Schema {
	schema := &tabula.Schema{
		UID:        doc.UID,
		Info:       doc.Info,
		Attributes: make(map[string]tabula.AttributeDescriptor, len(doc.Attributes)),
	}
	for _, attr := range doc.Attributes {
		schema.Attributes[attr.Name] = tabula.AttributeDescriptor{
			Type:         tabula.AttributeType(strings.ToLower(attr.Type)),
			Required:     attr.Required,
			Unique:       attr.Unique,
			Default:      attr.Default,
			Enum:         attr.Enum,
			RelationKind: tabula.RelationKind(attr.Relation),
			Target:       attr.Target,
			Component:    attr.Component,
			Repeatable:   attr.Repeatable,
		}
		schema.AttributeOrder = append(schema.AttributeOrder, attr.Name)
	}
	return schema
}

func (r *fileSchemaRegistry) Schema(uid string) (*tabula.Schema, error) {
	schema, ok := r.schemas[uid]
	if !ok {
		return nil, tabula.NewSchemaNotFoundError(uid)
	}
	return schema, nil
}

func (r *fileSchemaRegistry) Schemas() []*tabula.Schema {
	var out []*tabula.Schema
	for _, schema := range r.schemas {
		if tabula.IsImportable(schema.UID) {
			out = append(out, schema)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
