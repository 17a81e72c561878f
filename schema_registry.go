package tabula

import "strings"

// AttributeType enumerates the declared value types an attribute can carry.
type AttributeType string

const (
	TypeString      AttributeType = "string"
	TypeInteger     AttributeType = "integer"
	TypeBigInteger  AttributeType = "biginteger"
	TypeDecimal     AttributeType = "decimal"
	TypeFloat       AttributeType = "float"
	TypeBoolean     AttributeType = "boolean"
	TypeDate        AttributeType = "date"
	TypeDateTime    AttributeType = "datetime"
	TypeTime        AttributeType = "time"
	TypeEmail       AttributeType = "email"
	TypeEnumeration AttributeType = "enumeration"
	TypeRelation    AttributeType = "relation"
	TypeComponent   AttributeType = "component"
	TypeMedia       AttributeType = "media"
)

// RelationKind enumerates the cardinalities of a relation attribute.
type RelationKind string

const (
	OneToOne   RelationKind = "oneToOne"
	ManyToOne  RelationKind = "manyToOne"
	OneToMany  RelationKind = "oneToMany"
	ManyToMany RelationKind = "manyToMany"
)

// Many reports whether the relation holds multiple targets.
func (k RelationKind) Many() bool { return k == OneToMany || k == ManyToMany }

// AttributeDescriptor is the schema metadata for one attribute of an entity
// type. Which fields are meaningful depends on Type: Enum applies to
// enumerations, RelationKind/Target to relations, Component/Repeatable to
// components.
type AttributeDescriptor struct {
	Type         AttributeType `json:"type"`
	Required     bool          `json:"required,omitempty"`
	Unique       bool          `json:"unique,omitempty"`
	Default      any           `json:"default,omitempty"`
	Enum         []string      `json:"enum,omitempty"`
	RelationKind RelationKind  `json:"relation,omitempty"`
	Target       string        `json:"target,omitempty"`
	Component    string        `json:"component,omitempty"`
	Repeatable   bool          `json:"repeatable,omitempty"`
}

// SchemaInfo holds the naming of an entity type.
type SchemaInfo struct {
	SingularName string `json:"singularName"`
	PluralName   string `json:"pluralName"`
	DisplayName  string `json:"displayName"`
}

// Schema describes one entity type. Attributes is keyed by attribute name;
// AttributeOrder preserves declaration order, which matters for export
// flattening. A Schema is immutable for the duration of an operation.
type Schema struct {
	UID            string                         `json:"uid"`
	Info           SchemaInfo                     `json:"info"`
	Attributes     map[string]AttributeDescriptor `json:"attributes"`
	AttributeOrder []string                       `json:"attributeOrder"`
}

// Attribute looks up a descriptor by name.
func (s *Schema) Attribute(name string) (AttributeDescriptor, bool) {
	attr, ok := s.Attributes[name]
	return attr, ok
}

// FirstAttributeName returns the first declared attribute name, or "".
func (s *Schema) FirstAttributeName() string {
	if len(s.AttributeOrder) == 0 {
		return ""
	}
	return s.AttributeOrder[0]
}

// MediaFields returns the names of media-typed attributes in declaration order.
func (s *Schema) MediaFields() []string {
	var fields []string
	for _, name := range s.AttributeOrder {
		if s.Attributes[name].Type == TypeMedia {
			fields = append(fields, name)
		}
	}
	return fields
}

// ApplicationNamespace prefixes the schema uids that are importable. Schemas
// outside this namespace (plugin or system types) are filtered from listings.
const ApplicationNamespace = "api::"

// IsImportable reports whether a schema uid belongs to the application
// namespace.
func IsImportable(uid string) bool { return strings.HasPrefix(uid, ApplicationNamespace) }

// SchemaRegistry provides read-only schema lookup. Implementations can load
// schemas from files, databases, or a remote admin API.
type SchemaRegistry interface {
	// Schema retrieves a schema by uid, importable or not.
	Schema(uid string) (*Schema, error)
	// Schemas lists the importable schemas in a stable order.
	Schemas() []*Schema
}
