package internal

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/lychee-technology/tabula"
)

type stubSchemaRegistry struct {
	schemas map[string]*tabula.Schema
}

func (s *stubSchemaRegistry) Schema(uid string) (*tabula.Schema, error) {
	schema, ok := s.schemas[uid]
	if !ok {
		return nil, fmt.Errorf("schema %s not found", uid)
	}
	return schema, nil
}

func (s *stubSchemaRegistry) Schemas() []*tabula.Schema {
	var out []*tabula.Schema
	for _, schema := range s.schemas {
		if tabula.IsImportable(schema.UID) {
			out = append(out, schema)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func makeSchema(uid string, names []string, attrs map[string]tabula.AttributeDescriptor) *tabula.Schema {
	return &tabula.Schema{
		UID:            uid,
		Attributes:     attrs,
		AttributeOrder: names,
	}
}

// newTestRegistry builds the fixture universe: countries with typed scalar
// attributes, relations to cities and tags, a repeatable address component
// and media fields.
func newTestRegistry() *stubSchemaRegistry {
	country := makeSchema("api::country.country",
		[]string{"name", "code", "population", "active", "founded", "contact", "continent", "capital", "tags", "headquarters", "addresses", "photos", "createdAt"},
		map[string]tabula.AttributeDescriptor{
			"name":       {Type: tabula.TypeString, Required: true, Unique: true},
			"code":       {Type: tabula.TypeString, Unique: true},
			"population": {Type: tabula.TypeInteger},
			"active":     {Type: tabula.TypeBoolean},
			"founded":    {Type: tabula.TypeDate},
			"contact":    {Type: tabula.TypeEmail},
			"continent":  {Type: tabula.TypeEnumeration, Enum: []string{"Asia", "Europe"}},
			"capital":    {Type: tabula.TypeRelation, RelationKind: tabula.ManyToOne, Target: "api::city.city"},
			"tags":       {Type: tabula.TypeRelation, RelationKind: tabula.ManyToMany, Target: "api::tag.tag"},
			"headquarters": {
				Type: tabula.TypeComponent, Component: "shared.address",
			},
			"addresses": {
				Type: tabula.TypeComponent, Component: "shared.address", Repeatable: true,
			},
			"photos":    {Type: tabula.TypeMedia},
			"createdAt": {Type: tabula.TypeDateTime},
		})

	city := makeSchema("api::city.city",
		[]string{"name", "zip"},
		map[string]tabula.AttributeDescriptor{
			"name": {Type: tabula.TypeString, Unique: true},
			"zip":  {Type: tabula.TypeString},
		})

	tag := makeSchema("api::tag.tag",
		[]string{"name", "color"},
		map[string]tabula.AttributeDescriptor{
			"name":  {Type: tabula.TypeString, Unique: true},
			"color": {Type: tabula.TypeString},
		})

	address := makeSchema("shared.address",
		[]string{"street", "city", "zip", "region"},
		map[string]tabula.AttributeDescriptor{
			"street": {Type: tabula.TypeString},
			"city":   {Type: tabula.TypeString},
			"zip":    {Type: tabula.TypeInteger},
			"region": {Type: tabula.TypeRelation, RelationKind: tabula.ManyToOne, Target: "api::city.city"},
		})

	return &stubSchemaRegistry{schemas: map[string]*tabula.Schema{
		country.UID: country,
		city.UID:    city,
		tag.UID:     tag,
		address.UID: address,
	}}
}

// failingEntityStore errors on every call; used to exercise store-failure
// paths.
type failingEntityStore struct{}

func (failingEntityStore) Create(ctx context.Context, schemaUID string, data map[string]any) (tabula.Entity, error) {
	return nil, fmt.Errorf("store down")
}

func (failingEntityStore) Update(ctx context.Context, schemaUID string, id any, data map[string]any) (tabula.Entity, error) {
	return nil, fmt.Errorf("store down")
}

func (failingEntityStore) FindMany(ctx context.Context, schemaUID string, opts tabula.FindOptions) ([]tabula.Entity, error) {
	return nil, fmt.Errorf("store down")
}

// lookupFailingStore delegates to a working store but fails FindMany, used
// for the upsert fallback path.
type lookupFailingStore struct {
	*MemoryEntityStore
}

func (s lookupFailingStore) FindMany(ctx context.Context, schemaUID string, opts tabula.FindOptions) ([]tabula.Entity, error) {
	return nil, fmt.Errorf("lookup unavailable")
}

// failingMediaStore errors on every upload.
type failingMediaStore struct{}

func (failingMediaStore) Upload(ctx context.Context, info tabula.FileInfo, r io.Reader) (tabula.UploadedFile, error) {
	return tabula.UploadedFile{}, fmt.Errorf("bucket down")
}

// seedEntities loads fixture rows into a memory store.
func seedEntities(store *MemoryEntityStore, schemaUID string, rows []map[string]any) {
	for _, row := range rows {
		store.Create(context.Background(), schemaUID, row)
	}
}
