package tabula

import "fmt"

// Entity is a persisted record as returned by an EntityStore: a flat map of
// attribute name to value. The store identifier lives under "id".
type Entity map[string]any

// ID returns the store identifier of the entity, or nil when unset.
func (e Entity) ID() any { return e["id"] }

// FilterOp defines supported per-field filter operators on an EntityStore.
type FilterOp string

const (
	OpEq         FilterOp = "$eq"        // exact match
	OpEqCI       FilterOp = "$eqi"       // case-insensitive exact match
	OpContainsCI FilterOp = "$containsi" // case-insensitive substring match
)

// Filter matches one field against a value with the given operator.
type Filter struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// FindOptions parameterizes an EntityStore lookup.
type FindOptions struct {
	Filters  []Filter `json:"filters,omitempty"`
	Populate bool     `json:"populate,omitempty"` // embed related entities and components
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// UploadedFile describes one asset persisted through a MediaStore.
type UploadedFile struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// FileInfo describes a file handed to a MediaStore for upload.
type FileInfo struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// MediaFieldMapping associates a media attribute with the assets extracted
// from one archive upload. MatchField names the row attribute whose value is
// matched against asset filenames during import.
type MediaFieldMapping struct {
	Field      string         `json:"field"`
	MatchField string         `json:"matchField"`
	Files      []UploadedFile `json:"files"`
}

// RowError reports a failure for a single imported row. Row is the 1-based
// data row index.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) String() string { return fmt.Sprintf("Row %d: %s", e.Row, e.Message) }

// ImportOutcome accumulates per-row persistence results. It is built
// incrementally and never rolled back.
type ImportOutcome struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// ImportOptions parameterizes an import run.
type ImportOptions struct {
	Upsert        bool                `json:"upsert"`
	UpsertField   string              `json:"upsertField"` // defaults to "id"
	BatchSize     int                 `json:"batchSize"`   // defaults to 100
	MediaMappings []MediaFieldMapping `json:"mediaMappings,omitempty"`
}

// Normalize applies option defaults in place.
func (o *ImportOptions) Normalize() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.UpsertField == "" {
		o.UpsertField = "id"
	}
}

// RawRow is one CSV data row as produced by the parser: raw column name to
// cell string. Rows may be ragged; missing keys are tolerated.
type RawRow map[string]string

// RelationCapture holds a dot-notation relation value awaiting resolution.
type RelationCapture struct {
	Subfield string `json:"subfield"`
	Value    string `json:"value"`
}

// Row is a validated row travelling through the pipeline. Coerced values live
// in Values; relation and component captures are carried alongside in their
// own maps so temporary state never collides with the field namespace. Both
// capture maps are consumed and emptied by the resolution stages.
type Row struct {
	Index       int                          // 1-based data row number
	Values      map[string]any               // target field -> coerced value
	Relations   map[string]RelationCapture   // target field -> pending relation capture
	Components  map[string]map[string]string // target field -> subfield path -> raw value
	Diagnostics []string                     // best-effort enrichment misses, never fatal
}

// NewRow returns an empty validated row for the given 1-based data index.
func NewRow(index int) *Row {
	return &Row{
		Index:      index,
		Values:     make(map[string]any),
		Relations:  make(map[string]RelationCapture),
		Components: make(map[string]map[string]string),
	}
}

// ValidationResult is the outcome of validating one CSV file. Errors holds
// file-level errors followed by row-level errors in input order; Warnings are
// advisory only. Invalid rows keep their original raw form.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Valid    []*Row   `json:"-"`
	Invalid  []RawRow `json:"invalidRows"`
}

// HasFileErrors reports whether the file was rejected before row processing.
func (r *ValidationResult) HasFileErrors() bool {
	return len(r.Errors) > 0 && len(r.Valid) == 0 && len(r.Invalid) == 0
}

// HeaderMapping describes how one raw CSV column name maps onto a schema
// attribute. Invalid mappings are reported as warnings by the validator and
// never written into a row.
type HeaderMapping struct {
	Header           string `json:"header"`
	TargetField      string `json:"targetField"`
	Valid            bool   `json:"valid"`
	Dotted           bool   `json:"dotted"`
	RelationSubfield string `json:"relationSubfield,omitempty"`
	ComponentPath    string `json:"componentPath,omitempty"`
	ComponentSchema  string `json:"componentSchema,omitempty"`
}
