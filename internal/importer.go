package internal

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// Importer persists fully-processed rows through the entity store with
// create-or-update semantics. Rows are independent units: a store failure is
// recorded against its row and processing continues, so partial success is
// the expected terminal state.
type Importer struct {
	store tabula.EntityStore
}

// NewImporter creates an importer over the given store.
func NewImporter(store tabula.EntityStore) *Importer {
	return &Importer{store: store}
}

// Import walks the rows in input order, chunked by opts.BatchSize (chunking
// affects only iteration granularity; persistence is always per row). With
// upsert enabled a row whose upsert-field value matches an existing entity is
// updated; a lookup miss falls through to create. A lookup error is also
// create-eligible, matching the store-agnostic upsert contract.
func (im *Importer) Import(ctx context.Context, schemaUID string, rows []*tabula.Row, opts tabula.ImportOptions) *tabula.ImportOutcome {
	opts.Normalize()
	outcome := &tabula.ImportOutcome{}

	for start := 0; start < len(rows); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			im.importRow(ctx, schemaUID, row, opts, outcome)
		}
	}

	zap.S().Infow("import finished",
		"schema", schemaUID, "created", outcome.Created, "updated", outcome.Updated, "failed", len(outcome.Errors))
	return outcome
}

func (im *Importer) importRow(ctx context.Context, schemaUID string, row *tabula.Row, opts tabula.ImportOptions, outcome *tabula.ImportOutcome) {
	if len(opts.MediaMappings) > 0 {
		attachMediaFields(row, opts.MediaMappings)
	}

	if opts.Upsert {
		if key := upsertKey(row, opts.UpsertField); key != nil {
			existing, err := im.store.FindMany(ctx, schemaUID, tabula.FindOptions{
				Filters: []tabula.Filter{{Field: opts.UpsertField, Op: tabula.OpEq, Value: key}},
				Limit:   1,
			})
			if err != nil {
				zap.S().Warnw("upsert lookup failed, falling back to create",
					"schema", schemaUID, "row", row.Index, "err", err)
			} else if len(existing) > 0 {
				if _, err := im.store.Update(ctx, schemaUID, existing[0].ID(), row.Values); err != nil {
					outcome.Errors = append(outcome.Errors, tabula.RowError{Row: row.Index, Message: err.Error()})
					return
				}
				outcome.Updated++
				return
			}
		}
	}

	if _, err := im.store.Create(ctx, schemaUID, row.Values); err != nil {
		outcome.Errors = append(outcome.Errors, tabula.RowError{Row: row.Index, Message: err.Error()})
		return
	}
	outcome.Created++
}

func upsertKey(row *tabula.Row, field string) any {
	value, ok := row.Values[field]
	if !ok || value == nil {
		return nil
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return value
}

// attachMediaFields binds previously uploaded assets to the row. Per mapping,
// the row's value at the mapping's match field is tested against three
// filename patterns combined with OR: exact stem ("<value>.<ext>"), numbered
// suffix ("<value>_<digits>.*") and plain prefix ("<value>*"). Survivors are
// sorted case-insensitively by filename and their identifiers written to the
// target field; no match leaves the field untouched.
func attachMediaFields(row *tabula.Row, mappings []tabula.MediaFieldMapping) {
	for _, mapping := range mappings {
		key, ok := row.Values[mapping.MatchField].(string)
		if !ok || key == "" {
			continue
		}

		var matched []tabula.UploadedFile
		numbered := regexp.MustCompile(`^` + regexp.QuoteMeta(key) + `_\d+\.`)
		for _, file := range mapping.Files {
			if matchesMediaKey(file.Name, key, numbered) {
				matched = append(matched, file)
			}
		}
		if len(matched) == 0 {
			continue
		}

		sort.Slice(matched, func(i, j int) bool {
			return strings.ToLower(matched[i].Name) < strings.ToLower(matched[j].Name)
		})
		ids := make([]any, len(matched))
		for i, file := range matched {
			ids[i] = file.ID
		}
		row.Values[mapping.Field] = ids
	}
}

func matchesMediaKey(name, key string, numbered *regexp.Regexp) bool {
	if stem(name) == key {
		return true
	}
	if numbered.MatchString(name) {
		return true
	}
	return strings.HasPrefix(name, key)
}

func stem(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
