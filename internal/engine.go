package internal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// importEngine wires the pipeline stages over the injected collaborators.
// Rows are processed sequentially; each row runs coercion, relation
// resolution, component assembly and persistence to completion before the
// next begins, so per-row outcomes stay in input order.
type importEngine struct {
	registry  tabula.SchemaRegistry
	store     tabula.EntityStore
	validator *RowValidator
	resolver  *RelationResolver
	processor *ComponentProcessor
	importer  *Importer
	exporter  *Exporter
	matcher   *MediaMatcher
}

// Option customizes an engine at construction time.
type Option func(*engineOptions)

type engineOptions struct {
	exportLimit   int
	archiveReader tabula.ArchiveReader
}

// WithExportLimit overrides the export fetch ceiling.
func WithExportLimit(limit int) Option {
	return func(o *engineOptions) { o.exportLimit = limit }
}

// WithArchiveReader replaces the default zip reader.
func WithArchiveReader(reader tabula.ArchiveReader) Option {
	return func(o *engineOptions) { o.archiveReader = reader }
}

// NewImportEngine builds the engine from its three collaborators.
func NewImportEngine(registry tabula.SchemaRegistry, store tabula.EntityStore, media tabula.MediaStore, opts ...Option) tabula.ImportEngine {
	options := engineOptions{archiveReader: ZipArchiveReader{}}
	for _, opt := range opts {
		opt(&options)
	}

	resolver := NewRelationResolver(registry, store)
	return &importEngine{
		registry:  registry,
		store:     store,
		validator: NewRowValidator(registry),
		resolver:  resolver,
		processor: NewComponentProcessor(registry, resolver),
		importer:  NewImporter(store),
		exporter:  NewExporter(registry, store, options.exportLimit),
		matcher:   NewMediaMatcher(media, options.archiveReader),
	}
}

func (e *importEngine) ImportCSV(ctx context.Context, schemaUID string, raw []byte, opts tabula.ImportOptions) (*tabula.ValidationResult, *tabula.ImportOutcome, error) {
	schema, err := e.importableSchema(schemaUID)
	if err != nil {
		return nil, nil, err
	}

	headers, rows, err := ParseCSV(raw)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	stage := start
	result := e.validator.Validate(headers, rows, schema)
	EmitStageLatency(ctx, "validate", time.Since(stage).Milliseconds())
	zap.S().Debugw("csv validated",
		"schema", schemaUID, "rows", len(rows), "valid", len(result.Valid),
		"errors", len(result.Errors), "warnings", len(result.Warnings))

	if len(result.Valid) == 0 {
		return result, &tabula.ImportOutcome{}, nil
	}

	stage = time.Now()
	e.resolver.Resolve(ctx, result.Valid, schema)
	e.processor.Process(ctx, result.Valid, schema)
	EmitStageLatency(ctx, "enrich", time.Since(stage).Milliseconds())

	stage = time.Now()
	outcome := e.importer.Import(ctx, schemaUID, result.Valid, opts)
	EmitStageLatency(ctx, "persist", time.Since(stage).Milliseconds())
	EmitRowCount(ctx, schemaUID, int64(len(result.Valid)))
	zap.S().Infow("import complete",
		"schema", schemaUID, "created", outcome.Created, "updated", outcome.Updated,
		"failed", len(outcome.Errors), "duration", time.Since(start))
	return result, outcome, nil
}

func (e *importEngine) ExportCSV(ctx context.Context, schemaUID string, filters []tabula.Filter) ([]byte, error) {
	schema, err := e.importableSchema(schemaUID)
	if err != nil {
		return nil, err
	}
	return e.exporter.Export(ctx, schema, filters)
}

func (e *importEngine) MapArchive(ctx context.Context, schemaUID string, archive []byte, matchField string) ([]tabula.MediaFieldMapping, error) {
	schema, err := e.importableSchema(schemaUID)
	if err != nil {
		return nil, err
	}
	return e.matcher.MapArchive(ctx, archive, schema, matchField)
}

func (e *importEngine) BulkUpload(ctx context.Context, archive []byte) ([]tabula.UploadedFile, error) {
	return e.matcher.BulkUpload(ctx, archive)
}

func (e *importEngine) importableSchema(uid string) (*tabula.Schema, error) {
	if !tabula.IsImportable(uid) {
		return nil, tabula.NewSchemaNotImportableError(uid)
	}
	schema, err := e.registry.Schema(uid)
	if err != nil {
		return nil, tabula.NewSchemaNotFoundError(uid).WithCause(err)
	}
	return schema, nil
}
