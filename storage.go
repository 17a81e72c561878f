package tabula

import (
	"context"
	"io"
)

// EntityStore is the persistence collaborator. Each call is independent;
// the engine never opens a transaction across rows.
type EntityStore interface {
	Create(ctx context.Context, schemaUID string, data map[string]any) (Entity, error)
	Update(ctx context.Context, schemaUID string, id any, data map[string]any) (Entity, error)
	FindMany(ctx context.Context, schemaUID string, opts FindOptions) ([]Entity, error)
}

// MediaStore is the binary asset collaborator.
type MediaStore interface {
	Upload(ctx context.Context, info FileInfo, r io.Reader) (UploadedFile, error)
}

// ArchiveEntry is one file or directory inside an uploaded archive.
type ArchiveEntry struct {
	Path string
	Dir  bool
	Size int64
	Open func() (io.ReadCloser, error)
}

// ArchiveReader extracts the ordered entry list from raw archive bytes.
type ArchiveReader interface {
	Entries(data []byte) ([]ArchiveEntry, error)
}

// ImportEngine is the top-level facade over the row transformation pipeline,
// the media archive matcher and the export path.
type ImportEngine interface {
	// ImportCSV validates, resolves and persists the rows of one CSV file.
	// Validation findings and the persistence outcome are returned together;
	// a non-nil error means the file could not be processed at all.
	ImportCSV(ctx context.Context, schemaUID string, raw []byte, opts ImportOptions) (*ValidationResult, *ImportOutcome, error)

	// ExportCSV flattens persisted entities of the schema into CSV text.
	ExportCSV(ctx context.Context, schemaUID string, filters []Filter) ([]byte, error)

	// MapArchive extracts an archive, buckets its entries onto the schema's
	// media fields, uploads each unique asset once and returns the mappings.
	MapArchive(ctx context.Context, schemaUID string, archive []byte, matchField string) ([]MediaFieldMapping, error)

	// BulkUpload uploads every file entry of an archive as a new asset.
	BulkUpload(ctx context.Context, archive []byte) ([]UploadedFile, error)
}
