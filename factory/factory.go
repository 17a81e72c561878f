package factory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/internal"
)

// NewImportEngineWithConfig creates an ImportEngine with the provided
// configuration and database pool. This is the primary way for external
// projects to embed the engine.
//
// Schemas are loaded from config.Import.SchemaDir. A nil pool selects the
// in-memory entity store; an empty S3 bucket selects the in-memory media
// store.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/tabula"
//	    "github.com/lychee-technology/tabula/factory"
//	)
//
//	config := tabula.DefaultConfig()
//	config.Import.SchemaDir = "./schemas"
//	engine, registry, err := factory.NewImportEngineWithConfig(ctx, config, pool)
//	if err != nil {
//	    // handle error
//	}
func NewImportEngineWithConfig(ctx context.Context, cfg tabula.Config, pool *pgxpool.Pool) (tabula.ImportEngine, tabula.SchemaRegistry, error) {
	if err := internal.ValidateDatabaseConfig(cfg.Database); err != nil {
		return nil, nil, err
	}
	if err := internal.ValidateS3Config(cfg.S3); err != nil {
		return nil, nil, err
	}

	registry, err := internal.NewFileSchemaRegistry(cfg.Import.SchemaDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load schemas: %w", err)
	}
	zap.S().Infow("schemas loaded", "dir", cfg.Import.SchemaDir, "importable", len(registry.Schemas()))

	var store tabula.EntityStore
	if pool != nil {
		pgStore := internal.NewPostgresEntityStore(pool, registry, cfg.Database.TableName)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure entity table: %w", err)
		}
		store = pgStore
	} else {
		store = internal.NewMemoryEntityStore()
	}

	var media tabula.MediaStore
	if cfg.S3.Bucket != "" {
		media, err = internal.NewS3MediaStore(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("create media store: %w", err)
		}
	} else {
		media = internal.NewMemoryMediaStore()
	}

	engine := internal.NewImportEngine(registry, store, media,
		internal.WithExportLimit(cfg.Import.ExportLimit))
	return engine, registry, nil
}
