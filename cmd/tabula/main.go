package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/factory"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads runtime settings from the environment on top of the
// built-in defaults.
func loadConfig() tabula.Config {
	cfg := tabula.DefaultConfig()
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.TableName = getEnv("ENTITY_TABLE", cfg.Database.TableName)
	cfg.S3.Bucket = getEnv("S3_BUCKET", "")
	cfg.S3.Region = getEnv("S3_REGION", "")
	cfg.S3.Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3.AccessKey = getEnv("S3_ACCESS_KEY", "")
	cfg.S3.SecretKey = getEnv("S3_SECRET_KEY", "")
	cfg.S3.KeyPrefix = getEnv("S3_KEY_PREFIX", "")
	cfg.S3.BaseURL = getEnv("S3_BASE_URL", "")
	cfg.Import.SchemaDir = getEnv("SCHEMA_DIR", cfg.Import.SchemaDir)
	cfg.Import.BatchSize = getEnvInt("IMPORT_BATCH_SIZE", cfg.Import.BatchSize)
	cfg.Import.ExportLimit = getEnvInt("EXPORT_LIMIT", cfg.Import.ExportLimit)
	return cfg
}

// buildEngine wires an engine from config. dryRun forces in-memory stores so
// nothing reaches the configured database or bucket.
func buildEngine(cfg tabula.Config, dryRun bool) (tabula.ImportEngine, tabula.SchemaRegistry, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup := func() {}
	var pool *pgxpool.Pool
	if dryRun {
		cfg.Database.URL = ""
		cfg.S3.Bucket = ""
	}
	if cfg.Database.URL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		cleanup = pool.Close
	}

	engine, registry, err := factory.NewImportEngineWithConfig(ctx, cfg, pool)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return engine, registry, cleanup, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
