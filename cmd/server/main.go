package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/internal"
)

// Server wires the import engine behind an HTTP API.
type Server struct {
	engine   tabula.ImportEngine
	registry tabula.SchemaRegistry
	router   chi.Router
	maxBytes int64
}

// NewServer creates a new Server instance.
func NewServer(engine tabula.ImportEngine, registry tabula.SchemaRegistry, maxBytes int64) *Server {
	s := &Server{
		engine:   engine,
		registry: registry,
		router:   chi.NewRouter(),
		maxBytes: maxBytes,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/schemas", s.handleListSchemas)
		r.Post("/import/{schema}", s.handleImport)
		r.Get("/export/{schema}", s.handleExport)
		r.Post("/media/{schema}", s.handleMapArchive)
		r.Post("/media", s.handleBulkUpload)
	})
}

// Start starts the HTTP server on the given port.
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.router)
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	cfg := loadConfig()
	sugar.Infow("configuration loaded", "schemaDir", cfg.Import.SchemaDir, "table", cfg.Database.TableName)

	if err := internal.ValidateDatabaseConfig(cfg.Database); err != nil {
		sugar.Fatalf("invalid database configuration: %v", err)
	}
	if err := internal.ValidateS3Config(cfg.S3); err != nil {
		sugar.Fatalf("invalid s3 configuration: %v", err)
	}
	if err := internal.S3HealthCheck(context.Background(), cfg.S3, 0); err != nil {
		sugar.Warnw("s3 endpoint check failed", "error", err)
	}

	registry, err := internal.NewFileSchemaRegistry(cfg.Import.SchemaDir)
	if err != nil {
		sugar.Fatalf("failed to create schema registry: %v", err)
	}

	store, cleanup, err := buildEntityStore(cfg, registry)
	if err != nil {
		sugar.Fatalf("failed to create entity store: %v", err)
	}
	defer cleanup()

	media, err := buildMediaStore(cfg)
	if err != nil {
		sugar.Fatalf("failed to create media store: %v", err)
	}

	engine := internal.NewImportEngine(registry, store, media,
		internal.WithExportLimit(cfg.Import.ExportLimit))

	server := NewServer(engine, registry, cfg.Import.MaxUploadBytes)
	if err := server.Start(cfg.Server.Port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig reads runtime settings from the environment on top of the
// built-in defaults.
func loadConfig() tabula.Config {
	cfg := tabula.DefaultConfig()
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
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
	cfg.Import.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(cfg.Import.MaxUploadBytes)))
	return cfg
}

// buildEntityStore selects Postgres when a connection URL is configured and
// falls back to the in-memory store otherwise.
func buildEntityStore(cfg tabula.Config, registry tabula.SchemaRegistry) (tabula.EntityStore, func(), error) {
	if cfg.Database.URL == "" {
		zap.S().Infow("no database configured, using in-memory entity store")
		return internal.NewMemoryEntityStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	store := internal.NewPostgresEntityStore(pool, registry, cfg.Database.TableName)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// buildMediaStore selects S3 when a bucket is configured and falls back to
// the in-memory media store otherwise.
func buildMediaStore(cfg tabula.Config) (tabula.MediaStore, error) {
	if cfg.S3.Bucket == "" {
		zap.S().Infow("no bucket configured, using in-memory media store")
		return internal.NewMemoryMediaStore(), nil
	}
	return internal.NewS3MediaStore(context.Background(), cfg.S3)
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
