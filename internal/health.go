package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lychee-technology/tabula"
)

// ValidateDatabaseConfig performs basic sanity checks on database settings.
// An empty URL is valid and selects the in-memory store.
func ValidateDatabaseConfig(cfg tabula.DatabaseConfig) error {
	if cfg.URL != "" && cfg.TableName == "" {
		return fmt.Errorf("database.tableName is required when database.url is set")
	}
	return nil
}

// ValidateS3Config performs basic sanity checks on media store settings.
// An empty bucket is valid and selects the in-memory media store.
func ValidateS3Config(cfg tabula.S3Config) error {
	if cfg.Bucket == "" {
		return nil
	}
	if cfg.AccessKey != "" && cfg.SecretKey == "" {
		return fmt.Errorf("s3.accessKey provided without s3.secretKey")
	}
	if cfg.SecretKey != "" && cfg.AccessKey == "" {
		return fmt.Errorf("s3.secretKey provided without s3.accessKey")
	}
	return nil
}

// PostgresHealthCheck attempts to connect and ping a Postgres instance using
// a DSN. timeout may be 0 to use a sensible default (5s).
func PostgresHealthCheck(ctx context.Context, dsn string, timeout time.Duration) error {
	if dsn == "" {
		return fmt.Errorf("empty dsn")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// S3HealthCheck attempts a best-effort HTTP ping against a custom S3
// endpoint. It only succeeds for endpoints that accept anonymous HEAD
// requests (e.g. some MinIO setups); for AWS S3 it often returns 403 but
// still validates DNS resolution and TLS. Schemas without a custom endpoint
// are skipped.
func S3HealthCheck(ctx context.Context, cfg tabula.S3Config, timeout time.Duration) error {
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("s3 health request build failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("s3 endpoint unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
