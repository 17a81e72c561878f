package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/tabula"
)

func TestValidateDatabaseConfig(t *testing.T) {
	assert.NoError(t, ValidateDatabaseConfig(tabula.DatabaseConfig{}))
	assert.NoError(t, ValidateDatabaseConfig(tabula.DatabaseConfig{
		URL:       "postgres://localhost/tabula",
		TableName: "tabula_entities",
	}))

	err := ValidateDatabaseConfig(tabula.DatabaseConfig{URL: "postgres://localhost/tabula"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tableName")
}

func TestValidateS3Config(t *testing.T) {
	assert.NoError(t, ValidateS3Config(tabula.S3Config{}))
	assert.NoError(t, ValidateS3Config(tabula.S3Config{
		Bucket:    "media",
		AccessKey: "key",
		SecretKey: "secret",
	}))

	err := ValidateS3Config(tabula.S3Config{Bucket: "media", AccessKey: "key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secretKey")

	err = ValidateS3Config(tabula.S3Config{Bucket: "media", SecretKey: "secret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accessKey")
}

func TestS3HealthCheckSkipsUnconfigured(t *testing.T) {
	assert.NoError(t, S3HealthCheck(context.Background(), tabula.S3Config{}, 0))
	assert.NoError(t, S3HealthCheck(context.Background(), tabula.S3Config{Bucket: "media"}, 0))
}

func TestS3HealthCheckAgainstEndpoint(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := tabula.S3Config{Bucket: "media", Endpoint: healthy.URL}
	assert.NoError(t, S3HealthCheck(context.Background(), cfg, 0))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	cfg.Endpoint = broken.URL
	err := S3HealthCheck(context.Background(), cfg, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestS3HealthCheckUnreachableEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := dead.URL
	dead.Close()

	err := S3HealthCheck(context.Background(), tabula.S3Config{Bucket: "media", Endpoint: endpoint}, 0)
	require.Error(t, err)
}

func TestPostgresHealthCheckRejectsBadDSN(t *testing.T) {
	err := PostgresHealthCheck(context.Background(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty dsn")

	err = PostgresHealthCheck(context.Background(), "://not-a-dsn", 0)
	require.Error(t, err)
}
