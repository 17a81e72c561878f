package tabula

// Config consolidates runtime settings for the server and CLI binaries.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	S3       S3Config       `json:"s3"`
	Import   ImportConfig   `json:"import"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Port string `json:"port"`
}

// DatabaseConfig contains Postgres connection settings for the bundled
// entity store. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL       string `json:"url"`
	TableName string `json:"tableName"`
}

// S3Config contains media store settings. An empty bucket selects the
// in-memory media store.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"` // non-empty for MinIO-style deployments
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	KeyPrefix string `json:"keyPrefix"`
	BaseURL   string `json:"baseUrl"` // public URL root for uploaded assets
}

// ImportConfig contains pipeline defaults.
type ImportConfig struct {
	BatchSize      int    `json:"batchSize"`
	MaxUploadBytes int64  `json:"maxUploadBytes"`
	ExportLimit    int    `json:"exportLimit"`
	SchemaDir      string `json:"schemaDir"`
}

// DefaultConfig returns the built-in defaults: batch size 100, 10 MB upload
// ceiling, export capped at 1000 entities.
func DefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{TableName: "tabula_entities"},
		Import: ImportConfig{
			BatchSize:      100,
			MaxUploadBytes: 10 << 20,
			ExportLimit:    1000,
			SchemaDir:      "./schemas",
		},
	}
}
