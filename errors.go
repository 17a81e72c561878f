package tabula

import "fmt"

// Error codes for engine-level failures. Row and file validation findings are
// carried as plain strings in ValidationResult for caller display; these codes
// cover failures of the operation itself.
const (
	ErrCodeSchemaNotFound     = "SCHEMA_NOT_FOUND"
	ErrCodeSchemaNotAllowed   = "SCHEMA_NOT_IMPORTABLE"
	ErrCodeArchiveInvalid     = "ARCHIVE_INVALID"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeStoreFailure       = "STORE_FAILURE"
	ErrCodeExportFailed       = "EXPORT_FAILED"
	ErrCodeRegistryLoadFailed = "REGISTRY_LOAD_FAILED"
)

// EngineError is the structured error returned by ImportEngine operations.
type EngineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Schema  string `json:"schema,omitempty"`
	Field   string `json:"field,omitempty"`
	Cause   error  `json:"-"`
}

func (e *EngineError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("[%s] schema %s: %s", e.Code, e.Schema, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] field '%s': %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(cause error) *EngineError {
	e.Cause = cause
	return e
}

// NewEngineError creates a new EngineError.
func NewEngineError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewSchemaNotFoundError creates a schema lookup failure.
func NewSchemaNotFoundError(uid string) *EngineError {
	return &EngineError{
		Code:    ErrCodeSchemaNotFound,
		Message: "schema not found",
		Schema:  uid,
	}
}

// NewSchemaNotImportableError flags an operation against a schema outside the
// application namespace.
func NewSchemaNotImportableError(uid string) *EngineError {
	return &EngineError{
		Code:    ErrCodeSchemaNotAllowed,
		Message: "schema is not importable",
		Schema:  uid,
	}
}

// IsSchemaNotFound checks whether err is a schema lookup failure.
func IsSchemaNotFound(err error) bool {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code == ErrCodeSchemaNotFound
	}
	return false
}
