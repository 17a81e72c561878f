package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lychee-technology/tabula"
)

// importRequest is the JSON body of POST /api/v1/import/{schema}. The Data
// field carries the CSV text; the remaining fields mirror ImportOptions.
type importRequest struct {
	Data          string                     `json:"data"`
	Upsert        bool                       `json:"upsert"`
	UpsertField   string                     `json:"upsertField"`
	BatchSize     int                        `json:"batchSize"`
	MediaMappings []tabula.MediaFieldMapping `json:"mediaMappings"`
}

// importResponse pairs the validation findings with the persistence outcome.
type importResponse struct {
	Validation *tabula.ValidationResult `json:"validation"`
	Outcome    *tabula.ImportOutcome    `json:"outcome"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListSchemas handles GET /api/v1/schemas
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.registry.Schemas())
}

// handleImport handles POST /api/v1/import/{schema}. A JSON body carries the
// CSV text plus options; any other content type is treated as raw CSV with
// options read from the query string.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	schemaUID := chi.URLParam(r, "schema")

	body, err := readLimitedBody(w, r, s.maxBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body read failed: %v", err))
		return
	}

	var raw []byte
	var opts tabula.ImportOptions
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req importRequest
		if err := decodeJSON(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		raw = []byte(req.Data)
		opts = tabula.ImportOptions{
			Upsert:        req.Upsert,
			UpsertField:   req.UpsertField,
			BatchSize:     req.BatchSize,
			MediaMappings: req.MediaMappings,
		}
	} else {
		raw = body
		opts = optionsFromQuery(r)
	}

	validation, outcome, err := s.engine.ImportCSV(r.Context(), schemaUID, raw, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	status := http.StatusOK
	if len(validation.Errors) > 0 && outcome.Created == 0 && outcome.Updated == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeSuccess(w, status, importResponse{Validation: validation, Outcome: outcome})
}

// handleExport handles GET /api/v1/export/{schema}?field=op:value and
// responds with CSV text.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	schemaUID := chi.URLParam(r, "schema")

	filters, err := buildFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	csvData, err := s.engine.ExportCSV(r.Context(), schemaUID, filters)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFilename(schemaUID)))
	w.WriteHeader(http.StatusOK)
	w.Write(csvData)
}

// handleMapArchive handles POST /api/v1/media/{schema}?matchField=name with a
// zip archive body. It responds with per-field media mappings ready to be fed
// back into an import request.
func (s *Server) handleMapArchive(w http.ResponseWriter, r *http.Request) {
	schemaUID := chi.URLParam(r, "schema")
	matchField := r.URL.Query().Get("matchField")

	archive, err := readLimitedBody(w, r, s.maxBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body read failed: %v", err))
		return
	}

	mappings, err := s.engine.MapArchive(r.Context(), schemaUID, archive, matchField)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, mappings)
}

// handleBulkUpload handles POST /api/v1/media with a zip archive body.
func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	archive, err := readLimitedBody(w, r, s.maxBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body read failed: %v", err))
		return
	}

	files, err := s.engine.BulkUpload(r.Context(), archive)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, files)
}

// readLimitedBody drains the request body under the upload ceiling.
func readLimitedBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
}

// writeEngineError maps structured engine failures onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var engineErr *tabula.EngineError
	if errors.As(err, &engineErr) {
		switch engineErr.Code {
		case tabula.ErrCodeSchemaNotFound:
			writeError(w, http.StatusNotFound, engineErr.Error())
		case tabula.ErrCodeSchemaNotAllowed:
			writeError(w, http.StatusForbidden, engineErr.Error())
		case tabula.ErrCodeArchiveInvalid:
			writeError(w, http.StatusBadRequest, engineErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, engineErr.Error())
		}
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func exportFilename(schemaUID string) string {
	name := schemaUID
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name + ".csv"
}
