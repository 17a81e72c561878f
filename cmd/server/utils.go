package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lychee-technology/tabula"
)

// parseExpression parses filter expressions like "eq:India" or
// "containsi:ind". A bare value is treated as an exact match.
func parseExpression(expr string) (tabula.FilterOp, string, error) {
	parts := strings.SplitN(expr, ":", 2)
	if len(parts) != 2 {
		return tabula.OpEq, expr, nil
	}

	switch parts[0] {
	case "eq":
		return tabula.OpEq, parts[1], nil
	case "eqi":
		return tabula.OpEqCI, parts[1], nil
	case "containsi":
		return tabula.OpContainsCI, parts[1], nil
	default:
		return "", "", fmt.Errorf("unsupported filter operator: %s", parts[0])
	}
}

// buildFilters converts query parameters to store filters. Reserved
// pagination and option parameters are skipped.
func buildFilters(queryParams url.Values) ([]tabula.Filter, error) {
	reservedParams := map[string]bool{
		"upsert":      true,
		"upsertField": true,
		"batchSize":   true,
		"matchField":  true,
	}

	var filters []tabula.Filter
	for key, values := range queryParams {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		op, value, err := parseExpression(values[0])
		if err != nil {
			return nil, err
		}
		filters = append(filters, tabula.Filter{Field: key, Op: op, Value: value})
	}
	return filters, nil
}

// optionsFromQuery reads import options for raw CSV uploads.
func optionsFromQuery(r *http.Request) tabula.ImportOptions {
	query := r.URL.Query()
	opts := tabula.ImportOptions{
		Upsert:      query.Get("upsert") == "true",
		UpsertField: query.Get("upsertField"),
	}
	if batch := query.Get("batchSize"); batch != "" {
		if parsed, err := strconv.Atoi(batch); err == nil {
			opts.BatchSize = parsed
		}
	}
	return opts
}

// APIResponse is the standard response format.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, data)
}

// decodeJSON decodes a JSON request body.
func decodeJSON(body []byte, v any) error {
	return json.Unmarshal(body, v)
}
