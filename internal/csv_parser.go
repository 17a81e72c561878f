package internal

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// ParseCSV turns raw bytes into an ordered list of row maps using the first
// non-empty line as the header. Quoting is handled leniently: unbalanced
// quotes never fail the whole file, and ragged rows are tolerated (missing
// trailing cells are simply absent from the map). An empty or header-only
// input yields an empty list. The header order is returned alongside the rows
// so callers can keep deterministic column ordering.
func ParseCSV(data []byte) ([]string, []tabula.RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var header []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, nil, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				zap.S().Warnw("csv: skipping malformed header line", "err", err)
				continue
			}
			return nil, nil, err
		}
		if !recordEmpty(record) {
			header = record
			break
		}
	}

	var rows []tabula.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				zap.S().Warnw("csv: skipping malformed row", "err", err)
				continue
			}
			return nil, nil, err
		}
		if recordEmpty(record) {
			continue
		}
		row := make(tabula.RawRow, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

func recordEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
