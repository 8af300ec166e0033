// Package dataset holds the raw tabular dataset type, the declared schema,
// and the ingestion-time validator.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dataset is an uploaded table: a header plus rows of raw string values.
// Every row has exactly one value per header column (enforced by ParseCSV).
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// ParseCSV reads a CSV document with a header row. Values are trimmed;
// a file with no data rows is an error.
func ParseCSV(data []byte) (*Dataset, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV document")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", len(rows)+1, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV document has a header but no data rows")
	}

	return &Dataset{Columns: header, Rows: rows}, nil
}

// ColumnIndex returns the position of name in the header, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column, one per row.
// The second return is false if the column does not exist.
func (d *Dataset) Column(name string) ([]string, bool) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// IsMissing reports whether a raw cell value counts as missing.
func IsMissing(v string) bool {
	switch strings.ToLower(v) {
	case "", "na", "n/a", "nan", "null":
		return true
	}
	return false
}

// ParseBool parses the boolean spellings accepted in uploaded data.
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean value: %q", v)
}

// ParseNumber parses a numeric cell value.
func ParseNumber(v string) (float64, error) {
	return strconv.ParseFloat(v, 64)
}
