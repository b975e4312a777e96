package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Table is a decoded CSV file: normalized headers plus data rows padded or
// truncated to the header width.
type Table struct {
	Name     string
	Encoding string
	Headers  []string
	Rows     [][]string
	Warnings []string
	index    map[string]int
}

// ReadTable parses a delimited file whose first row is the header. Blank
// lines are skipped. Rows with a different column count are padded or
// truncated and reported as warnings.
func ReadTable(name string, r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read failed: %w", name, err)
	}
	decoded, encodingName, err := DecodeToUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file, no header row", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header row: %w", name, err)
	}

	table := &Table{
		Name:     name,
		Encoding: encodingName,
		Headers:  make([]string, len(headers)),
		index:    make(map[string]int, len(headers)),
	}
	for i, h := range headers {
		key := NormalizeHeader(h)
		table.Headers[i] = key
		if _, dup := table.index[key]; !dup {
			table.index[key] = i
		}
	}

	width := len(headers)
	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", name, rowNum, err)
		}
		if len(row) != width {
			table.Warnings = append(table.Warnings,
				fmt.Sprintf("row %d has %d columns, expected %d", rowNum, len(row), width))
			fixed := make([]string, width)
			copy(fixed, row)
			row = fixed
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// NormalizeHeader lower-cases a header and turns spaces and dashes into
// underscores, so "Order ID" and "order-id" both map to "order_id".
func NormalizeHeader(h string) string {
	h = norm.NFC.String(strings.TrimSpace(h))
	h = strings.ToLower(h)
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return '_'
		}
		return r
	}, h)
	return strings.Trim(h, "_")
}

// Column returns the index of a header, or -1.
func (t *Table) Column(name string) int {
	if idx, ok := t.index[name]; ok {
		return idx
	}
	return -1
}

// Value returns the cell of row for a header, "" when the column is absent.
func (t *Table) Value(row []string, name string) string {
	idx := t.Column(name)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
