// Package csvimport reads batch upload files and validates their rows.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is an uploaded sheet: one header row followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Format names an accepted upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromFilename picks the reader for an upload by extension.
func FormatFromFilename(name string) (Format, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, true
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX, true
	default:
		return "", false
	}
}

// Read decodes data in the given format.
func Read(format Format, data []byte) (Table, error) {
	switch format {
	case FormatXLSX:
		return ReadXLSX(data)
	default:
		return ReadCSV(data)
	}
}

// ReadCSV parses UTF-8 CSV text. A leading byte order mark is ignored and
// blank lines are skipped.
func ReadCSV(data []byte) (Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return Table{}, fileError("CSV file must be UTF-8 encoded")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	var table Table
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fileError(fmt.Sprintf("Failed to parse CSV: %v", err))
		}
		if table.Header == nil {
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// ReadXLSX reads the first sheet of a workbook. Trailing empty rows that
// spreadsheet tools leave behind are dropped.
func ReadXLSX(data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fileError(fmt.Sprintf("Failed to parse XLSX: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fileError(msgEmptyFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fileError(fmt.Sprintf("Failed to parse XLSX: %v", err))
	}

	var table Table
	for _, row := range rows {
		if table.Header == nil {
			if isBlank(row) {
				continue
			}
			table.Header = row
			continue
		}
		if isBlank(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
