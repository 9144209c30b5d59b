package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// missingTokens are cell values read as absent.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// nanTokens are cell values read as not-a-number.
var nanTokens = map[string]bool{
	"NaN": true,
	"nan": true,
}

// ReadCSV reads a CSV file:
//
//   - The first row is a header with column names
//   - Columns whose non-missing cells all parse as numbers are numeric
//   - Every other column is categorical
//   - Empty cells and NA/null/None are missing; NaN is not-a-number
func ReadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fr, err := ReadCSVFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fr, nil
}

// ReadCSVFrom reads CSV data from r. See ReadCSV for the format.
func ReadCSVFrom(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}

	var records [][]string
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}
		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, len(header), len(record))
		}
		records = append(records, record)
	}

	return fromRecords(header, records)
}

// ReadXLSX reads one worksheet of an Excel workbook with the same layout
// rules as ReadCSV. An empty sheet name selects the first sheet.
func ReadXLSX(path, sheet string) (*Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer wb.Close()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%s: sheet %q has no header", path, sheet)
	}

	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if len(r) == 0 {
			continue
		}
		// excelize trims trailing empty cells
		record := make([]string, len(header))
		copy(record, r)
		records = append(records, record)
	}
	return fromRecords(header, records)
}

func fromRecords(header []string, records [][]string) (*Frame, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := make([]Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		cells := make([]string, len(records))
		for i, rec := range records {
			cells[i] = strings.TrimSpace(rec[j])
		}
		cols[j] = parseCells(name, cells)
	}
	return New(cols...)
}

func parseCells(name string, cells []string) Column {
	num := make([]float64, len(cells))
	null := make([]bool, len(cells))
	numeric := true
	hasNull := false
	for i, s := range cells {
		switch {
		case missingTokens[s]:
			num[i] = math.NaN()
			null[i] = true
			hasNull = true
		case nanTokens[s]:
			num[i] = math.NaN()
		default:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				numeric = false
			}
			num[i] = v
		}
	}
	if !hasNull {
		null = nil
	}
	if numeric {
		return NumericColumn(name, num).WithNulls(null)
	}

	str := make([]string, len(cells))
	for i, s := range cells {
		if null != nil && null[i] {
			continue
		}
		str[i] = s
	}
	return StringColumn(name, str).WithNulls(null)
}
