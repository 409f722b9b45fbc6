// Package bom implements the BOM import engine: tabular ingestion,
// reference-designator expansion, case-insensitive part resolution and the
// import orchestrator that ties them together.
package bom

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// allowedHeaders is the fixed column vocabulary for BOM files. Header names
// are matched lower-cased; anything outside this set fails the whole import.
var allowedHeaders = map[string]bool{
	"part_number":  true,
	"description":  true,
	"qty":          true,
	"reference":    true,
	"manufacturer": true,
	"mpn":          true,
	"package":      true,
	"value":        true,
	"unit_cost":    true,
	"currency":     true,
}

// requiredHeaders must all be present for an import to proceed.
var requiredHeaders = []string{"part_number", "reference"}

// headerAliases maps common spreadsheet spellings onto canonical names.
var headerAliases = map[string]string{
	"pn":         "part_number",
	"partnumber": "part_number",
	"part":       "part_number",
	"ref":        "reference",
	"refdes":     "reference",
	"designator": "reference",
	"quantity":   "qty",
	"price":      "unit_cost",
	"unitprice":  "unit_cost",
	"cost":       "unit_cost",
	"curr":       "currency",
	"comment":    "description",
	"comments":   "description",
}

// Row is one parsed, validated BOM input line. Rows are transient: the
// orchestrator consumes them and persists BOMItems.
type Row struct {
	Line         int // 1-indexed source line, header is line 1
	PartNumber   string
	Description  string
	Qty          int
	Reference    string
	Manufacturer string
	MPN          string
	Package      string
	Value        string
	UnitCost     *decimal.Decimal
	Currency     string
}

// Parse decodes raw BOM bytes (delimited text or XLSX) into rows.
//
// Header problems (unknown columns, missing required columns, undecodable
// input) are structural and returned as err with no rows. Row-level problems
// (missing part number, bad quantity) skip the row and are reported in
// warnings; an unparseable optional numeric decodes to absent with a warning
// but keeps the row.
func Parse(data []byte) (rows []Row, warnings []string, err error) {
	headers, records, err := readTable(data)
	if err != nil {
		return nil, nil, err
	}

	colIdx, err := validateHeaders(headers)
	if err != nil {
		return nil, nil, err
	}

	cell := func(record []string, name string) string {
		idx, ok := colIdx[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for i, record := range records {
		line := i + 2 // data starts on line 2
		if isEmptyRecord(record) {
			continue
		}

		row := Row{
			Line:         line,
			PartNumber:   cell(record, "part_number"),
			Description:  cell(record, "description"),
			Reference:    cell(record, "reference"),
			Manufacturer: cell(record, "manufacturer"),
			MPN:          cell(record, "mpn"),
			Package:      cell(record, "package"),
			Value:        cell(record, "value"),
			Currency:     strings.ToUpper(cell(record, "currency")),
		}

		if row.PartNumber == "" {
			warnings = append(warnings, fmt.Sprintf("Row %d: missing part_number", line))
			continue
		}

		qtyRaw := cell(record, "qty")
		if qtyRaw == "" {
			row.Qty = 1
		} else {
			qty, qerr := strconv.Atoi(qtyRaw)
			if qerr != nil || qty < 1 {
				warnings = append(warnings, fmt.Sprintf("Row %d: qty must be a positive integer: %q", line, qtyRaw))
				continue
			}
			row.Qty = qty
		}

		if costRaw := cell(record, "unit_cost"); costRaw != "" {
			cost, cerr := decimal.NewFromString(normalizeNumeric(costRaw))
			if cerr != nil {
				warnings = append(warnings, fmt.Sprintf("Row %d: unparseable unit_cost %q, defaulting to absent", line, costRaw))
			} else {
				row.UnitCost = &cost
			}
		}

		rows = append(rows, row)
	}

	return rows, warnings, nil
}

// readTable splits raw bytes into a header record and data records,
// handling both XLSX and delimited text.
func readTable(data []byte) ([]string, [][]string, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("empty input")
	}

	var records [][]string
	if isXLSX(data) {
		var err error
		records, err = readXLSX(data)
		if err != nil {
			return nil, nil, err
		}
	} else {
		text := sanitizeUTF8(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
		r := csv.NewReader(bytes.NewReader(text))
		r.Comma = sniffDelimiter(text)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		var err error
		records, err = r.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
	}

	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty input")
	}
	return records[0], records[1:], nil
}

// isXLSX reports whether the bytes look like a zip container (XLSX).
func isXLSX(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK"))
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks comma or semicolon based on the header line.
func sniffDelimiter(data []byte) rune {
	header := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		header = data[:idx]
	}
	if bytes.Count(header, []byte{';'}) > bytes.Count(header, []byte{','}) {
		return ';'
	}
	return ','
}

// validateHeaders checks the column set against the allowed vocabulary and
// returns a canonical-name -> index map.
func validateHeaders(headers []string) (map[string]int, error) {
	colIdx := make(map[string]int, len(headers))
	var unknown []string
	for i, h := range headers {
		name := canonicalHeader(h)
		if name == "" {
			continue // fully blank trailing columns are tolerated
		}
		if !allowedHeaders[name] {
			unknown = append(unknown, strings.TrimSpace(h))
			continue
		}
		if _, dup := colIdx[name]; !dup {
			colIdx[name] = i
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown columns: %s", strings.Join(unknown, ", "))
	}
	for _, req := range requiredHeaders {
		if _, ok := colIdx[req]; !ok {
			return nil, fmt.Errorf("missing column %s", req)
		}
	}
	return colIdx, nil
}

func canonicalHeader(h string) string {
	name := strings.ToLower(strings.TrimSpace(h))
	name = strings.ReplaceAll(name, " ", "_")
	if canon, ok := headerAliases[strings.ReplaceAll(name, "_", "")]; ok {
		return canon
	}
	return name
}

func isEmptyRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// normalizeNumeric strips currency symbols and thousands separators and
// converts accounting-style negatives "(1.23)" to "-1.23".
func normalizeNumeric(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.TrimSpace(s[1:len(s)-1])
	}
	for _, sym := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	return strings.TrimSpace(s)
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// downstream parsing never sees broken encodings.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}
