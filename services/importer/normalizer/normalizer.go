// Package normalizer turns uploaded CSV text into typed records and decides which
// kind of sheet (product or stock) a file is from its header.
package normalizer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	importerrors "github.com/yashrajoria/catalog-import/pkg/errors"
	"github.com/yashrajoria/catalog-import/services/importer/models"
)

// Delimiter is the only supported cell separator.
const Delimiter = ','

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sheet is a parsed and classified CSV file.
type Sheet struct {
	Kind    models.Kind
	Header  []string
	Records []models.Record
	// Skipped counts data rows dropped because they carried no sku.
	Skipped int
}

// Parse reads a CSV document with a header row from r. source names the file in
// errors. A header that matches no known kind yields an InvalidSchema error and no
// records.
func Parse(source string, r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return ParseBytes(source, data)
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(source string, data []byte) (*Sheet, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.Comma = Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rawHeader, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, importerrors.InvalidSchema(source, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", source, err)
	}

	header := NormalizeHeader(rawHeader)
	kind, ok := Classify(header)
	if !ok {
		return nil, importerrors.InvalidSchema(source, header)
	}

	sheet := &Sheet{Kind: kind, Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", source, err)
		}
		if blank(row) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rec, ok := buildRecord(header, row, line)
		if !ok {
			sheet.Skipped++
			continue
		}
		sheet.Records = append(sheet.Records, rec)
	}
	return sheet, nil
}

// NormalizeHeader trims and lower-cases every column name.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

// Classify returns the first kind whose required columns are all present in header.
// header must already be normalized.
func Classify(header []string) (models.Kind, bool) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, kind := range models.Kinds {
		if hasAll(present, kind.RequiredColumns()) {
			return kind, true
		}
	}
	return "", false
}

func hasAll(present map[string]bool, cols []string) bool {
	for _, c := range cols {
		if !present[c] {
			return false
		}
	}
	return true
}

// buildRecord maps row onto header, dropping empty cells. Cells beyond the header
// width are ignored. Rows without a sku are rejected.
func buildRecord(header, row []string, line int) (models.Record, bool) {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if i >= len(row) || name == "" {
			continue
		}
		// The table store rejects empty-string attribute values.
		if row[i] == "" {
			continue
		}
		fields[name] = row[i]
	}
	sku, ok := fields[models.AttrSKU]
	if !ok || strings.TrimSpace(sku) == "" {
		return models.Record{}, false
	}
	return models.Record{SKU: sku, Fields: fields, Line: line}, true
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
