// Package spreadsheet reads catalog exports (CSV or XLSX) into products.
package spreadsheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/adbroll/matcher/internal/domain"
	"github.com/gocarina/gocsv"
)

// ReadRecords reads a CSV or XLSX file into records keyed by the header row.
// The format is chosen by file extension.
func ReadRecords(filename string, r io.Reader) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(r)
	case ".xlsx":
		return readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func readCSV(r io.Reader) ([]map[string]string, error) {
	records, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

// readXLSX reads the first sheet; the first non-empty row is the header
func readXLSX(r io.Reader) ([]map[string]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX: %w", err)
	}

	sheet := book.GetSheetName(1)
	if sheet == "" {
		return nil, nil
	}
	rows := book.GetRows(sheet)

	var header []string
	var records []map[string]string
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}

		record := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				record[name] = row[i]
			} else {
				record[name] = ""
			}
		}
		records = append(records, record)
	}

	return records, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
