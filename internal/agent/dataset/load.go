package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	logx "github.com/datachat-core/server/pkg/logger"
)

// UnsupportedFormatError rejects files outside the supported tabular set
// before they ever reach the workflow.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q: use .csv or .xlsx", e.Ext)
}

// Load reads a tabular file into a Table. Supported extensions: .csv, .xlsx.
func Load(path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, &UnsupportedFormatError{Ext: ext}
	}
}

func loadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows, NewTable normalizes width
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s has no header row", path)
	}

	t := NewTable(records[0], records[1:])
	logx.Debug().Str("path", path).Int("rows", len(t.Rows)).Int("columns", len(t.Columns)).Msg("Loaded CSV dataset")
	return t, nil
}

func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx %s has no header row", path)
	}

	t := NewTable(rows[0], rows[1:])
	logx.Debug().Str("path", path).Str("sheet", sheets[0]).Int("rows", len(t.Rows)).Msg("Loaded XLSX dataset")
	return t, nil
}
