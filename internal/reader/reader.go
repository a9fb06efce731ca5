// Package reader decodes uploaded report files into a raw cell grid.
package reader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"royaltydesk/internal/model"
)

// utf8BOM is the byte-order mark some exporters prepend to CSV files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// minFirstSheetRows is the cutoff below which the first sheet of a workbook
// is treated as a cover sheet and the second sheet is tried instead.
const minFirstSheetRows = 3

// Read decodes raw file bytes into a rectangular grid of cell strings and
// returns the name of the sheet the grid came from ("" for CSV).
func Read(data []byte, filename string) ([][]string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		grid, err := readCSV(data)
		return grid, "", err
	case ".xlsx":
		return readXLSX(data)
	case ".xls":
		return readXLS(data)
	default:
		return nil, "", model.NewCodedError(model.ErrCodeUnsupportedFormat,
			"unsupported file format %q, expected .csv, .xlsx or .xls", ext)
	}
}

// readCSV tries encodings in a fixed order; the first that both decodes and
// parses wins. utf-8-sig runs before plain utf-8 because a BOM-prefixed file
// is also valid utf-8 and the BOM must not survive into the first header
// cell.
func readCSV(data []byte) ([][]string, error) {
	type attempt struct {
		name   string
		decode func([]byte) ([]byte, error)
	}
	attempts := []attempt{
		{"utf-8-sig", decodeUTF8Sig},
		{"utf-8", decodeUTF8},
		{"windows-1252", decodeWindows1252},
		{"latin-1", decoderFor(charmap.ISO8859_1)},
	}

	var lastErr error
	for _, a := range attempts {
		decoded, err := a.decode(data)
		if err != nil {
			lastErr = err
			continue
		}
		grid, err := parseCSV(decoded)
		if err != nil {
			lastErr = err
			continue
		}
		return grid, nil
	}
	return nil, model.NewCodedError(model.ErrCodeParseFailure,
		"could not decode CSV with any supported encoding: %v", lastErr)
}

func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8")
	}
	return data, nil
}

func decodeUTF8Sig(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, utf8BOM) {
		return nil, fmt.Errorf("no utf-8 BOM")
	}
	trimmed := bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("not valid utf-8 after BOM")
	}
	return trimmed, nil
}

// decodeWindows1252 rejects input containing the code points windows-1252
// leaves undefined. The charmap decoder maps those bytes to U+FFFD instead of
// erroring, which would otherwise shadow the latin-1 fallback; input reaching
// this attempt is never valid utf-8, so U+FFFD in the output can only come
// from the decoder itself.
func decodeWindows1252(data []byte) ([]byte, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
	if err != nil {
		return nil, err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return nil, fmt.Errorf("byte undefined in windows-1252")
	}
	return out, nil
}

func decoderFor(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return io.ReadAll(transform.NewReader(bytes.NewReader(data), cm.NewDecoder()))
	}
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // licensee exports have ragged rows
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure,
			"could not open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure, "workbook has no sheets")
	}

	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure,
			"could not read sheet %q: %v", sheets[0], err)
	}
	sheetName := sheets[0]

	// Workbooks often lead with a cover sheet; fall back to the second sheet
	// when the first is too short to hold a header plus data.
	if len(grid) < minFirstSheetRows && len(sheets) > 1 {
		second, err := f.GetRows(sheets[1])
		if err == nil && len(second) >= len(grid) {
			grid = second
			sheetName = sheets[1]
		}
	}

	if len(grid) == 0 {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure,
			"sheet %q has no rows", sheetName)
	}
	return grid, sheetName, nil
}

// readXLS goes through a temp file because xlsReader wants a path or *os.File.
func readXLS(data []byte) ([][]string, string, error) {
	tmp, err := os.CreateTemp("", "royaltydesk-*.xls")
	if err != nil {
		return nil, "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	workbook, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure,
			"could not open .xls workbook: %v", err)
	}

	sheetCount := workbook.GetNumberSheets()
	if sheetCount == 0 {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure, "workbook has no sheets")
	}

	grid := readXLSSheet(&workbook, 0)
	sheetName := "Sheet1"
	if len(grid) < minFirstSheetRows && sheetCount > 1 {
		if second := readXLSSheet(&workbook, 1); len(second) >= len(grid) {
			grid = second
			sheetName = "Sheet2"
		}
	}

	if len(grid) == 0 {
		return nil, "", model.NewCodedError(model.ErrCodeParseFailure,
			"sheet %q has no rows", sheetName)
	}
	return grid, sheetName, nil
}

func readXLSSheet(workbook *xls.Workbook, index int) [][]string {
	sheet, err := workbook.GetSheet(index)
	if err != nil || sheet == nil {
		return nil
	}

	var grid [][]string
	for _, row := range sheet.GetRows() {
		var cells []string
		for _, col := range row.GetCols() {
			if col != nil {
				cells = append(cells, col.GetString())
			} else {
				cells = append(cells, "")
			}
		}
		grid = append(grid, cells)
	}
	return grid
}
