// Package sheet locates the real tabular structure inside a raw cell grid:
// the header row, the data region, and any metadata preamble.
package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"royaltydesk/internal/model"
)

const (
	// headerScanLimit bounds how deep into the grid the header search goes.
	headerScanLimit = 20
	// numericLookahead is how many rows below a header candidate must be
	// checked for at least one numeric cell.
	numericLookahead = 5
	// sampleRowCount is how many data rows are kept for preview/AI samples.
	sampleRowCount = 5
)

// summaryKeywords end the data region when a row's leading cell starts with
// one of them (case-insensitive).
var summaryKeywords = []string{"grand total", "subtotal", "totals", "total", "sum"}

// Label synonyms for the reporting-period metadata rows above the header.
var (
	periodStartLabels = []string{"period start", "start date", "report period start", "period beginning", "from"}
	periodEndLabels   = []string{"period end", "end date", "report period end", "period ending", "through", "to"}
)

var (
	numberPattern = regexp.MustCompile(`^\(?-?[\d,]+(\.\d+)?\)?%?$`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

var dateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "01-02-2006",
	"Jan 2, 2006", "January 2, 2006", "2 Jan 2006",
}

// Detect infers the sheet structure and returns an immutable ParsedSheet.
func Detect(grid [][]string, sheetName string) (*model.ParsedSheet, error) {
	if len(grid) == 0 {
		return nil, model.NewCodedError(model.ErrCodeParseFailure, "sheet is empty")
	}

	headerIdx := findHeaderRow(grid)
	columnNames := buildColumnNames(grid[headerIdx])
	startLabel, endLabel := extractPeriodMetadata(grid[:headerIdx])

	rows := collectDataRows(grid, headerIdx, columnNames)

	sample := rows
	if len(sample) > sampleRowCount {
		sample = sample[:sampleRowCount]
	}

	return &model.ParsedSheet{
		SheetName:           sheetName,
		ColumnNames:         columnNames,
		AllRows:             rows,
		SampleRows:          sample,
		DataRows:            len(rows),
		TotalRows:           len(grid),
		MetadataPeriodStart: startLabel,
		MetadataPeriodEnd:   endLabel,
	}, nil
}

// findHeaderRow scans the top of the grid for the row that best looks like a
// header: mostly string cells, with numeric data following within a few rows.
// Among qualifying candidates the highest string-cell count wins, earliest
// row on ties. Falls back to row 0.
func findHeaderRow(grid [][]string) int {
	limit := len(grid)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}

	bestIdx := -1
	bestScore := 0
	for i := 0; i < limit; i++ {
		row := grid[i]
		if isBlankRow(row) || isMetadataRow(row) {
			continue
		}

		score := 0
		for _, cell := range row {
			if isStringCell(cell) {
				score++
			}
		}
		if score == 0 {
			continue
		}

		if !numericRowFollows(grid, i) {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return 0
	}
	return bestIdx
}

func numericRowFollows(grid [][]string, headerIdx int) bool {
	end := headerIdx + 1 + numericLookahead
	if end > len(grid) {
		end = len(grid)
	}
	for i := headerIdx + 1; i < end; i++ {
		for _, cell := range grid[i] {
			if isNumericCell(cell) {
				return true
			}
		}
	}
	return false
}

// buildColumnNames normalizes header cells, forward-fills blanks left by
// merged header cells, dedupes repeats as Name_2, Name_3, and synthesizes
// Column_N for cells that are blank with nothing to fill from.
func buildColumnNames(header []string) []string {
	names := make([]string, len(header))
	last := ""
	for i, cell := range header {
		name := normalizeHeader(cell)
		if name == "" {
			name = last
		} else {
			last = name
		}
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		names[i] = name
	}

	seen := make(map[string]int, len(names))
	for i, name := range names {
		seen[name]++
		if seen[name] > 1 {
			names[i] = fmt.Sprintf("%s_%d", name, seen[name])
		}
	}
	return names
}

func normalizeHeader(cell string) string {
	cell = strings.TrimSpace(cell)
	cell = strings.ReplaceAll(cell, "\n", " ")
	cell = strings.ReplaceAll(cell, "\r", " ")
	cell = strings.ReplaceAll(cell, "\t", " ")
	return spacePattern.ReplaceAllString(cell, " ")
}

// collectDataRows walks the rows below the header, forward-filling merged
// body cells column by column, dropping rows that were blank before the
// fill, and cutting the region off at the first summary row.
func collectDataRows(grid [][]string, headerIdx int, columnNames []string) []map[string]string {
	fill := make([]string, len(columnNames))
	var rows []map[string]string

	for i := headerIdx + 1; i < len(grid); i++ {
		raw := grid[i]
		if isBlankRow(raw) {
			continue
		}
		if isSummaryRow(raw) {
			break
		}

		rowMap := make(map[string]string, len(columnNames))
		for c, name := range columnNames {
			value := ""
			if c < len(raw) {
				value = strings.TrimSpace(raw[c])
			}
			if value == "" {
				value = fill[c]
			} else {
				fill[c] = value
			}
			rowMap[name] = value
		}
		rows = append(rows, rowMap)
	}
	return rows
}

func isSummaryRow(row []string) bool {
	lead := ""
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			lead = strings.ToLower(strings.TrimSpace(cell))
			break
		}
	}
	if lead == "" {
		return false
	}
	for _, kw := range summaryKeywords {
		if strings.HasPrefix(lead, kw) {
			return true
		}
	}
	return false
}

// extractPeriodMetadata pulls "Period Start: 2025-01-01" style labels out of
// the preamble rows above the header. The label may share a cell with its
// value ("From: 1/1/2025") or sit one cell to its left. At most one start
// and one end value are kept; these are a cross-check only, never
// authoritative.
func extractPeriodMetadata(preamble [][]string) (start, end string) {
	for _, row := range preamble {
		for c, cell := range row {
			label, value := splitLabelValue(cell)
			if label == "" {
				continue
			}
			if value == "" && c+1 < len(row) {
				value = strings.TrimSpace(row[c+1])
			}
			if value == "" {
				continue
			}
			if start == "" && matchesLabel(label, periodStartLabels) {
				start = value
			} else if end == "" && matchesLabel(label, periodEndLabels) {
				end = value
			}
		}
	}
	return start, end
}

func splitLabelValue(cell string) (label, value string) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return "", ""
	}
	if idx := strings.Index(cell, ":"); idx >= 0 {
		return strings.TrimSpace(cell[:idx]), strings.TrimSpace(cell[idx+1:])
	}
	return cell, ""
}

func matchesLabel(label string, synonyms []string) bool {
	label = strings.ToLower(label)
	for _, syn := range synonyms {
		if label == syn {
			return true
		}
	}
	return false
}

// isMetadataRow reports whether a row is a label/value preamble row: at most
// two non-empty cells with the first shaped like a "label:" prefix.
func isMetadataRow(row []string) bool {
	nonEmpty := 0
	first := ""
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			nonEmpty++
			if first == "" {
				first = strings.TrimSpace(cell)
			}
		}
	}
	if nonEmpty == 0 || nonEmpty > 2 {
		return false
	}
	return strings.Contains(first, ":")
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// isStringCell reports whether a cell is header-like: non-empty, not a
// number, not a date.
func isStringCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	return !isNumericCell(cell) && !isDateCell(cell)
}

func isNumericCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	cell = strings.TrimPrefix(cell, "$")
	cell = strings.TrimPrefix(cell, "-$")
	if !numberPattern.MatchString(cell) {
		return false
	}
	stripped := strings.NewReplacer(",", "", "(", "", ")", "", "%", "").Replace(cell)
	_, err := strconv.ParseFloat(stripped, 64)
	return err == nil
}

func isDateCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, cell); err == nil {
			return true
		}
	}
	return false
}
