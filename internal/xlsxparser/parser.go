// =============================================================================
// ANS Expense Pipeline - XLSX Extract Parser
// =============================================================================
//
// Some quarterly statements are distributed as spreadsheets instead of
// delimited text. This module reads such a workbook into the same structure
// the delimited parser produces, so downstream loading does not care which
// format an extract arrived in.
//
// WORKBOOK LAYOUT (Expected):
//
//   | DATA       | REG_ANS | CD_CONTA_CONTABIL | DESCRICAO          | VL_SALDO_FINAL |
//   |------------|---------|-------------------|--------------------|----------------|
//   | 2024-01-01 | 123456  | 41111             | EVENTOS CONHECIDOS | 1500,75        |
//
//   - Row 1 is the header row
//   - Data starts on row 2; fully blank rows are skipped
//   - By default the first visible sheet is read
//
// CELL VALUES:
//   Cells are read raw, not in their display format. Numeric cells come back
//   as plain numbers ("1500.75", never "1,500.75"); cells with a date number
//   format are converted from the Excel serial to YYYY-MM-DD.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads the first sheet of a workbook.
//
// PARAMETERS:
//   - workbookPath: The path to the .xlsx file.
//
// RETURNS:
//   - A pointer to a CSVData struct holding the sheet rows.
//   - An error wrapping csvparser.ErrUnreadableArtifact if the workbook
//     cannot be read.
func Parse(workbookPath string) (*csvparser.CSVData, error) {
	return ParseSheet(workbookPath, "")
}

// ParseSheet reads one named sheet of a workbook. An empty sheetName selects
// the first sheet whose name does not start with "_".
func ParseSheet(workbookPath, sheetName string) (*csvparser.CSVData, error) {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook %s: %v", csvparser.ErrUnreadableArtifact, workbookPath, err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = firstSheet(f)
	}
	if sheetName == "" {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", csvparser.ErrUnreadableArtifact, workbookPath)
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet '%s' of %s: %v", csvparser.ErrUnreadableArtifact, sheetName, workbookPath, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet '%s' of %s is empty", csvparser.ErrUnreadableArtifact, sheetName, workbookPath)
	}

	headers := cleanHeaders(rows[0])

	data := &csvparser.CSVData{
		Headers:     headers,
		Rows:        make([]map[string]string, 0, len(rows)-1),
		SourceFile:  workbookPath,
		Entry:       sheetName,
		Encoding:    "UTF-8",
		ColumnCount: len(headers),
	}

	dates := newDateCells(f, sheetName)

	for r, row := range rows[1:] {
		if isRowEmpty(row) {
			continue
		}

		rowMap := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				value := strings.TrimSpace(row[i])
				if value != "" {
					value = dates.convert(i+1, r+2, value)
				}
				rowMap[header] = value
			} else {
				rowMap[header] = ""
			}
		}
		data.Rows = append(data.Rows, rowMap)
	}

	data.RowCount = len(data.Rows)
	return data, nil
}

// =============================================================================
// DATE CELLS
// =============================================================================

// dateCells converts numeric cells carrying a date number format. Style
// lookups are cached per style index.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// convert returns value unchanged unless the cell at (col, row) is a number
// formatted as a date, in which case the date is returned as YYYY-MM-DD.
func (d *dateCells) convert(col, row int, value string) string {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return value
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return value
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return value
	}
	return t.Format(types.DateLayout)
}

func (d *dateCells) isDateStyle(styleID int) bool {
	if styleID == 0 {
		return false
	}
	if isDate, ok := d.styles[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isDateNumFmt(style.NumFmt)
		}
	}
	d.styles[styleID] = isDate
	return isDate
}

// isDateNumFmt reports whether a built-in number format id is a date or time
// format, including the locale-specific ranges.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

var formatLiterals = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]|\\.`)

// isDateFormatCode reports whether a custom format code formats dates. Quoted
// text, bracketed sections and escaped characters are ignored.
func isDateFormatCode(code string) bool {
	code = strings.ToLower(formatLiterals.ReplaceAllString(code, ""))
	return strings.ContainsAny(code, "dy")
}

// firstSheet returns the first sheet not prefixed with "_".
func firstSheet(f *excelize.File) string {
	for _, name := range f.GetSheetList() {
		if !strings.HasPrefix(name, "_") {
			return name
		}
	}
	return ""
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = h
	}
	return cleaned
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
