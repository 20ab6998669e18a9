// =============================================================================
// ANS Expense Pipeline - Ranking Workbook Writer
// =============================================================================
//
// Writes the ranked aggregate summary as a spreadsheet for analysts who do
// not work with delimited files.
//
// WORKBOOK LAYOUT:
//   Sheet "Ranking"
//   | rank | operator_id | legal_name | state_code | line_of_business | total_expenses | expense_stddev | active_quarter_count | average_expense_per_quarter |
//
//   - Header row is bold, frozen and filterable
//   - Money columns use the "#,##0.00" number format
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// SheetName is the name of the ranking sheet.
const SheetName = "Ranking"

// builtin number format "#,##0.00"
const moneyFormat = 4

// WriteRanking writes records, already in rank order, to a new workbook.
//
// PARAMETERS:
//   - path: The destination .xlsx file.
//   - records: The ranked summary rows.
//
// RETURNS:
//   - An error if the workbook cannot be built or saved.
func WriteRanking(path string, records []types.SummaryRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := append([]interface{}{"rank"}, toInterfaces(types.SummaryColumns)...)
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			i + 1,
			r.OperatorID,
			r.LegalName,
			r.StateCode,
			r.LineOfBusiness,
			r.TotalExpenses.Round(2).InexactFloat64(),
			roundFloat(r.ExpenseStddev),
			r.ActiveQuarterCount,
			r.AverageExpensePerQuarter.Round(2).InexactFloat64(),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := styleSheet(f, len(headers)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// styleSheet applies header and number styles.
func styleSheet(f *excelize.File, columns int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(columns)
	if err != nil {
		return err
	}

	// total_expenses, expense_stddev, average_expense_per_quarter
	for _, col := range []string{"F:G", "I"} {
		if err := f.SetColStyle(SheetName, col, money); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "C", "C", 48); err != nil {
		return err
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	return f.AutoFilter(SheetName, "A1:"+lastCol+"1", nil)
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func roundFloat(v float64) float64 {
	return math.Round(v*100) / 100
}
