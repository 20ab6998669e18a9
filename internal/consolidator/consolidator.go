// =============================================================================
// ANS Expense Pipeline - Consolidator Stage
// =============================================================================
//
// The consolidator turns raw expense line items, possibly concatenated from
// several filing periods, into the canonical consolidated artifact.
//
// CONSOLIDATION STEPS:
//   1. Parse statement_date (YYYY-MM-DD, DD/MM/YYYY, ...); unparsable dates
//      become null and the row is kept
//   2. Derive year and quarter_number from the parsed date
//   3. Carry the ending balance forward as expense_value
//   4. Drop rows whose expense_value is exactly zero; negatives (reversals)
//      are kept and counted
//   5. Drop duplicates of (operator_id, statement_date, account_code,
//      expense_value, account_description), keeping the first occurrence
//   6. Attach empty tax_id / legal_name placeholders for the enricher
//   7. Write the consolidated artifact (";" delimited, UTF-8, zipped)
//
// =============================================================================

package consolidator

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result reports what the consolidator did to its input.
type Result struct {
	InputRows int

	// UnparsableDates counts rows kept with a null statement date.
	UnparsableDates int

	// UnparsableValues counts balances that could not be read as numbers.
	// They are coerced to zero and therefore also counted in ZeroRows.
	UnparsableValues int

	ZeroRows      int
	NegativeRows  int
	DuplicateRows int
	OutputRows    int

	ArtifactPath   string
	ProcessingTime time.Duration
}

// =============================================================================
// CONSOLIDATOR
// =============================================================================

// Consolidator runs the consolidation stage.
type Consolidator struct {
	logger *slog.Logger
}

// New creates a Consolidator that logs to logger. A nil logger discards output.
func New(logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consolidator{logger: logger.With(slog.String("stage", "consolidate"))}
}

// Run consolidates items and writes the artifact to artifactPath.
//
// PARAMETERS:
//   - items: Raw expense line items in input order.
//   - artifactPath: Destination of the consolidated artifact (.zip or .csv).
//
// RETURNS:
//   - The stage diagnostics.
//   - An error if the artifact cannot be written.
func (c *Consolidator) Run(items []types.ExpenseLineItem, artifactPath string) (Result, error) {
	startTime := time.Now()

	records, result := c.Consolidate(items)

	if err := csvwriter.Write(artifactPath, types.ConsolidatedColumns, Rows(records)); err != nil {
		return result, fmt.Errorf("failed to write consolidated artifact: %w", err)
	}

	result.ArtifactPath = artifactPath
	result.ProcessingTime = time.Since(startTime)

	c.logger.Info("consolidation complete",
		slog.Int("rows_in", result.InputRows),
		slog.Int("rows_out", result.OutputRows),
		slog.Int("zero_rows", result.ZeroRows),
		slog.Int("negative_rows", result.NegativeRows),
		slog.Int("duplicate_rows", result.DuplicateRows),
		slog.String("artifact", artifactPath),
	)

	return result, nil
}

// Consolidate applies the consolidation rules in memory. It never fails:
// malformed dates and balances are counted and recovered.
func (c *Consolidator) Consolidate(items []types.ExpenseLineItem) ([]types.ConsolidatedRecord, Result) {
	result := Result{InputRows: len(items)}
	records := make([]types.ConsolidatedRecord, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		record := types.ConsolidatedRecord{
			OperatorID:         strings.TrimSpace(item.OperatorID),
			AccountCode:        strings.TrimSpace(item.AccountCode),
			AccountDescription: strings.TrimSpace(item.AccountDescription),
		}

		if date, ok := types.ParseStatementDate(item.StatementDate); ok {
			record.StatementDate = &date
			record.Year = date.Year()
			record.QuarterNumber = types.Quarter(date)
		} else {
			result.UnparsableDates++
			c.logger.Debug("unparsable statement date",
				slog.String("operator_id", record.OperatorID),
				slog.String("value", item.StatementDate))
		}

		value, ok := types.ParseAmount(item.EndingBalance)
		if !ok {
			result.UnparsableValues++
		}
		if value.IsZero() {
			result.ZeroRows++
			continue
		}
		record.ExpenseValue = value

		key := dedupKey(record)
		if _, dup := seen[key]; dup {
			result.DuplicateRows++
			continue
		}
		seen[key] = struct{}{}

		if value.IsNegative() {
			result.NegativeRows++
		}

		records = append(records, record)
	}

	result.OutputRows = len(records)

	if result.UnparsableDates > 0 {
		c.logger.Warn("rows kept with null statement date", slog.Int("rows", result.UnparsableDates))
	}
	if result.UnparsableValues > 0 {
		c.logger.Warn("unparsable balances coerced to zero", slog.Int("rows", result.UnparsableValues))
	}

	return records, result
}

// dedupKey builds the composite duplicate key. Dates are compared after
// normalization, so 2024-01-01 and 01/01/2024 collide; null dates are equal
// to each other. The source file is intentionally not part of the key.
func dedupKey(r types.ConsolidatedRecord) string {
	return strings.Join([]string{
		r.OperatorID,
		formatDate(r.StatementDate),
		r.AccountCode,
		r.ExpenseValue.String(),
		r.AccountDescription,
	}, "\x1f")
}

// =============================================================================
// ARTIFACT CONVERSION
// =============================================================================

// Rows renders records in ConsolidatedColumns order.
func Rows(records []types.ConsolidatedRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		quarter, year := "", ""
		if r.StatementDate != nil {
			quarter = strconv.Itoa(r.QuarterNumber)
			year = strconv.Itoa(r.Year)
		}
		rows[i] = []string{
			formatDate(r.StatementDate),
			r.OperatorID,
			optional(r.TaxID),
			optional(r.LegalName),
			quarter,
			year,
			r.ExpenseValue.String(),
			r.AccountCode,
			r.AccountDescription,
		}
	}
	return rows
}

// LineItemsFromData maps a parsed raw extract onto expense line items using
// the configured header aliases.
//
// RETURNS:
//   - The line items in file order, tagged with the extract's source file.
//   - An error wrapping csvparser.ErrMissingColumn if a required header is absent.
func LineItemsFromData(data *csvparser.CSVData, columns config.SourceColumns, sourceFile string) ([]types.ExpenseLineItem, error) {
	if err := data.RequireColumns(
		columns.StatementDate,
		columns.OperatorID,
		columns.AccountCode,
		columns.AccountDescription,
		columns.EndingBalance,
	); err != nil {
		return nil, err
	}

	items := make([]types.ExpenseLineItem, len(data.Rows))
	for i, row := range data.Rows {
		items[i] = types.ExpenseLineItem{
			OperatorID:         row[columns.OperatorID],
			StatementDate:      row[columns.StatementDate],
			AccountCode:        row[columns.AccountCode],
			AccountDescription: row[columns.AccountDescription],
			EndingBalance:      row[columns.EndingBalance],
			SourceFile:         sourceFile,
		}
	}
	return items, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(types.DateLayout)
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
