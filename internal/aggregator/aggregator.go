// =============================================================================
// ANS Expense Pipeline - Aggregator Stage
// =============================================================================
//
// The aggregator turns the accepted records into the ranked operator summary.
//
// AGGREGATION STEPS:
//   1. Repair join collisions: drop "*_y" columns, rename "*_x" columns back
//   2. Coerce expense_value (unparsable -> 0) and parse statement_date
//   3. Keep the rows of the most recent statement_date (the snapshot)
//   4. Group the snapshot by (operator_id, legal_name, state_code,
//      line_of_business): sum and sample standard deviation
//   5. Over the FULL history, count distinct year-quarters per group
//   6. average_expense_per_quarter = total_expenses / active_quarter_count
//   7. Sort by total_expenses descending (stable)
//   8. Write the summary (2 decimal places), a zip holding it, and
//      optionally an XLSX ranking workbook
//
// SNAPSHOT SEMANTICS:
//   Totals cover the latest period only while the quarter count covers all
//   periods. This is intended: the average is "latest total spread over the
//   quarters the operator has been active", not a historical mean.
//
// =============================================================================

package aggregator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/xlsxwriter"
)

// requiredColumns must be present after header repair.
var requiredColumns = []string{
	types.ColStatementDate,
	types.ColOperatorID,
	types.ColLegalName,
	types.ColStateCode,
	types.ColLineOfBusiness,
	types.ColExpenseValue,
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result reports what the aggregator did.
type Result struct {
	InputRows int

	// DroppedColumns and RenamedColumns list the headers touched by the
	// join-collision repair.
	DroppedColumns []string
	RenamedColumns []string

	CoercedValues   int
	UnparsableDates int

	// SnapshotDate is the most recent statement date; zero when no row has a
	// parsable date.
	SnapshotDate time.Time
	SnapshotRows int
	Groups       int

	// TopSpender is the first ranked row, nil for an empty summary.
	TopSpender *types.SummaryRecord

	CSVPath        string
	ZipPath        string
	XLSXPath       string
	ProcessingTime time.Duration
}

// Outputs names the files the aggregator writes. An empty XLSXPath skips the
// workbook.
type Outputs struct {
	CSVPath  string
	ZipPath  string
	XLSXPath string
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator runs the aggregation stage.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an Aggregator.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{logger: logger.With(slog.String("stage", "aggregate"))}
}

// Run reads the accepted artifact, builds the summary and writes it.
//
// PARAMETERS:
//   - acceptedPath: The validator's accepted artifact.
//   - out: Destination files.
//
// RETURNS:
//   - The stage diagnostics.
//   - An error wrapping csvparser.ErrUnreadableArtifact / ErrMissingColumn
//     when the input cannot be used, or a write error.
func (a *Aggregator) Run(acceptedPath string, out Outputs) (Result, error) {
	startTime := time.Now()

	data, err := csvparser.Parse(acceptedPath, config.CSVSettings{Delimiter: ";"})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read accepted artifact: %w", err)
	}

	summary, result, err := a.Aggregate(data)
	if err != nil {
		return result, fmt.Errorf("accepted artifact %s: %w", acceptedPath, err)
	}

	if err := csvwriter.Write(out.CSVPath, types.SummaryColumns, Rows(summary)); err != nil {
		return result, fmt.Errorf("failed to write summary: %w", err)
	}
	result.CSVPath = out.CSVPath

	if out.ZipPath != "" {
		if err := csvwriter.ZipFile(out.CSVPath, out.ZipPath); err != nil {
			return result, fmt.Errorf("failed to archive summary: %w", err)
		}
		result.ZipPath = out.ZipPath
	}

	if out.XLSXPath != "" {
		if err := xlsxwriter.WriteRanking(out.XLSXPath, summary); err != nil {
			return result, fmt.Errorf("failed to write ranking workbook: %w", err)
		}
		result.XLSXPath = out.XLSXPath
	}

	result.ProcessingTime = time.Since(startTime)

	attrs := []any{
		slog.Int("rows_in", result.InputRows),
		slog.Int("snapshot_rows", result.SnapshotRows),
		slog.Int("groups", result.Groups),
		slog.Int("coerced_values", result.CoercedValues),
		slog.String("summary", result.CSVPath),
	}
	if !result.SnapshotDate.IsZero() {
		attrs = append(attrs, slog.String("snapshot_date", result.SnapshotDate.Format(types.DateLayout)))
	}
	a.logger.Info("aggregation complete", attrs...)

	if top := result.TopSpender; top != nil {
		a.logger.Info("top spender",
			slog.String("operator_id", top.OperatorID),
			slog.String("legal_name", top.LegalName),
			slog.String("total_expenses", top.TotalExpenses.StringFixed(2)),
		)
	}

	return result, nil
}

// row is one accepted record after coercion.
type row struct {
	key     groupKey
	value   decimal.Decimal
	date    time.Time
	dated   bool
	quarter string
}

type groupKey struct {
	operatorID     string
	legalName      string
	stateCode      string
	lineOfBusiness string
}

// Aggregate computes the ranked summary from parsed accepted records.
// The data headers are repaired in place.
func (a *Aggregator) Aggregate(data *csvparser.CSVData) ([]types.SummaryRecord, Result, error) {
	result := Result{InputRows: len(data.Rows)}

	result.DroppedColumns, result.RenamedColumns = RepairColumns(data)
	if len(result.DroppedColumns) > 0 || len(result.RenamedColumns) > 0 {
		a.logger.Warn("repaired join column collisions",
			slog.Any("dropped", result.DroppedColumns),
			slog.Any("renamed", result.RenamedColumns))
	}

	if err := data.RequireColumns(requiredColumns...); err != nil {
		return nil, result, err
	}

	rows := make([]row, len(data.Rows))
	var snapshot time.Time
	for i, raw := range data.Rows {
		r := row{
			key: groupKey{
				operatorID:     raw[types.ColOperatorID],
				legalName:      raw[types.ColLegalName],
				stateCode:      raw[types.ColStateCode],
				lineOfBusiness: raw[types.ColLineOfBusiness],
			},
		}

		value, ok := types.ParseAmount(raw[types.ColExpenseValue])
		if !ok {
			result.CoercedValues++
		}
		r.value = value

		if date, ok := types.ParseStatementDate(raw[types.ColStatementDate]); ok {
			r.date = date
			r.dated = true
			r.quarter = QuarterLabel(date)
			if date.After(snapshot) {
				snapshot = date
			}
		} else {
			result.UnparsableDates++
		}

		rows[i] = r
	}
	result.SnapshotDate = snapshot

	// Distinct quarters per group over the full history.
	quarters := make(map[groupKey]map[string]struct{})
	for _, r := range rows {
		if !r.dated {
			continue
		}
		set, ok := quarters[r.key]
		if !ok {
			set = make(map[string]struct{})
			quarters[r.key] = set
		}
		set[r.quarter] = struct{}{}
	}

	// Snapshot groups in order of first appearance.
	var order []groupKey
	members := make(map[groupKey][]decimal.Decimal)
	for _, r := range rows {
		if !r.dated || !r.date.Equal(snapshot) {
			continue
		}
		result.SnapshotRows++
		if _, seen := members[r.key]; !seen {
			order = append(order, r.key)
		}
		members[r.key] = append(members[r.key], r.value)
	}

	summary := make([]types.SummaryRecord, 0, len(order))
	for _, key := range order {
		values := members[key]
		total := decimal.Sum(decimal.Zero, values...)
		count := len(quarters[key])

		average := decimal.Zero
		if count > 0 {
			average = total.Div(decimal.NewFromInt(int64(count)))
		}

		summary = append(summary, types.SummaryRecord{
			OperatorID:               key.operatorID,
			LegalName:                key.legalName,
			StateCode:                key.stateCode,
			LineOfBusiness:           key.lineOfBusiness,
			TotalExpenses:            total,
			ExpenseStddev:            SampleStddev(values),
			ActiveQuarterCount:       count,
			AverageExpensePerQuarter: average,
		})
	}

	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].TotalExpenses.GreaterThan(summary[j].TotalExpenses)
	})

	result.Groups = len(summary)
	if len(summary) > 0 {
		top := summary[0]
		result.TopSpender = &top
	}

	return summary, result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// RepairColumns drops "_y" suffixed headers and renames "_x" suffixed headers
// to their base name, rewriting every row.
//
// RETURNS:
//   - The dropped headers.
//   - The renamed headers (original names).
func RepairColumns(data *csvparser.CSVData) ([]string, []string) {
	var dropped, renamed []string
	headers := make([]string, 0, len(data.Headers))
	rename := make(map[string]string)

	for _, h := range data.Headers {
		switch {
		case strings.HasSuffix(h, "_y"):
			dropped = append(dropped, h)
		case strings.HasSuffix(h, "_x"):
			base := strings.TrimSuffix(h, "_x")
			rename[h] = base
			renamed = append(renamed, h)
			headers = append(headers, base)
		default:
			headers = append(headers, h)
		}
	}

	if len(dropped) == 0 && len(renamed) == 0 {
		return nil, nil
	}

	for _, r := range data.Rows {
		for _, h := range dropped {
			delete(r, h)
		}
		for from, to := range rename {
			r[to] = r[from]
			delete(r, from)
		}
	}

	data.Headers = headers
	data.ColumnCount = len(headers)
	return dropped, renamed
}

// QuarterLabel formats the year-quarter of t, e.g. "2024Q3".
func QuarterLabel(t time.Time) string {
	return fmt.Sprintf("%dQ%d", t.Year(), types.Quarter(t))
}

// SampleStddev is the n-1 standard deviation of values. Fewer than two values
// have no sample deviation; 0 is returned instead.
func SampleStddev(values []decimal.Decimal) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	floats := make([]float64, n)
	var sum float64
	for i, v := range values {
		floats[i] = v.InexactFloat64()
		sum += floats[i]
	}
	mean := sum / float64(n)

	var sq float64
	for _, f := range floats {
		d := f - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// Rows renders the summary in SummaryColumns order. Money fields use two
// decimal places; active_quarter_count is a whole number.
func Rows(summary []types.SummaryRecord) [][]string {
	rows := make([][]string, len(summary))
	for i, s := range summary {
		rows[i] = []string{
			s.OperatorID,
			s.LegalName,
			s.StateCode,
			s.LineOfBusiness,
			s.TotalExpenses.StringFixed(2),
			strconv.FormatFloat(s.ExpenseStddev, 'f', 2, 64),
			strconv.Itoa(s.ActiveQuarterCount),
			s.AverageExpensePerQuarter.StringFixed(2),
		}
	}
	return rows
}
