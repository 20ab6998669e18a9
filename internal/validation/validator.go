// =============================================================================
// ANS Expense Pipeline - Validation Stage
// =============================================================================
//
// This module applies the business rules to enriched records and splits them
// into an accepted and a quarantined artifact.
//
// RULES (evaluated independently, reported in this order):
//   1. tax_id passes the check-digit algorithm        -> "Invalid tax ID"
//   2. legal_name is not empty                         -> "Missing legal name"
//   3. expense_value is greater than zero              -> "Non-positive expense value"
//
// VALUE NORMALIZATION:
//   expense_value has comma decimal separators replaced with periods and is
//   then coerced to a number. Unparsable values become 0 (and fail rule 3).
//
// RULE VIOLATIONS ARE NOT ERRORS:
//   A record breaking any rule is written to the quarantine artifact with the
//   violated rule labels joined by "; ". Only an unreadable input artifact or
//   a failed write makes the stage fail.
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/taxid"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// Rule labels written to the validation_errors column.
const (
	RuleInvalidTaxID     = "Invalid tax ID"
	RuleMissingLegalName = "Missing legal name"
	RuleNonPositiveValue = "Non-positive expense value"
)

// ErrorSeparator joins rule labels in the validation_errors column.
const ErrorSeparator = "; "

// ruleOrder fixes the reporting order of violations.
var ruleOrder = []struct {
	field  string
	label  string
	logKey string
}{
	{"TaxID", RuleInvalidTaxID, "invalid_tax_id"},
	{"LegalName", RuleMissingLegalName, "missing_legal_name"},
	{"ExpenseValue", RuleNonPositiveValue, "non_positive_value"},
}

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError is one violated rule on one record.
type ValidationError struct {
	// Rule is the human-readable rule label.
	Rule string

	// Field is the record field the rule checks.
	Field string

	// Value is the offending value as read from the artifact.
	Value string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (field %s, value '%s')", e.Rule, e.Field, e.Value)
}

// recordRules is the shape the rule engine checks.
type recordRules struct {
	TaxID        string          `validate:"taxid"`
	LegalName    string          `validate:"required"`
	ExpenseValue decimal.Decimal `validate:"gt=0"`
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Result reports the outcome of the validation stage.
type Result struct {
	InputRows int

	// CoercedValues counts expense values that could not be parsed and were
	// treated as zero.
	CoercedValues int

	Accepted    int
	Quarantined int

	// RuleCounts counts violations per rule label.
	RuleCounts map[string]int

	AcceptedPath    string
	QuarantinedPath string
	ProcessingTime  time.Duration
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator evaluates the business rules.
type Validator struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewValidator creates a Validator with the tax ID rule registered.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Compare decimals as float64 so the stock gt tag applies.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Registration only fails for an empty tag or nil func.
	_ = validate.RegisterValidation("taxid", func(fl validator.FieldLevel) bool {
		return taxid.Valid(fl.Field().String())
	})

	return &Validator{
		logger:   logger.With(slog.String("stage", "validate")),
		validate: validate,
	}
}

// ValidateRecord evaluates every rule against one record.
//
// RETURNS:
//   - The validated record, with ExpenseValue rewritten in normalized form.
//   - The violated rules, in rule order.
//   - Whether expense_value had to be coerced to zero.
func (v *Validator) ValidateRecord(record types.EnrichedRecord) (types.ValidatedRecord, []*ValidationError, bool) {
	value, parsed := types.ParseAmount(record.ExpenseValue)

	rules := recordRules{
		TaxID:        strings.TrimSpace(record.TaxID),
		LegalName:    strings.TrimSpace(record.LegalName),
		ExpenseValue: value,
	}

	failed := make(map[string]bool, len(ruleOrder))
	var fieldErrors validator.ValidationErrors
	if err := v.validate.Struct(rules); errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			failed[fe.StructField()] = true
		}
	}

	raw := map[string]string{
		"TaxID":        record.TaxID,
		"LegalName":    record.LegalName,
		"ExpenseValue": record.ExpenseValue,
	}

	var errs []*ValidationError
	var labels []string
	for _, rule := range ruleOrder {
		if failed[rule.field] {
			errs = append(errs, &ValidationError{Rule: rule.label, Field: rule.field, Value: raw[rule.field]})
			labels = append(labels, rule.label)
		}
	}

	record.ExpenseValue = value.String()
	return types.ValidatedRecord{
		EnrichedRecord:   record,
		IsValid:          len(labels) == 0,
		ValidationErrors: labels,
	}, errs, !parsed
}

// ValidateAll validates every record and partitions the result.
//
// RETURNS:
//   - Accepted records (no violations), in input order.
//   - Quarantined records, in input order.
//   - The stage diagnostics (paths unset).
func (v *Validator) ValidateAll(records []types.EnrichedRecord) ([]types.ValidatedRecord, []types.ValidatedRecord, Result) {
	result := Result{
		InputRows:  len(records),
		RuleCounts: make(map[string]int, len(ruleOrder)),
	}

	var accepted, quarantined []types.ValidatedRecord
	for _, record := range records {
		validated, errs, coerced := v.ValidateRecord(record)
		if coerced {
			result.CoercedValues++
		}
		for _, e := range errs {
			result.RuleCounts[e.Rule]++
		}

		if validated.IsValid {
			accepted = append(accepted, validated)
		} else {
			quarantined = append(quarantined, validated)
		}
	}

	result.Accepted = len(accepted)
	result.Quarantined = len(quarantined)
	return accepted, quarantined, result
}

// Run reads the enriched artifact, validates it and writes both partitions.
//
// PARAMETERS:
//   - enrichedPath: The enricher's artifact.
//   - acceptedPath: Destination of the accepted partition.
//   - quarantinedPath: Destination of the quarantined partition.
//
// RETURNS:
//   - The stage diagnostics.
//   - An error wrapping csvparser.ErrUnreadableArtifact / ErrMissingColumn if
//     the input cannot be used, or a write error. No output is written then.
func (v *Validator) Run(enrichedPath, acceptedPath, quarantinedPath string) (Result, error) {
	startTime := time.Now()

	data, err := csvparser.Parse(enrichedPath, config.CSVSettings{Delimiter: ";"})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read enriched artifact: %w", err)
	}
	if err := data.RequireColumns(types.EnrichedColumns...); err != nil {
		return Result{}, fmt.Errorf("enriched artifact %s: %w", enrichedPath, err)
	}

	accepted, quarantined, result := v.ValidateAll(RecordsFromData(data))

	acceptedRows := make([][]string, len(accepted))
	for i, r := range accepted {
		acceptedRows[i] = r.Values()
	}
	quarantinedRows := make([][]string, len(quarantined))
	for i, r := range quarantined {
		quarantinedRows[i] = append(r.Values(), FormatErrors(r.ValidationErrors))
	}

	// Quarantined first; it is removed again if the accepted write fails.
	if err := csvwriter.Write(quarantinedPath, types.QuarantinedColumns, quarantinedRows); err != nil {
		return result, fmt.Errorf("failed to write quarantined artifact: %w", err)
	}
	if err := csvwriter.Write(acceptedPath, types.EnrichedColumns, acceptedRows); err != nil {
		if rmErr := os.Remove(quarantinedPath); rmErr != nil && !os.IsNotExist(rmErr) {
			v.logger.Warn("Failed to remove quarantined artifact", slog.String("path", quarantinedPath), slog.Any("error", rmErr))
		}
		return result, fmt.Errorf("failed to write accepted artifact: %w", err)
	}

	result.AcceptedPath = acceptedPath
	result.QuarantinedPath = quarantinedPath
	result.ProcessingTime = time.Since(startTime)

	attrs := []any{
		slog.Int("rows_in", result.InputRows),
		slog.Int("accepted", result.Accepted),
		slog.Int("quarantined", result.Quarantined),
		slog.Int("coerced_values", result.CoercedValues),
	}
	for _, rule := range ruleOrder {
		attrs = append(attrs, slog.Int(rule.logKey, result.RuleCounts[rule.label]))
	}
	v.logger.Info("validation complete", attrs...)

	return result, nil
}

// RecordsFromData maps a parsed enriched artifact onto enriched records.
func RecordsFromData(data *csvparser.CSVData) []types.EnrichedRecord {
	records := make([]types.EnrichedRecord, len(data.Rows))
	for i, row := range data.Rows {
		records[i] = types.EnrichedRecord{
			StatementDate:      row[types.ColStatementDate],
			OperatorID:         row[types.ColOperatorID],
			AccountCode:        row[types.ColAccountCode],
			AccountDescription: row[types.ColAccountDescription],
			ExpenseValue:       row[types.ColExpenseValue],
			TaxID:              row[types.ColTaxID],
			LegalName:          row[types.ColLegalName],
			StateCode:          row[types.ColStateCode],
			LineOfBusiness:     row[types.ColLineOfBusiness],
		}
	}
	return records
}

// FormatErrors joins rule labels for the validation_errors column.
func FormatErrors(labels []string) string {
	return strings.Join(labels, ErrorSeparator)
}
