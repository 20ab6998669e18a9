// =============================================================================
// ANS Expense Pipeline - Shared Types
// =============================================================================
//
// This package contains the record types and canonical column names shared by
// every pipeline stage. Keeping them here avoids import cycles between:
//   - consolidator
//   - enricher
//   - validation
//   - aggregator
//
// Every artifact written by a stage uses the column names defined below, in
// the order defined by the *Columns slices.
//
// =============================================================================

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINELS
// =============================================================================

const (
	// UnknownLineOfBusiness is used when an operator has no registry match.
	UnknownLineOfBusiness = "UNKNOWN"

	// UndeterminedState is used when an operator has no registry match.
	UndeterminedState = "ND"

	// TaxIDLength is the fixed length of a normalized tax identifier.
	TaxIDLength = 14

	// ArtifactDelimiter separates fields in every artifact.
	ArtifactDelimiter = ';'

	// DateLayout is the layout used to write statement dates.
	DateLayout = "2006-01-02"
)

// =============================================================================
// CANONICAL COLUMN NAMES
// =============================================================================

const (
	ColStatementDate      = "statement_date"
	ColOperatorID         = "operator_id"
	ColAccountCode        = "account_code"
	ColAccountDescription = "account_description"
	ColEndingBalance      = "ending_balance"
	ColExpenseValue       = "expense_value"
	ColTaxID              = "tax_id"
	ColLegalName          = "legal_name"
	ColStateCode          = "state_code"
	ColLineOfBusiness     = "line_of_business"
	ColQuarterNumber      = "quarter_number"
	ColYear               = "year"
	ColValidationErrors   = "validation_errors"
	ColSourceFile         = "source_file"

	ColTotalExpenses            = "total_expenses"
	ColExpenseStddev            = "expense_stddev"
	ColActiveQuarterCount       = "active_quarter_count"
	ColAverageExpensePerQuarter = "average_expense_per_quarter"
)

// ConsolidatedColumns is the column order of the consolidated artifact.
// The first seven columns are fixed; the account columns trail them so the
// enricher can carry them forward.
var ConsolidatedColumns = []string{
	ColStatementDate,
	ColOperatorID,
	ColTaxID,
	ColLegalName,
	ColQuarterNumber,
	ColYear,
	ColExpenseValue,
	ColAccountCode,
	ColAccountDescription,
}

// EnrichedColumns is the column order of the enriched and accepted artifacts.
var EnrichedColumns = []string{
	ColStatementDate,
	ColOperatorID,
	ColAccountCode,
	ColAccountDescription,
	ColExpenseValue,
	ColTaxID,
	ColLegalName,
	ColStateCode,
	ColLineOfBusiness,
}

// QuarantinedColumns is EnrichedColumns plus the trailing error list.
var QuarantinedColumns = append(append([]string{}, EnrichedColumns...), ColValidationErrors)

// SummaryColumns is the column order of the aggregate summary artifact.
var SummaryColumns = []string{
	ColOperatorID,
	ColLegalName,
	ColStateCode,
	ColLineOfBusiness,
	ColTotalExpenses,
	ColExpenseStddev,
	ColActiveQuarterCount,
	ColAverageExpensePerQuarter,
}

// =============================================================================
// RECORD TYPES
// =============================================================================

// ExpenseLineItem is one accounting line for one operator in one filing period,
// as produced by the upstream extraction step.
type ExpenseLineItem struct {
	OperatorID         string
	StatementDate      string
	AccountCode        string
	AccountDescription string

	// EndingBalance is the raw balance text; zero means "not reported" and a
	// negative value is a reversal.
	EndingBalance string

	// SourceFile is the extract this row came from. Informational only.
	SourceFile string
}

// RegistryRecord is one operator registry row.
type RegistryRecord struct {
	OperatorID     string
	TaxID          string
	LegalName      string
	StateCode      string
	LineOfBusiness string
}

// ConsolidatedRecord is the output row of the consolidator.
type ConsolidatedRecord struct {
	// StatementDate is nil when the raw date could not be parsed.
	StatementDate *time.Time
	OperatorID    string

	// TaxID and LegalName are placeholders filled in by the enricher.
	TaxID     *string
	LegalName *string

	QuarterNumber int
	Year          int
	ExpenseValue  decimal.Decimal

	AccountCode        string
	AccountDescription string
}

// EnrichedRecord is a consolidated record with registry data resolved.
type EnrichedRecord struct {
	StatementDate      string
	OperatorID         string
	AccountCode        string
	AccountDescription string
	ExpenseValue       string
	TaxID              string
	LegalName          string
	StateCode          string
	LineOfBusiness     string
}

// Values returns the record in EnrichedColumns order.
func (r EnrichedRecord) Values() []string {
	return []string{
		r.StatementDate,
		r.OperatorID,
		r.AccountCode,
		r.AccountDescription,
		r.ExpenseValue,
		r.TaxID,
		r.LegalName,
		r.StateCode,
		r.LineOfBusiness,
	}
}

// ValidatedRecord is an enriched record with its rule outcome.
type ValidatedRecord struct {
	EnrichedRecord

	// IsValid is true iff ValidationErrors is empty.
	IsValid bool

	// ValidationErrors holds violated rule labels in evaluation order.
	ValidationErrors []string
}

// SummaryRecord is one ranked row of the aggregate summary.
type SummaryRecord struct {
	OperatorID               string
	LegalName                string
	StateCode                string
	LineOfBusiness           string
	TotalExpenses            decimal.Decimal
	ExpenseStddev            float64
	ActiveQuarterCount       int
	AverageExpensePerQuarter decimal.Decimal
}
