// =============================================================================
// ANS Expense Pipeline - Enricher Stage
// =============================================================================
//
// The enricher left-joins the consolidated artifact against the operator
// registry and resolves each record's descriptive fields.
//
// ENRICHMENT STEPS:
//   1. Load the registry (UTF-8, retried once as ISO-8859-1 on decode failure)
//   2. Trim both join keys
//   3. Keep the first registry row per operator_id; later rows are counted
//      and ignored so the join cannot fan out
//   4. Left join on operator_id; every consolidated row is kept
//   5. tax_id / legal_name: a consolidated value wins, the registry fills gaps
//   6. Unmatched operators get line_of_business "UNKNOWN" and state_code "ND"
//   7. Normalize tax_id: drop ".0" float artifacts, "nan" -> empty, zero-pad
//      non-empty values to 14 digits
//
// =============================================================================

package enricher

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/taxid"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// floatArtifact matches identifiers that went through a float column,
// e.g. "1685053000156.0".
var floatArtifact = regexp.MustCompile(`^(\d+)\.0+$`)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result reports what the enricher did.
type Result struct {
	InputRows int

	// RegistryRows is the number of registry rows read, before dedup.
	RegistryRows int

	// RegistryDuplicates counts registry rows ignored because their
	// operator_id had already been seen.
	RegistryDuplicates int

	Matched   int
	Unmatched int

	// UsedLatin1 is true when the registry was not valid UTF-8.
	UsedLatin1 bool

	OutputRows     int
	ArtifactPath   string
	ProcessingTime time.Duration
}

// =============================================================================
// ENRICHER
// =============================================================================

// Enricher runs the enrichment stage.
type Enricher struct {
	logger   *slog.Logger
	registry config.RegistryConfig
}

// New creates an Enricher reading the registry with the given settings.
func New(logger *slog.Logger, registry config.RegistryConfig) *Enricher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{
		logger:   logger.With(slog.String("stage", "enrich")),
		registry: registry,
	}
}

// Run reads the consolidated artifact and the registry, enriches every row and
// writes the enriched artifact.
//
// PARAMETERS:
//   - consolidatedPath: The consolidator's artifact.
//   - registryPath: The operator registry file.
//   - artifactPath: Destination of the enriched artifact.
//
// RETURNS:
//   - The stage diagnostics.
//   - An error wrapping csvparser.ErrUnreadableArtifact or ErrMissingColumn
//     when an input cannot be used, or a write error.
func (e *Enricher) Run(consolidatedPath, registryPath, artifactPath string) (Result, error) {
	startTime := time.Now()

	consolidated, err := csvparser.Parse(consolidatedPath, config.CSVSettings{Delimiter: ";"})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read consolidated artifact: %w", err)
	}

	registry, registryData, err := e.LoadRegistry(registryPath)
	if err != nil {
		return Result{}, err
	}

	records, result, err := e.Enrich(consolidated, registry)
	if err != nil {
		return result, err
	}
	result.UsedLatin1 = registryData.UsedFallback

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	if err := csvwriter.Write(artifactPath, types.EnrichedColumns, rows); err != nil {
		return result, fmt.Errorf("failed to write enriched artifact: %w", err)
	}

	result.ArtifactPath = artifactPath
	result.ProcessingTime = time.Since(startTime)

	e.logger.Info("enrichment complete",
		slog.Int("rows_in", result.InputRows),
		slog.Int("rows_out", result.OutputRows),
		slog.Int("matched", result.Matched),
		slog.Int("unmatched", result.Unmatched),
		slog.Int("registry_duplicates", result.RegistryDuplicates),
		slog.Bool("registry_latin1", result.UsedLatin1),
		slog.String("artifact", artifactPath),
	)

	return result, nil
}

// LoadRegistry reads the operator registry and maps it onto registry records.
//
// RETURNS:
//   - The registry records in file order, keys trimmed.
//   - The raw parsed data (for encoding diagnostics).
//   - An error wrapping csvparser.ErrUnreadableArtifact or ErrMissingColumn.
func (e *Enricher) LoadRegistry(registryPath string) ([]types.RegistryRecord, *csvparser.CSVData, error) {
	data, err := csvparser.Parse(registryPath, e.registry.CSVSettings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read operator registry: %w", err)
	}

	cols := e.registry.Columns
	if err := data.RequireColumns(cols.OperatorID, cols.TaxID, cols.LegalName, cols.StateCode, cols.LineOfBusiness); err != nil {
		return nil, nil, fmt.Errorf("operator registry %s: %w", registryPath, err)
	}

	if data.UsedFallback {
		e.logger.Warn("registry is not valid UTF-8, decoded with fallback encoding",
			slog.String("encoding", data.Encoding))
	}

	records := make([]types.RegistryRecord, len(data.Rows))
	for i, row := range data.Rows {
		records[i] = types.RegistryRecord{
			OperatorID:     strings.TrimSpace(row[cols.OperatorID]),
			TaxID:          strings.TrimSpace(row[cols.TaxID]),
			LegalName:      strings.TrimSpace(row[cols.LegalName]),
			StateCode:      strings.TrimSpace(row[cols.StateCode]),
			LineOfBusiness: strings.TrimSpace(row[cols.LineOfBusiness]),
		}
	}
	return records, data, nil
}

// Enrich joins consolidated rows against the registry.
//
// The consolidated data must carry operator_id, tax_id, legal_name,
// statement_date and expense_value. The account columns are optional.
func (e *Enricher) Enrich(consolidated *csvparser.CSVData, registry []types.RegistryRecord) ([]types.EnrichedRecord, Result, error) {
	result := Result{
		InputRows:    len(consolidated.Rows),
		RegistryRows: len(registry),
	}

	if err := consolidated.RequireColumns(
		types.ColStatementDate,
		types.ColOperatorID,
		types.ColTaxID,
		types.ColLegalName,
		types.ColExpenseValue,
	); err != nil {
		return nil, result, fmt.Errorf("consolidated artifact: %w", err)
	}

	index := make(map[string]types.RegistryRecord, len(registry))
	for _, r := range registry {
		if _, dup := index[r.OperatorID]; dup {
			result.RegistryDuplicates++
			continue
		}
		index[r.OperatorID] = r
	}
	if result.RegistryDuplicates > 0 {
		e.logger.Warn("duplicate registry operators ignored, first occurrence kept",
			slog.Int("rows", result.RegistryDuplicates))
	}

	records := make([]types.EnrichedRecord, len(consolidated.Rows))
	for i, row := range consolidated.Rows {
		operatorID := strings.TrimSpace(row[types.ColOperatorID])
		reg, matched := index[operatorID]
		if matched {
			result.Matched++
		} else {
			result.Unmatched++
		}

		records[i] = types.EnrichedRecord{
			StatementDate:      row[types.ColStatementDate],
			OperatorID:         operatorID,
			AccountCode:        row[types.ColAccountCode],
			AccountDescription: row[types.ColAccountDescription],
			ExpenseValue:       row[types.ColExpenseValue],
			TaxID:              NormalizeTaxID(firstNonEmpty(row[types.ColTaxID], reg.TaxID)),
			LegalName:          firstNonEmpty(row[types.ColLegalName], reg.LegalName),
			StateCode:          orDefault(reg.StateCode, types.UndeterminedState),
			LineOfBusiness:     orDefault(reg.LineOfBusiness, types.UnknownLineOfBusiness),
		}
	}

	result.OutputRows = len(records)
	return records, result, nil
}

// NormalizeTaxID repairs identifier formatting damage from upstream tools.
// Empty stays empty. Values that reduce to at most 14 digits are returned as
// bare digits, left-padded with zeros. Anything else is returned trimmed so
// the validator can reject it.
func NormalizeTaxID(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	if m := floatArtifact.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if s == "" {
		return ""
	}

	digits, ok := taxid.Strip(s)
	if !ok || len(digits) == 0 || len(digits) > types.TaxIDLength {
		return s
	}

	var b strings.Builder
	b.Grow(types.TaxIDLength)
	for i := len(digits); i < types.TaxIDLength; i++ {
		b.WriteByte('0')
	}
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
