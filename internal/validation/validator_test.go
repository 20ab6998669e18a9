package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

func validRecord() types.EnrichedRecord {
	return types.EnrichedRecord{
		StatementDate:      "2024-01-01",
		OperatorID:         "111111",
		AccountCode:        "411",
		AccountDescription: "EVENTOS",
		ExpenseValue:       "150.25",
		TaxID:              "11222333000181",
		LegalName:          "OPERADORA A",
		StateCode:          "SP",
		LineOfBusiness:     "Cooperativa Médica",
	}
}

func TestValidateRecord(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		name   string
		mutate func(r *types.EnrichedRecord)
		labels []string
	}{
		{"fully valid", func(r *types.EnrichedRecord) {}, nil},
		{"zero value", func(r *types.EnrichedRecord) { r.ExpenseValue = "0" }, []string{RuleNonPositiveValue}},
		{"negative value", func(r *types.EnrichedRecord) { r.ExpenseValue = "-10" }, []string{RuleNonPositiveValue}},
		{"empty legal name", func(r *types.EnrichedRecord) { r.LegalName = "  " }, []string{RuleMissingLegalName}},
		{"invalid tax id", func(r *types.EnrichedRecord) { r.TaxID = "12345678000199" }, []string{RuleInvalidTaxID}},
		{"empty tax id", func(r *types.EnrichedRecord) { r.TaxID = "" }, []string{RuleInvalidTaxID}},
		{"comma decimal", func(r *types.EnrichedRecord) { r.ExpenseValue = "0,01" }, nil},
		{
			"everything wrong",
			func(r *types.EnrichedRecord) {
				r.TaxID = "00000000000000"
				r.LegalName = ""
				r.ExpenseValue = "abc"
			},
			[]string{RuleInvalidTaxID, RuleMissingLegalName, RuleNonPositiveValue},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord()
			tt.mutate(&record)

			validated, errs, _ := v.ValidateRecord(record)

			assert.Equal(t, tt.labels, validated.ValidationErrors)
			assert.Equal(t, len(tt.labels) == 0, validated.IsValid)
			assert.Len(t, errs, len(tt.labels))
		})
	}
}

func TestValidateRecord_NormalizesValue(t *testing.T) {
	record := validRecord()
	record.ExpenseValue = "1500,50"

	validated, _, coerced := NewValidator(nil).ValidateRecord(record)
	assert.False(t, coerced)
	assert.Equal(t, "1500.5", validated.ExpenseValue)

	record.ExpenseValue = "n/a"
	validated, _, coerced = NewValidator(nil).ValidateRecord(record)
	assert.True(t, coerced)
	assert.Equal(t, "0", validated.ExpenseValue)
}

func TestValidateAll_Partitions(t *testing.T) {
	good := validRecord()
	zero := validRecord()
	zero.ExpenseValue = "0"
	noName := validRecord()
	noName.LegalName = ""
	badID := validRecord()
	badID.TaxID = "87654321000155"

	accepted, quarantined, result := NewValidator(nil).ValidateAll([]types.EnrichedRecord{good, zero, noName, badID})

	require.Len(t, accepted, 1)
	require.Len(t, quarantined, 3)
	assert.Equal(t, 4, result.InputRows)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 3, result.Quarantined)
	assert.Equal(t, 1, result.RuleCounts[RuleNonPositiveValue])
	assert.Equal(t, 1, result.RuleCounts[RuleMissingLegalName])
	assert.Equal(t, 1, result.RuleCounts[RuleInvalidTaxID])
}

func TestRun_WritesBothPartitions(t *testing.T) {
	dir := t.TempDir()
	enriched := filepath.Join(dir, "enriched_expenses.zip")

	bad := validRecord()
	bad.LegalName = ""
	bad.ExpenseValue = "0"
	require.NoError(t, csvwriter.Write(enriched, types.EnrichedColumns, [][]string{
		validRecord().Values(),
		bad.Values(),
	}))

	acceptedPath := filepath.Join(dir, "accepted.csv")
	quarantinedPath := filepath.Join(dir, "quarantined.csv")

	result, err := NewValidator(nil).Run(enriched, acceptedPath, quarantinedPath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Quarantined)

	settings := config.CSVSettings{Delimiter: ";"}

	acc, err := csvparser.Parse(acceptedPath, settings)
	require.NoError(t, err)
	assert.Equal(t, types.EnrichedColumns, acc.Headers)
	require.Len(t, acc.Rows, 1)

	quar, err := csvparser.Parse(quarantinedPath, settings)
	require.NoError(t, err)
	assert.Equal(t, types.QuarantinedColumns, quar.Headers)
	require.Len(t, quar.Rows, 1)
	assert.Equal(t, "Missing legal name; Non-positive expense value", quar.Rows[0][types.ColValidationErrors])
}

func TestRun_UnreadableInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "enriched.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0644))

	acceptedPath := filepath.Join(dir, "accepted.csv")
	_, err := NewValidator(nil).Run(corrupt, acceptedPath, filepath.Join(dir, "quarantined.csv"))
	require.ErrorIs(t, err, csvparser.ErrUnreadableArtifact)

	_, statErr := os.Stat(acceptedPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_FailedWriteLeavesNoPartition(t *testing.T) {
	dir := t.TempDir()
	enriched := filepath.Join(dir, "enriched_expenses.zip")
	require.NoError(t, csvwriter.Write(enriched, types.EnrichedColumns, [][]string{validRecord().Values()}))

	// A regular file in the parent position makes the accepted write fail.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	acceptedPath := filepath.Join(blocker, "accepted.csv")
	quarantinedPath := filepath.Join(dir, "quarantined.csv")

	_, err := NewValidator(nil).Run(enriched, acceptedPath, quarantinedPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write accepted artifact")
	assert.NoFileExists(t, quarantinedPath)
	assert.NoFileExists(t, acceptedPath)
}

func TestFormatErrors(t *testing.T) {
	assert.Equal(t, "", FormatErrors(nil))
	assert.Equal(t, "a; b", FormatErrors([]string{"a", "b"}))
}
