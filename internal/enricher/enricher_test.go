package enricher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

func consolidatedData(rows ...map[string]string) *csvparser.CSVData {
	return &csvparser.CSVData{Headers: types.ConsolidatedColumns, Rows: rows}
}

func consolidatedRow(operator, taxID, legalName string) map[string]string {
	return map[string]string{
		types.ColStatementDate:      "2024-01-01",
		types.ColOperatorID:         operator,
		types.ColTaxID:              taxID,
		types.ColLegalName:          legalName,
		types.ColQuarterNumber:      "1",
		types.ColYear:               "2024",
		types.ColExpenseValue:       "10",
		types.ColAccountCode:        "411",
		types.ColAccountDescription: "EVENTOS",
	}
}

func TestEnrich_LeftJoinKeepsEveryRow(t *testing.T) {
	registry := []types.RegistryRecord{
		{OperatorID: "111111", TaxID: "11222333000181", LegalName: "OPERADORA A", StateCode: "SP", LineOfBusiness: "Cooperativa Médica"},
		{OperatorID: "111111", TaxID: "99999999999999", LegalName: "DUPLICADA", StateCode: "RJ", LineOfBusiness: "X"},
	}
	data := consolidatedData(
		consolidatedRow(" 111111 ", "", ""),
		consolidatedRow("999999", "", ""),
		consolidatedRow("111111", "", ""),
	)

	records, result, err := New(nil, config.Default().Registry).Enrich(data, registry)
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, 3, result.OutputRows)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, 1, result.RegistryDuplicates)

	assert.Equal(t, "111111", records[0].OperatorID)
	assert.Equal(t, "OPERADORA A", records[0].LegalName)
	assert.Equal(t, "SP", records[0].StateCode)
	assert.Equal(t, "11222333000181", records[0].TaxID)

	assert.Equal(t, types.UnknownLineOfBusiness, records[1].LineOfBusiness)
	assert.Equal(t, types.UndeterminedState, records[1].StateCode)
	assert.Equal(t, "", records[1].TaxID)
	assert.Equal(t, "", records[1].LegalName)
	assert.Equal(t, "411", records[1].AccountCode)
}

func TestEnrich_ConsolidatedValueWins(t *testing.T) {
	registry := []types.RegistryRecord{
		{OperatorID: "1", TaxID: "11222333000181", LegalName: "REGISTRY NAME", StateCode: "SP", LineOfBusiness: "Medicina de Grupo"},
	}
	data := consolidatedData(consolidatedRow("1", "06990590000123", "FILED NAME"))

	records, _, err := New(nil, config.Default().Registry).Enrich(data, registry)
	require.NoError(t, err)
	assert.Equal(t, "06990590000123", records[0].TaxID)
	assert.Equal(t, "FILED NAME", records[0].LegalName)
}

func TestEnrich_EmptyRegistryValuesUseSentinels(t *testing.T) {
	registry := []types.RegistryRecord{{OperatorID: "1", LegalName: "A"}}
	data := consolidatedData(consolidatedRow("1", "", ""))

	records, result, err := New(nil, config.Default().Registry).Enrich(data, registry)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, types.UndeterminedState, records[0].StateCode)
	assert.Equal(t, types.UnknownLineOfBusiness, records[0].LineOfBusiness)
}

func TestEnrich_MissingColumn(t *testing.T) {
	data := &csvparser.CSVData{Headers: []string{types.ColOperatorID}}

	_, _, err := New(nil, config.Default().Registry).Enrich(data, nil)
	assert.ErrorIs(t, err, csvparser.ErrMissingColumn)
}

func TestNormalizeTaxID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1685053000156", "01685053000156"},
		{"1685053000156.0", "01685053000156"},
		{"11222333000181", "11222333000181"},
		{"06.990.590/0001-23", "06990590000123"},
		{"nan", ""},
		{"NaN", ""},
		{"", ""},
		{"  ", ""},
		{"123", "00000000000123"},
		{"ABC123", "ABC123"},
		{"123456789012345", "123456789012345"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTaxID(tt.in))
		})
	}
}

func TestRun_Latin1Registry(t *testing.T) {
	dir := t.TempDir()

	consolidated := filepath.Join(dir, "consolidated.csv")
	require.NoError(t, os.WriteFile(consolidated, []byte(
		"statement_date;operator_id;tax_id;legal_name;quarter_number;year;expense_value;account_code;account_description\n"+
			"2024-01-01;111111;;;1;2024;10;411;EVENTOS\n"), 0644))

	// "SÃO PAULO SAÚDE" in ISO-8859-1.
	registry := filepath.Join(dir, "registry.csv")
	require.NoError(t, os.WriteFile(registry, []byte(
		"REGISTRO_OPERADORA;CNPJ;Razao_Social;UF;Modalidade\n"+
			"111111;1685053000156;S\xc3O PAULO SA\xdaDE;SP;Cooperativa\n"), 0644))

	out := filepath.Join(dir, "enriched_expenses.zip")
	result, err := New(nil, config.Default().Registry).Run(consolidated, registry, out)
	require.NoError(t, err)
	assert.True(t, result.UsedLatin1)
	assert.Equal(t, 1, result.Matched)

	data, err := csvparser.Parse(out, config.CSVSettings{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, types.EnrichedColumns, data.Headers)
	assert.Equal(t, "SÃO PAULO SAÚDE", data.Rows[0][types.ColLegalName])
	assert.Equal(t, "01685053000156", data.Rows[0][types.ColTaxID])
}

func TestRun_MissingRegistryIsFatal(t *testing.T) {
	dir := t.TempDir()
	consolidated := filepath.Join(dir, "consolidated.csv")
	require.NoError(t, os.WriteFile(consolidated, []byte("statement_date;operator_id;tax_id;legal_name;expense_value\n"), 0644))

	out := filepath.Join(dir, "enriched.zip")
	_, err := New(nil, config.Default().Registry).Run(consolidated, filepath.Join(dir, "missing.csv"), out)
	require.ErrorIs(t, err, csvparser.ErrUnreadableArtifact)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
