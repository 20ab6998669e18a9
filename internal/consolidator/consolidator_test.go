package consolidator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

func item(operator, date, code, desc, balance string) types.ExpenseLineItem {
	return types.ExpenseLineItem{
		OperatorID:         operator,
		StatementDate:      date,
		AccountCode:        code,
		AccountDescription: desc,
		EndingBalance:      balance,
	}
}

func TestConsolidate_DropsZeroAndDuplicatesKeepsNegatives(t *testing.T) {
	items := []types.ExpenseLineItem{
		item("222222", "2024-01-01", "411", "EVENTOS", "100.50"),
		item("222222", "2024-01-01", "411", "EVENTOS", "100.50"),
		item("222222", "2024-01-01", "411", "EVENTOS", "0"),
		item("222222", "2024-01-01", "411", "ESTORNO", "-20"),
		item("111111", "2024-01-01", "411", "EVENTOS", "300"),
	}

	records, result := New(nil).Consolidate(items)

	require.Len(t, records, 3)
	assert.Equal(t, 5, result.InputRows)
	assert.Equal(t, 1, result.ZeroRows)
	assert.Equal(t, 1, result.DuplicateRows)
	assert.Equal(t, 1, result.NegativeRows)
	assert.Equal(t, 3, result.OutputRows)

	assert.Equal(t, "100.5", records[0].ExpenseValue.String())
	assert.Equal(t, "-20", records[1].ExpenseValue.String())
	assert.Equal(t, "111111", records[2].OperatorID)
	assert.Nil(t, records[0].TaxID)
	assert.Nil(t, records[0].LegalName)
}

func TestConsolidate_DerivesYearAndQuarter(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		year    int
		quarter int
	}{
		{"iso", "2023-05-15", 2023, 2},
		{"day first", "15/11/2023", 2023, 4},
		{"first day of year", "01/01/2024", 2024, 1},
		{"end of september", "2024-09-30", 2024, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _ := New(nil).Consolidate([]types.ExpenseLineItem{item("1", tt.date, "4", "d", "1")})
			require.Len(t, records, 1)
			require.NotNil(t, records[0].StatementDate)
			assert.Equal(t, tt.year, records[0].Year)
			assert.Equal(t, tt.quarter, records[0].QuarterNumber)
		})
	}
}

func TestConsolidate_UnparsableDateKeepsRow(t *testing.T) {
	records, result := New(nil).Consolidate([]types.ExpenseLineItem{
		item("1", "not a date", "4", "d", "10"),
	})

	require.Len(t, records, 1)
	assert.Nil(t, records[0].StatementDate)
	assert.Equal(t, 1, result.UnparsableDates)

	rows := Rows(records)
	assert.Equal(t, "", rows[0][0])
	assert.Equal(t, "", rows[0][4])
	assert.Equal(t, "", rows[0][5])
}

func TestConsolidate_DateFormatsShareDedupKey(t *testing.T) {
	_, result := New(nil).Consolidate([]types.ExpenseLineItem{
		item("1", "2024-03-31", "4", "d", "10.0"),
		item("1", "31/03/2024", "4", "d", "10"),
	})
	assert.Equal(t, 1, result.DuplicateRows)
}

func TestConsolidate_SourceFileIsNotPartOfKey(t *testing.T) {
	a := item("1", "2024-03-31", "4", "d", "10")
	a.SourceFile = "1T2024.csv"
	b := a
	b.SourceFile = "1T2024_retificado.csv"

	_, result := New(nil).Consolidate([]types.ExpenseLineItem{a, b})
	assert.Equal(t, 1, result.DuplicateRows)
}

func TestConsolidate_UnparsableBalanceIsDropped(t *testing.T) {
	records, result := New(nil).Consolidate([]types.ExpenseLineItem{
		item("1", "2024-03-31", "4", "d", "abc"),
		item("1", "2024-03-31", "4", "d", "1,5"),
	})

	require.Len(t, records, 1)
	assert.Equal(t, "1.5", records[0].ExpenseValue.String())
	assert.Equal(t, 1, result.UnparsableValues)
	assert.Equal(t, 1, result.ZeroRows)
}

func TestRun_WritesArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidated_expenses.zip")

	result, err := New(nil).Run([]types.ExpenseLineItem{
		item("123", "2024-01-01", "411", "EVENTOS", "10"),
	}, path)
	require.NoError(t, err)
	assert.Equal(t, path, result.ArtifactPath)

	data, err := csvparser.Parse(path, config.CSVSettings{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, types.ConsolidatedColumns, data.Headers)
	require.Len(t, data.Rows, 1)

	row := data.Rows[0]
	assert.Equal(t, "2024-01-01", row[types.ColStatementDate])
	assert.Equal(t, "1", row[types.ColQuarterNumber])
	assert.Equal(t, "2024", row[types.ColYear])
	assert.Equal(t, "", row[types.ColTaxID])
}

func TestRun_EmptyInputWritesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidated_expenses.csv")

	result, err := New(nil).Run(nil, path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.OutputRows)

	data, err := csvparser.Parse(path, config.CSVSettings{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, types.ConsolidatedColumns, data.Headers)
	assert.Empty(t, data.Rows)
}

func TestLineItemsFromData(t *testing.T) {
	cols := config.Default().Source.Columns
	data := &csvparser.CSVData{
		Headers: []string{"DATA", "REG_ANS", "CD_CONTA_CONTABIL", "DESCRICAO", "VL_SALDO_FINAL"},
		Rows: []map[string]string{{
			"DATA": "2024-01-01", "REG_ANS": "123", "CD_CONTA_CONTABIL": "411",
			"DESCRICAO": "EVENTOS", "VL_SALDO_FINAL": "10",
		}},
	}

	items, err := LineItemsFromData(data, cols, "1T2024.csv")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "123", items[0].OperatorID)
	assert.Equal(t, "1T2024.csv", items[0].SourceFile)

	data.Headers = data.Headers[:4]
	_, err = LineItemsFromData(data, cols, "x")
	assert.ErrorIs(t, err, csvparser.ErrMissingColumn)
}
