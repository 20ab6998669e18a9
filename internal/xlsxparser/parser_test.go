package xlsxparser

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "extract.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestParse_FirstSheet(t *testing.T) {
	path := buildWorkbook(t, [][]interface{}{
		{"DATA", "REG_ANS", " VL_SALDO_FINAL "},
		{"2024-01-01", "123456", "1500,75"},
		{"", "", ""},
		{"2024-04-01", "654321"},
	})

	data, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"DATA", "REG_ANS", "VL_SALDO_FINAL"}, data.Headers)
	require.Equal(t, 2, data.RowCount)
	assert.Equal(t, "1500,75", data.Rows[0]["VL_SALDO_FINAL"])
	assert.Equal(t, "", data.Rows[1]["VL_SALDO_FINAL"])
	assert.Equal(t, "Sheet1", data.Entry)
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, csvparser.ErrUnreadableArtifact)
}

func TestParse_TypedCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"DATA", "REG_ANS", "VL_SALDO_FINAL"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "123456", 1500.75}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), 654321, 1234567.5}))

	monthYear, err := f.NewStyle(&excelize.Style{NumFmt: 17})
	require.NoError(t, err)
	dayFirst := "dd/mm/yyyy"
	custom, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dayFirst})
	require.NoError(t, err)
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	require.NoError(t, err)

	require.NoError(t, f.SetCellStyle(sheet, "A2", "A2", monthYear))
	require.NoError(t, f.SetCellStyle(sheet, "A3", "A3", custom))
	require.NoError(t, f.SetCellStyle(sheet, "C2", "C3", money))

	path := filepath.Join(t.TempDir(), "typed.xlsx")
	require.NoError(t, f.SaveAs(path))

	data, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, 2, data.RowCount)

	assert.Equal(t, "2024-07-01", data.Rows[0]["DATA"])
	assert.Equal(t, "1500.75", data.Rows[0]["VL_SALDO_FINAL"])
	assert.Equal(t, "123456", data.Rows[0]["REG_ANS"])

	assert.Equal(t, "2024-09-30", data.Rows[1]["DATA"])
	assert.Equal(t, "1234567.5", data.Rows[1]["VL_SALDO_FINAL"])
	assert.Equal(t, "654321", data.Rows[1]["REG_ANS"])
}

func TestIsDateFormatCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"dd/mm/yyyy", true},
		{"yyyy-mm-dd hh:mm", true},
		{"mmm-yy", true},
		{"#,##0.00", false},
		{`[$R$-416] #,##0.00`, false},
		{`0.00 "days"`, false},
		{"General", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isDateFormatCode(tt.code), tt.code)
	}
}
