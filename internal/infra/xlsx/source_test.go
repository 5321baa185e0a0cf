package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "socios.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRowsReadsActiveSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{
		{"Nombre", "Teléfono", "DNI"},
		{"Ana García López", "600111222", "12345678A"},
	})
	src := NewSource(map[roster.Snapshot]Workbook{roster.Current: {Path: path}})

	rows, err := src.Rows(context.Background(), roster.Current)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Ana García López", "600111222", "12345678A"}, rows[1])
}

func TestRowsReadsNamedSheet(t *testing.T) {
	path := writeWorkbook(t, "2023", [][]any{{"Nombre"}, {"Luis Pérez"}})
	src := NewSource(map[roster.Snapshot]Workbook{roster.Previous: {Path: path, Sheet: "2023"}})

	rows, err := src.Rows(context.Background(), roster.Previous)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Nombre"}, {"Luis Pérez"}}, rows)
}

func TestRowsMissingFile(t *testing.T) {
	src := NewSource(map[roster.Snapshot]Workbook{
		roster.Current: {Path: filepath.Join(t.TempDir(), "missing.xlsx")},
	})
	_, err := src.Rows(context.Background(), roster.Current)
	assert.Error(t, err)
}

func TestHasIgnoresEmptyPaths(t *testing.T) {
	src := NewSource(map[roster.Snapshot]Workbook{
		roster.Current:  {Path: "socios.xlsx"},
		roster.Previous: {},
	})
	assert.True(t, src.Has(roster.Current))
	assert.False(t, src.Has(roster.Previous))

	_, err := src.Rows(context.Background(), roster.Previous)
	assert.ErrorIs(t, err, roster.ErrUnknownSnapshot)
}

func TestStoreOverWorkbook(t *testing.T) {
	row := make([]any, 12)
	for i := range row {
		row[i] = ""
	}
	row[0], row[2], row[11] = "Ana García López", "12345678A", "@ana_g"
	path := writeWorkbook(t, "Sheet1", [][]any{{"Nombre"}, row})

	store, err := roster.NewStore(NewSource(map[roster.Snapshot]Workbook{roster.Current: {Path: path}}), roster.DefaultSchema())
	require.NoError(t, err)
	out, err := roster.NewMatcher(store).MatchColumn(context.Background(), roster.Current,
		roster.Signal{Field: roster.FieldUsername, Value: "ana_g"})
	require.NoError(t, err)
	assert.Equal(t, roster.SingleMatch, out.Kind)
	assert.Equal(t, "12345678A", out.Entry().DNI)
}
