package frame

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNew_RejectsRaggedColumns(t *testing.T) {
	_, err := New(
		NumericColumn("x", []float64{1, 2, 3}),
		NumericColumn("y", []float64{1, 2}),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"y"`)
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	_, err := New(
		NumericColumn("x", []float64{1}),
		StringColumn("x", []string{"a"}),
	)
	require.Error(t, err)
}

func TestFromMap(t *testing.T) {
	t.Run("scalars make one row", func(t *testing.T) {
		f, err := FromMap(map[string]any{"x1": 1.5, "x2": 3, "g": "b"})
		require.NoError(t, err)
		require.Equal(t, 1, f.Len())
		require.Equal(t, []string{"g", "x1", "x2"}, f.Names())

		g, ok := f.Column("g")
		require.True(t, ok)
		require.Equal(t, Categorical, g.Kind)
		x2, _ := f.Column("x2")
		require.Equal(t, []float64{3}, x2.Num)
	})

	t.Run("sequences make many rows and scalars broadcast", func(t *testing.T) {
		f, err := FromMap(map[string]any{"x": []float64{1, 2, 3}, "c": 7})
		require.NoError(t, err)
		require.Equal(t, 3, f.Len())
		c, _ := f.Column("c")
		require.Equal(t, []float64{7, 7, 7}, c.Num)
		require.Equal(t, []int{0, 1, 2}, f.Index)
	})

	t.Run("nil entries become nulls", func(t *testing.T) {
		f, err := FromMap(map[string]any{"x": []any{1.0, nil, 3}})
		require.NoError(t, err)
		x, _ := f.Column("x")
		require.True(t, x.IsNull(1))
		require.True(t, math.IsNaN(x.Num[1]))
		require.False(t, x.IsNull(0))
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := FromMap(map[string]any{"x": []float64{1, 2}, "y": []float64{1}})
		require.Error(t, err)
	})
}

func TestReadCSVFrom(t *testing.T) {
	in := strings.Join([]string{
		"y,x,g",
		"1.5,2,a",
		"2.5,NaN,b",
		"3.5,,NA",
		"",
	}, "\n")

	f, err := ReadCSVFrom(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	x, _ := f.Column("x")
	require.Equal(t, Numeric, x.Kind)
	require.True(t, x.IsNaN(1))
	require.False(t, x.IsNull(1))
	require.True(t, x.IsNull(2))

	g, _ := f.Column("g")
	require.Equal(t, Categorical, g.Kind)
	require.Equal(t, "b", g.Str[1])
	require.True(t, g.IsNull(2))
}

func TestReadCSVFrom_WrongWidth(t *testing.T) {
	_, err := ReadCSVFrom(strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	wb := excelize.NewFile()
	_, err := wb.NewSheet("obs")
	require.NoError(t, err)
	rows := [][]any{
		{"y", "x", "g"},
		{1.5, 2, "a"},
		{2.5, 4, "b"},
		{3.5, nil, "NA"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("obs", cell, &r))
	}
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	f, err := ReadXLSX(path, "obs")
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())
	require.Equal(t, []string{"y", "x", "g"}, f.Names())
	x, _ := f.Column("x")
	require.Equal(t, Numeric, x.Kind)
	require.True(t, x.IsNull(2))
	g, _ := f.Column("g")
	require.Equal(t, Categorical, g.Kind)
	require.True(t, g.IsNull(2))

	// the default sheet is empty
	_, err = ReadXLSX(path, "")
	require.Error(t, err)
	_, err = ReadXLSX(path, "missing")
	require.Error(t, err)
}
