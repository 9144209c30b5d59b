package lincon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var abc = []string{"a", "b", "c"}

func TestParse(t *testing.T) {
	cases := []struct {
		name      string
		exprs     []string
		coefs     [][]float64
		constants []float64
	}{
		{"sum", []string{"a + b = 1"}, [][]float64{{1, 1, 0}}, []float64{1}},
		{"bare expression is zero", []string{"a - c"}, [][]float64{{1, 0, -1}}, []float64{0}},
		{"scaled and moved", []string{"2*a = 3 + b/2"}, [][]float64{{2, -0.5, 0}}, []float64{3}},
		{"parentheses", []string{"2*(a - b) = -(c - 4)"}, [][]float64{{2, -2, 1}}, []float64{4}},
		{"commas", []string{"a = 0, b = 0"}, [][]float64{{1, 0, 0}, {0, 1, 0}}, []float64{0, 0}},
		{"chained equalities", []string{"a = b = c"}, [][]float64{{1, -1, 0}, {0, 1, -1}}, []float64{0, 0}},
		{"several expressions", []string{"a = 1", "c = 2"}, [][]float64{{1, 0, 0}, {0, 0, 1}}, []float64{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sys, err := Parse(tc.exprs, abc)
			require.NoError(t, err)
			require.Equal(t, tc.coefs, sys.Coefs)
			require.Equal(t, tc.constants, sys.Constants)
		})
	}
}

func TestParse_LongestNameWins(t *testing.T) {
	names := []string{"x", "x1", "C(g)[T.b]", "Intercept"}
	sys, err := Parse([]string{"x1 + C(g)[T.b] = Intercept"}, names)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0, 1, 1, -1}}, sys.Coefs)
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"1 = 2",
		"a * b = 1",
		"a / b = 1",
		"a / 0",
		"d = 1",
		"a = (b",
		"a = ",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse([]string{expr}, abc)
			require.Error(t, err)
		})
	}

	_, err := Parse(nil, abc)
	require.Error(t, err)

	_, err = Parse([]string{"a * b"}, abc)
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	require.Equal(t, "a * b", lerr.Expr)
}

func TestFromMap(t *testing.T) {
	sys, err := FromMap(map[string]float64{"c": 2, "a": 1}, abc)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 0, 0}, {0, 0, 1}}, sys.Coefs)
	require.Equal(t, []float64{1, 2}, sys.Constants)

	_, err = FromMap(map[string]float64{"zz": 1}, abc)
	require.Error(t, err)
	_, err = FromMap(nil, abc)
	require.Error(t, err)
}
