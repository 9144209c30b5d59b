package formula

import (
	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/frame"
)

// Spec is the backend-specific description of a materialized formula: its
// terms, column names and the columns each term occupies.
type Spec interface {
	Engine() Engine
}

// Parsed is a formula parsed by a backend but not yet evaluated on data.
type Parsed interface {
	Engine() Engine
	String() string
}

// Term is one component of a formula. Backends use their own term types.
type Term interface {
	String() string
	Equal(other Term) bool
}

// TermSlice is the half-open column range [Start, Stop) occupied by a term.
type TermSlice struct {
	Term  Term
	Name  string
	Start int
	Stop  int
}

// Len returns the number of columns in the slice.
func (s TermSlice) Len() int { return s.Stop - s.Start }

// Namespacer is implemented by evaluation environments made of stacked
// namespaces.
type Namespacer interface {
	Namespaces() []map[string]any
}

// NAHandler is the strategy a backend calls to deal with rows holding
// missing values. values are row-aligned arrays, masks flag the missing
// rows of each array and origins name where each array came from.
type NAHandler interface {
	Types() []string
	Handle(values []any, masks [][]bool, origins []string) ([]any, error)
}

// BuildRequest carries the inputs of a matrix build to a backend.
type BuildRequest struct {
	// Formula is a formula string, a Parsed formula or a Spec.
	Formula any
	Data    *frame.Frame
	// Env is an integer scope depth, a map or a Namespacer.
	Env      any
	NAAction any
	Ordering Ordering
}

// ConstraintSystem is a linear constraint system as a backend produces it.
// Backends fill either Constants (one column) or Values (one dimension).
type ConstraintSystem struct {
	Matrix        *mat.Dense
	Constants     *mat.Dense
	Values        []float64
	VariableNames []string
}

// Parser turns formula strings into the backend's formula objects.
type Parser interface {
	Parse(formula string, ordering Ordering) (Parsed, error)
}

// MatrixBuilder materializes design matrices. lhs is nil when the formula
// has no left-hand side.
type MatrixBuilder interface {
	Build(req *BuildRequest) (lhs, rhs *Matrix, err error)
}

// SpecDescriber answers questions about a backend's specs.
type SpecDescriber interface {
	// SpecOf extracts the spec carried by a backend matrix object.
	SpecOf(v any) (Spec, bool)
	// Labels returns the names a spec reports for itself.
	Labels(spec Spec) []string
	ColumnNames(spec Spec) []string
	Terms(spec Spec) []Term
	TermSlices(spec Spec) []TermSlice
	Slice(spec Spec, term Term) (start, stop int, err error)
	InterceptTerm() Term
	TermName(t Term) string
	Describe(spec Spec) string
}

// ConstraintExtractor builds linear constraint systems. constraints is a
// string, []string, *mat.Dense, ConstraintPair or map[string]float64.
type ConstraintExtractor interface {
	LinearConstraints(constraints any, variableNames []string) (*ConstraintSystem, error)
}

// Backend is a complete formula engine.
type Backend interface {
	Parser
	MatrixBuilder
	SpecDescriber
	ConstraintExtractor

	// NAAction returns the engine's NA policy for an action name and the
	// missing-value type tags.
	NAAction(action string, types []string) (any, error)
	// EmptyEnv returns an evaluation environment with no variables.
	EmptyEnv() any
}

// Matrix is a design or response matrix.
type Matrix struct {
	*mat.Dense

	Columns  []string // column labels, nil for plain output
	RowIndex []int    // labels of the rows kept, nil for plain output
	Spec     Spec
}

// ModelSpec returns the spec the matrix was built from.
func (m *Matrix) ModelSpec() Spec { return m.Spec }

// Col returns the values of the named column.
func (m *Matrix) Col(name string) ([]float64, bool) {
	for j, c := range m.Columns {
		if c == name {
			return mat.Col(nil, j, m.Dense), true
		}
	}
	return nil, false
}

func (m *Matrix) plain() *Matrix {
	return &Matrix{Dense: m.Dense, Spec: m.Spec}
}
