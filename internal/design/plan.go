package design

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/internal/terms"
)

// InterceptName labels the intercept column.
const InterceptName = "Intercept"

// Span is the half-open column range [Start, Stop) a term occupies.
type Span struct {
	Start, Stop int
}

// Plan lays out the columns of a design matrix for an ordered term list.
type Plan struct {
	Terms   []terms.Term
	Factors map[string]*FactorInfo
	Columns []string
	Spans   []Span

	subterms [][]subterm // per term, the column groups it expands to
}

// part is one factor of a subterm. Numeric factors are always included;
// categorical factors are coded with every level when full is set.
type part struct {
	code string
	full bool
}

type subterm []part

// NewPlan computes levels, codings and column names. Factor state found in
// known (from an earlier fit) takes precedence over the observed values.
func NewPlan(ts []terms.Term, values map[string]*Value, infos map[string]*FactorInfo, known map[string]*FactorInfo) (*Plan, error) {
	p := &Plan{Terms: ts, Factors: make(map[string]*FactorInfo)}

	for _, code := range terms.Codes(ts) {
		v, ok := values[code]
		if !ok {
			return nil, fmt.Errorf("factor %q was not evaluated", code)
		}
		info := &FactorInfo{Code: code, Categorical: v.Categorical}
		if fi := infos[code]; fi != nil {
			info.Transforms = fi.Transforms
		}
		if k := known[code]; k != nil {
			if k.Categorical != v.Categorical {
				return nil, fmt.Errorf("factor %q changed kind since the model was built", code)
			}
			info.Levels = k.Levels
			info.Transforms = k.Transforms
		} else if v.Categorical {
			info.Levels = observedLevels(v)
		}
		p.Factors[code] = info
	}

	used := make(map[string]map[string]bool)
	for _, t := range ts {
		subs := p.pickCodings(t, used)
		p.subterms = append(p.subterms, subs)

		start := len(p.Columns)
		for _, st := range subs {
			p.Columns = append(p.Columns, p.subtermColumns(st)...)
		}
		p.Spans = append(p.Spans, Span{Start: start, Stop: len(p.Columns)})
	}
	return p, nil
}

func observedLevels(v *Value) []string {
	seen := make(map[string]bool)
	var levels []string
	for i, l := range v.Cat {
		if v.Null != nil && v.Null[i] || v.NaN != nil && v.NaN[i] {
			continue
		}
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	SortLevels(levels)
	return levels
}

// factorLabels returns the per-column labels contributed by one factor.
func (p *Plan) factorLabels(code string, full bool) []string {
	info := p.Factors[code]
	if !info.Categorical {
		return []string{code}
	}
	levels := info.Levels
	format := "%s[%s]"
	if !full {
		if len(levels) > 0 {
			levels = levels[1:]
		}
		format = "%s[T.%s]"
	}
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = fmt.Sprintf(format, code, l)
	}
	return out
}

func (p *Plan) subtermColumns(st subterm) []string {
	if len(st) == 0 {
		return []string{InterceptName}
	}
	labels := p.partLabels(st)
	var cols []string
	combine(labels, func(idx []int) {
		names := make([]string, len(idx))
		for j, k := range idx {
			names[j] = labels[j][k]
		}
		cols = append(cols, strings.Join(names, ":"))
	})
	return cols
}

func (p *Plan) partLabels(st subterm) [][]string {
	out := make([][]string, len(st))
	for j, pt := range st {
		out[j] = p.factorLabels(pt.code, pt.full)
	}
	return out
}

// pickCodings expands t into the subterms that add new columns to the
// span of the earlier terms. Terms are grouped by their numeric factors;
// within a group every subset of categorical factors is coded once, so the
// intercept (the empty subset) makes the first categorical main effect
// reduced rank. Lower-order subsets that were not spanned yet are absorbed
// into a higher one by coding the extra factor with every level.
func (p *Plan) pickCodings(t terms.Term, used map[string]map[string]bool) []subterm {
	var numeric, categorical []string
	for _, code := range t.Factors {
		if p.Factors[code].Categorical {
			categorical = append(categorical, code)
		} else {
			numeric = append(numeric, code)
		}
	}
	bucket := terms.Term{Factors: numeric}.Key()
	if used[bucket] == nil {
		used[bucket] = make(map[string]bool)
	}

	var pending []map[string]bool
	for _, subset := range sortedSubsets(categorical) {
		key := terms.Term{Factors: subset}.Key()
		if used[bucket][key] {
			continue
		}
		used[bucket][key] = true
		set := make(map[string]bool, len(subset))
		for _, code := range subset {
			set[code] = false
		}
		pending = append(pending, set)
	}
	for merged := absorbOne(pending); merged != nil; merged = absorbOne(pending) {
		pending = merged
	}

	out := make([]subterm, 0, len(pending))
	for _, set := range pending {
		var st subterm
		for _, code := range t.Factors {
			if !p.Factors[code].Categorical {
				st = append(st, part{code: code})
			} else if full, ok := set[code]; ok {
				st = append(st, part{code: code, full: full})
			}
		}
		out = append(out, st)
	}
	return out
}

// sortedSubsets lists every subset of codes by size, keeping the order in
// which a binary count over the codes produces them.
func sortedSubsets(codes []string) [][]string {
	var out [][]string
	for size := 0; size <= len(codes); size++ {
		for mask := 0; mask < 1<<len(codes); mask++ {
			if bits.OnesCount(uint(mask)) != size {
				continue
			}
			var subset []string
			for j, code := range codes {
				if mask&(1<<j) != 0 {
					subset = append(subset, code)
				}
			}
			out = append(out, subset)
		}
	}
	return out
}

// absorbOne merges the first subterm that is contained in a later one with
// exactly one more factor, returning the shortened list, or nil when no
// pair merges.
func absorbOne(subs []map[string]bool) []map[string]bool {
	for i, short := range subs {
		for k := i + 1; k < len(subs); k++ {
			long := subs[k]
			if len(long) != len(short)+1 {
				continue
			}
			var extra []string
			ok := true
			for code, full := range long {
				f, in := short[code]
				switch {
				case !in:
					extra = append(extra, code)
				case f != full:
					ok = false
				}
			}
			if !ok || len(extra) != 1 {
				continue
			}
			merged := make(map[string]bool, len(long))
			for code, full := range short {
				merged[code] = full
			}
			merged[extra[0]] = true
			out := append([]map[string]bool(nil), subs[:i]...)
			out = append(out, subs[i+1:k]...)
			out = append(out, merged)
			return append(out, subs[k+1:]...)
		}
	}
	return nil
}

// combine enumerates index tuples with the first position varying fastest.
func combine(parts [][]string, fn func(idx []int)) {
	for _, p := range parts {
		if len(p) == 0 {
			return
		}
	}
	idx := make([]int, len(parts))
	for {
		fn(idx)
		j := 0
		for ; j < len(idx); j++ {
			idx[j]++
			if idx[j] < len(parts[j]) {
				break
			}
			idx[j] = 0
		}
		if j == len(idx) {
			return
		}
	}
}

// Build fills the design matrix for values with the given number of rows.
func (p *Plan) Build(values map[string]*Value, rows int) (*mat.Dense, error) {
	if rows == 0 || len(p.Columns) == 0 {
		return nil, fmt.Errorf("design matrix would be empty (%d rows, %d columns)", rows, len(p.Columns))
	}

	levelIdx := make(map[string]map[string]int)
	for code, info := range p.Factors {
		if !info.Categorical {
			continue
		}
		idx := make(map[string]int, len(info.Levels))
		for i, l := range info.Levels {
			idx[l] = i
		}
		levelIdx[code] = idx
		v := values[code]
		for i, l := range v.Cat {
			if v.Null != nil && v.Null[i] || v.NaN != nil && v.NaN[i] {
				continue
			}
			if _, ok := idx[l]; !ok {
				return nil, fmt.Errorf("factor %q: level %q was not present when the model was built", code, l)
			}
		}
	}

	X := mat.NewDense(rows, len(p.Columns), nil)
	for ti := range p.Terms {
		col := p.Spans[ti].Start
		for _, st := range p.subterms[ti] {
			if len(st) == 0 {
				for r := 0; r < rows; r++ {
					X.Set(r, col, 1)
				}
				col++
				continue
			}
			sizes := p.partLabels(st)
			for r := 0; r < rows; r++ {
				c := col
				combine(sizes, func(idx []int) {
					val := 1.0
					for j, pt := range st {
						val *= p.cell(values[pt.code], levelIdx[pt.code], pt.full, r, idx[j])
					}
					X.Set(r, c, val)
					c++
				})
			}
			col += len(p.subtermColumns(st))
		}
	}
	return X, nil
}

// cell returns the contribution of factor value v at row r to its k-th
// column.
func (p *Plan) cell(v *Value, levels map[string]int, full bool, r, k int) float64 {
	if !v.Categorical {
		return v.Num[r]
	}
	if v.Null != nil && v.Null[r] || v.NaN != nil && v.NaN[r] {
		return math.NaN()
	}
	level := levels[v.Cat[r]]
	if !full {
		level--
	}
	if level == k {
		return 1
	}
	return 0
}

// Evaluate evaluates every factor used by the given term lists, in order of
// first appearance.
func Evaluate(ev *Evaluator, lists ...[]terms.Term) ([]string, map[string]*Value, map[string]*FactorInfo, error) {
	var all []terms.Term
	for _, l := range lists {
		all = append(all, l...)
	}
	codes := terms.Codes(all)
	values := make(map[string]*Value, len(codes))
	infos := make(map[string]*FactorInfo, len(codes))
	for _, code := range codes {
		v, info, err := ev.Eval(code)
		if err != nil {
			return nil, nil, nil, err
		}
		values[code] = v
		infos[code] = info
	}
	return codes, values, infos, nil
}
