package design

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/stat"

	"github.com/adgarrio/statformula/frame"
)

// Env resolves names that are not columns of the data.
type Env interface {
	Lookup(name string) (any, bool)
}

// MapEnv is an Env backed by a map. Values may be float64 or int scalars,
// []float64 or []string vectors, or func(float64) float64 and
// func([]float64) []float64 functions.
type MapEnv map[string]any

func (m MapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// FactorInfo is the state a factor needs to be evaluated again on new data.
type FactorInfo struct {
	Code        string
	Categorical bool
	Levels      []string
	Transforms  map[string][2]float64 // stateful call text -> (mean, scale)
}

// Evaluator evaluates factor codes against a frame.
type Evaluator struct {
	Data *frame.Frame
	Env  Env

	// Known holds factor state from an earlier fit. When nil, stateful
	// transforms learn their parameters from Data.
	Known map[string]*FactorInfo
	// DDoF is the delta degrees of freedom of learned standard deviations.
	DDoF int

	learned map[string][2]float64
}

// Eval evaluates a factor code such as "x", "log(x)" or "C(g)".
func (e *Evaluator) Eval(code string) (*Value, *FactorInfo, error) {
	p := exprParser{src: code}
	if err := p.lex(); err != nil {
		return nil, nil, err
	}
	node, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if p.peek().kind != eEOF {
		return nil, nil, fmt.Errorf("factor %q: unexpected %q", code, p.peek().text)
	}

	e.learned = make(map[string][2]float64)
	var known *FactorInfo
	if e.Known != nil {
		known = e.Known[code]
	}
	v, err := e.eval(node, known)
	if err != nil {
		return nil, nil, fmt.Errorf("factor %q: %w", code, err)
	}
	if v.scalar {
		v = v.broadcast(e.Data.Len())
	}

	info := &FactorInfo{Code: code, Categorical: v.categorical, Transforms: e.learned}
	if known != nil {
		info.Transforms = known.Transforms
	}
	out := &Value{
		Code:        code,
		Categorical: v.categorical,
		Num:         v.num,
		Cat:         v.cat,
		Null:        v.null,
		NaN:         v.nan,
	}
	return out, info, nil
}

// operand is an intermediate evaluation result.
type operand struct {
	scalar      bool
	s           float64
	categorical bool
	num         []float64
	cat         []string
	null        []bool
	nan         []bool
	fn          func([]float64) []float64
}

func (o operand) broadcast(n int) operand {
	num := make([]float64, n)
	for i := range num {
		num[i] = o.s
	}
	return operand{num: num}
}

func (e *Evaluator) eval(n exprNode, known *FactorInfo) (operand, error) {
	switch n := n.(type) {
	case numNode:
		return operand{scalar: true, s: float64(n)}, nil
	case nameNode:
		return e.lookup(string(n))
	case unaryNode:
		x, err := e.eval(n.x, known)
		if err != nil {
			return operand{}, err
		}
		return arith("-", operand{scalar: true}, x)
	case binaryNode:
		l, err := e.eval(n.l, known)
		if err != nil {
			return operand{}, err
		}
		r, err := e.eval(n.r, known)
		if err != nil {
			return operand{}, err
		}
		return arith(n.op, l, r)
	case callNode:
		return e.call(n, known)
	}
	return operand{}, fmt.Errorf("unsupported expression")
}

func (e *Evaluator) lookup(name string) (operand, error) {
	if col, ok := e.Data.Column(name); ok {
		if col.Kind == frame.Categorical {
			return operand{categorical: true, cat: col.Str, null: col.Null}, nil
		}
		return operand{num: col.Num, null: col.Null}, nil
	}
	if e.Env != nil {
		if v, ok := e.Env.Lookup(name); ok {
			return e.fromEnv(name, v)
		}
	}
	return operand{}, fmt.Errorf("name %q is not a column of the data or a variable in the evaluation environment", name)
}

func (e *Evaluator) fromEnv(name string, v any) (operand, error) {
	n := e.Data.Len()
	switch x := v.(type) {
	case float64:
		return operand{scalar: true, s: x}, nil
	case int:
		return operand{scalar: true, s: float64(x)}, nil
	case []float64:
		if len(x) != n {
			return operand{}, fmt.Errorf("variable %q has %d rows, data has %d", name, len(x), n)
		}
		return operand{num: x}, nil
	case []string:
		if len(x) != n {
			return operand{}, fmt.Errorf("variable %q has %d rows, data has %d", name, len(x), n)
		}
		return operand{categorical: true, cat: x}, nil
	case func(float64) float64:
		return operand{fn: elementwise(x)}, nil
	case func([]float64) []float64:
		return operand{fn: x}, nil
	}
	return operand{}, fmt.Errorf("variable %q has unsupported type %T", name, v)
}

func elementwise(f func(float64) float64) func([]float64) []float64 {
	return func(xs []float64) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = f(x)
		}
		return out
	}
}

var builtins = map[string]func(float64) float64{
	"log":   math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"log1p": math.Log1p,
	"exp":   math.Exp,
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"sin":   math.Sin,
	"cos":   math.Cos,
}

func (e *Evaluator) call(n callNode, known *FactorInfo) (operand, error) {
	if len(n.args) != 1 {
		return operand{}, fmt.Errorf("%s() takes exactly one argument, got %d", n.fn, len(n.args))
	}
	arg, err := e.eval(n.args[0], known)
	if err != nil {
		return operand{}, err
	}
	if arg.scalar {
		arg = arg.broadcast(e.Data.Len())
	}

	switch n.fn {
	case "I":
		return arg, nil
	case "C":
		return categorize(arg), nil
	case "center", "standardize", "scale":
		return e.transform(n, arg, known)
	}

	if arg.categorical {
		return operand{}, fmt.Errorf("%s() cannot be applied to categorical data", n.fn)
	}

	var fn func([]float64) []float64
	if e.Env != nil {
		if v, ok := e.Env.Lookup(n.fn); ok {
			op, err := e.fromEnv(n.fn, v)
			if err != nil {
				return operand{}, err
			}
			fn = op.fn
		}
	}
	if fn == nil {
		if b, ok := builtins[n.fn]; ok {
			fn = elementwise(b)
		}
	}
	if fn == nil {
		return operand{}, fmt.Errorf("unknown function %q", n.fn)
	}
	out := fn(arg.num)
	if len(out) != len(arg.num) {
		return operand{}, fmt.Errorf("%s() returned %d values for %d rows", n.fn, len(out), len(arg.num))
	}
	return operand{num: out, null: arg.null}, nil
}

// transform applies a stateful centring or standardising transform. The
// mean and scale are learned on the first fit and reused afterwards.
func (e *Evaluator) transform(n callNode, arg operand, known *FactorInfo) (operand, error) {
	if arg.categorical {
		return operand{}, fmt.Errorf("%s() cannot be applied to categorical data", n.fn)
	}
	key := n.String()

	var params [2]float64
	if known != nil {
		p, ok := known.Transforms[key]
		if !ok {
			return operand{}, fmt.Errorf("no fitted state for %s", key)
		}
		params = p
	} else {
		var xs []float64
		for _, x := range arg.num {
			if !math.IsNaN(x) {
				xs = append(xs, x)
			}
		}
		if len(xs) == 0 {
			return operand{}, fmt.Errorf("%s: no observed values", key)
		}
		mean, variance := stat.PopMeanVariance(xs, nil)
		params = [2]float64{mean, 1}
		if n.fn != "center" {
			dof := len(xs) - e.DDoF
			if dof <= 0 {
				return operand{}, fmt.Errorf("%s: %d observed values leave no degrees of freedom", key, len(xs))
			}
			std := math.Sqrt(variance * float64(len(xs)) / float64(dof))
			if std == 0 || math.IsNaN(std) {
				return operand{}, fmt.Errorf("%s: zero variance", key)
			}
			params[1] = std
		}
		e.learned[key] = params
	}

	out := make([]float64, len(arg.num))
	for i, x := range arg.num {
		out[i] = (x - params[0]) / params[1]
	}
	return operand{num: out, null: arg.null}, nil
}

func categorize(o operand) operand {
	if o.categorical {
		return o
	}
	cat := make([]string, len(o.num))
	nan := make([]bool, len(o.num))
	for i, x := range o.num {
		if math.IsNaN(x) {
			nan[i] = true
			continue
		}
		cat[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return operand{categorical: true, cat: cat, null: o.null, nan: nan}
}

func arith(op string, l, r operand) (operand, error) {
	if l.categorical || r.categorical {
		return operand{}, fmt.Errorf("arithmetic %q on categorical data", op)
	}
	if l.fn != nil || r.fn != nil {
		return operand{}, fmt.Errorf("function used as a value")
	}
	f := arithFunc(op)
	if l.scalar && r.scalar {
		return operand{scalar: true, s: f(l.s, r.s)}, nil
	}
	n := len(l.num)
	if l.scalar {
		n = len(r.num)
	}
	out := make([]float64, n)
	for i := range out {
		a, b := l.s, r.s
		if !l.scalar {
			a = l.num[i]
		}
		if !r.scalar {
			b = r.num[i]
		}
		out[i] = f(a, b)
	}
	return operand{num: out, null: orMask(l.null, r.null, n)}, nil
}

func arithFunc(op string) func(a, b float64) float64 {
	switch op {
	case "+":
		return func(a, b float64) float64 { return a + b }
	case "-":
		return func(a, b float64) float64 { return a - b }
	case "*":
		return func(a, b float64) float64 { return a * b }
	case "/":
		return func(a, b float64) float64 { return a / b }
	}
	return math.Pow
}

func orMask(a, b []bool, n int) []bool {
	if a == nil && b == nil {
		return nil
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = a != nil && a[i] || b != nil && b[i]
	}
	return out
}

// --- factor expression grammar ---

type exprNode interface{ String() string }

type numNode float64

func (n numNode) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }

type nameNode string

func (n nameNode) String() string { return string(n) }

type unaryNode struct{ x exprNode }

func (n unaryNode) String() string { return "-" + n.x.String() }

type binaryNode struct {
	op   string
	l, r exprNode
}

func (n binaryNode) String() string { return "(" + n.l.String() + n.op + n.r.String() + ")" }

type callNode struct {
	fn   string
	args []exprNode
}

func (n callNode) String() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.String()
	}
	return n.fn + "(" + strings.Join(parts, ",") + ")"
}

type eKind int

const (
	eEOF eKind = iota
	eNum
	eName
	eOp
	eLParen
	eRParen
	eComma
)

type eTok struct {
	kind eKind
	text string
}

type exprParser struct {
	src  string
	toks []eTok
	pos  int
}

func (p *exprParser) lex() error {
	rs := []rune(p.src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1]):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' ||
				(rs[j] == '-' || rs[j] == '+') && j > i && rs[j-1] == 'e') {
				j++
			}
			p.toks = append(p.toks, eTok{eNum, string(rs[i:j])})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || rs[j] == '.' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			p.toks = append(p.toks, eTok{eName, string(rs[i:j])})
			i = j
		case r == '`':
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return fmt.Errorf("factor %q: unterminated back-quoted name", p.src)
			}
			p.toks = append(p.toks, eTok{eName, string(rs[i+1 : j])})
			i = j + 1
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			p.toks = append(p.toks, eTok{eOp, "**"})
			i += 2
		case strings.ContainsRune("+-*/^", r):
			p.toks = append(p.toks, eTok{eOp, string(r)})
			i++
		case r == '(':
			p.toks = append(p.toks, eTok{eLParen, "("})
			i++
		case r == ')':
			p.toks = append(p.toks, eTok{eRParen, ")"})
			i++
		case r == ',':
			p.toks = append(p.toks, eTok{eComma, ","})
			i++
		default:
			return fmt.Errorf("factor %q: unexpected character %q", p.src, r)
		}
	}
	p.toks = append(p.toks, eTok{kind: eEOF})
	return nil
}

func (p *exprParser) peek() eTok { return p.toks[p.pos] }

func (p *exprParser) next() eTok {
	t := p.toks[p.pos]
	if t.kind != eEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) parseExpr() (exprNode, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == eOp && (t.text == "+" || t.text == "-"); t = p.peek() {
		p.next()
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseTerm() (exprNode, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == eOp && (t.text == "*" || t.text == "/"); t = p.peek() {
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if t := p.peek(); t.kind == eOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "+" {
			return x, nil
		}
		return unaryNode{x: x}, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (exprNode, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == eOp && (t.text == "**" || t.text == "^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case eNum:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("factor %q: bad number %q", p.src, t.text)
		}
		return numNode(v), nil
	case eName:
		if p.peek().kind != eLParen {
			return nameNode(t.text), nil
		}
		p.next()
		call := callNode{fn: t.text}
		if p.peek().kind == eRParen {
			p.next()
			return call, nil
		}
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, arg)
			sep := p.next()
			if sep.kind == eRParen {
				return call, nil
			}
			if sep.kind != eComma {
				return nil, fmt.Errorf("factor %q: expected \",\" or \")\"", p.src)
			}
		}
	case eLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != eRParen {
			return nil, fmt.Errorf("factor %q: expected \")\"", p.src)
		}
		return x, nil
	}
	return nil, fmt.Errorf("factor %q: unexpected %q", p.src, t.text)
}

// SortLevels orders categorical levels numerically when every level is a
// number and lexically otherwise.
func SortLevels(levels []string) {
	numeric := true
	vals := make(map[string]float64, len(levels))
	for _, l := range levels {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			numeric = false
			break
		}
		vals[l] = v
	}
	if numeric {
		sort.Slice(levels, func(i, j int) bool { return vals[levels[i]] < vals[levels[j]] })
		return
	}
	sort.Strings(levels)
}
