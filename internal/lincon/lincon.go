// Package lincon parses linear constraints written as equations over named
// variables, such as "a + 2*b = 1" or "x1 = x2 = 0".
package lincon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Error reports a malformed constraint.
type Error struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("linear constraint %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// System is a parsed constraint system R b = q.
type System struct {
	Coefs     [][]float64 // one row per constraint, one column per variable
	Constants []float64
}

// Parse parses each expression, which may itself hold comma-separated
// constraints, against the ordered variable names. An expression without
// "=" constrains its value to zero; chained equalities yield one constraint
// per "=".
func Parse(exprs []string, names []string) (*System, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("no constraints given")
	}
	p := &parser{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		p.index[n] = i
	}
	p.byLength = append([]string(nil), names...)
	sort.SliceStable(p.byLength, func(i, j int) bool { return len(p.byLength[i]) > len(p.byLength[j]) })

	sys := &System{}
	for _, e := range exprs {
		if err := p.parse(e, sys); err != nil {
			return nil, err
		}
	}
	if len(sys.Coefs) == 0 {
		return nil, fmt.Errorf("no constraints given")
	}
	return sys, nil
}

// FromMap builds one constraint per entry: variable = value. Rows follow the
// order of names.
func FromMap(m map[string]float64, names []string) (*System, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("no constraints given")
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for k := range m {
		if !known[k] {
			return nil, fmt.Errorf("unknown variable %q in constraint", k)
		}
	}
	sys := &System{}
	for j, n := range names {
		v, ok := m[n]
		if !ok {
			continue
		}
		row := make([]float64, len(names))
		row[j] = 1
		sys.Coefs = append(sys.Coefs, row)
		sys.Constants = append(sys.Constants, v)
	}
	return sys, nil
}

// linear is a linear combination of variables plus a constant.
type linear struct {
	coefs map[int]float64
	c     float64
}

func constant(c float64) linear { return linear{coefs: map[int]float64{}, c: c} }

func (l linear) isConstant() bool {
	for _, v := range l.coefs {
		if v != 0 {
			return false
		}
	}
	return true
}

func (l linear) scale(k float64) linear {
	out := constant(l.c * k)
	for i, v := range l.coefs {
		out.coefs[i] = v * k
	}
	return out
}

func (l linear) add(o linear, sign float64) linear {
	out := constant(l.c + sign*o.c)
	for i, v := range l.coefs {
		out.coefs[i] += v
	}
	for i, v := range o.coefs {
		out.coefs[i] += sign * v
	}
	return out
}

type tkind int

const (
	tEOF tkind = iota
	tVar
	tNum
	tOp
)

type tok struct {
	kind tkind
	text string
	v    float64
	idx  int
	pos  int
}

type parser struct {
	names    []string
	index    map[string]int
	byLength []string

	src  string
	toks []tok
	pos  int
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &Error{Expr: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) lex() error {
	p.toks = p.toks[:0]
	p.pos = 0
	s := p.src
	for i := 0; i < len(s); {
		r := rune(s[i])
		if unicode.IsSpace(r) {
			i++
			continue
		}
		if name := p.matchName(s[i:]); name != "" {
			p.toks = append(p.toks, tok{kind: tVar, text: name, idx: p.index[name], pos: i})
			i += len(name)
			continue
		}
		if unicode.IsDigit(r) || r == '.' {
			j := i
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.' || s[j] == 'e' || s[j] == 'E' ||
				(s[j] == '-' || s[j] == '+') && j > i && (s[j-1] == 'e' || s[j-1] == 'E')) {
				j++
			}
			v, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return p.errorf(i, "bad number %q", s[i:j])
			}
			p.toks = append(p.toks, tok{kind: tNum, text: s[i:j], v: v, pos: i})
			i = j
			continue
		}
		if strings.ContainsRune("+-*/()=,", r) {
			p.toks = append(p.toks, tok{kind: tOp, text: string(r), pos: i})
			i++
			continue
		}
		j := i
		for j < len(s) && !unicode.IsSpace(rune(s[j])) && !strings.ContainsRune("+-*/()=,", rune(s[j])) {
			j++
		}
		return p.errorf(i, "unrecognized token %q; known variables are %s", s[i:j], strings.Join(p.names, ", "))
	}
	p.toks = append(p.toks, tok{kind: tEOF, pos: len(s)})
	return nil
}

// matchName finds the longest variable name at the start of s that is not
// followed by more identifier characters.
func (p *parser) matchName(s string) string {
	for _, n := range p.byLength {
		if n == "" || !strings.HasPrefix(s, n) {
			continue
		}
		if len(s) > len(n) && isWordByte(s[len(n)]) && isWordByte(n[len(n)-1]) {
			continue
		}
		return n
	}
	return ""
}

func isWordByte(b byte) bool {
	return b == '_' || b == '.' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func (p *parser) peek() tok { return p.toks[p.pos] }

func (p *parser) next() tok {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tOp && t.text == text
}

func (p *parser) parse(src string, sys *System) error {
	p.src = src
	if err := p.lex(); err != nil {
		return err
	}
	for {
		if err := p.parseConstraint(sys); err != nil {
			return err
		}
		if p.isOp(",") {
			p.next()
			continue
		}
		if t := p.peek(); t.kind != tEOF {
			return p.errorf(t.pos, "unexpected %q", t.text)
		}
		return nil
	}
}

func (p *parser) parseConstraint(sys *System) error {
	sides := []linear{}
	first, err := p.parseSum()
	if err != nil {
		return err
	}
	sides = append(sides, first)
	for p.isOp("=") {
		p.next()
		side, err := p.parseSum()
		if err != nil {
			return err
		}
		sides = append(sides, side)
	}
	if len(sides) == 1 {
		sides = append(sides, constant(0))
	}
	for i := 0; i+1 < len(sides); i++ {
		diff := sides[i].add(sides[i+1], -1)
		if diff.isConstant() {
			return p.errorf(0, "constraint has no variables")
		}
		row := make([]float64, len(p.names))
		for j, v := range diff.coefs {
			row[j] = v
		}
		sys.Coefs = append(sys.Coefs, row)
		sys.Constants = append(sys.Constants, -diff.c)
	}
	return nil
}

func (p *parser) parseSum() (linear, error) {
	acc, err := p.parseProduct()
	if err != nil {
		return linear{}, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next()
		rhs, err := p.parseProduct()
		if err != nil {
			return linear{}, err
		}
		sign := 1.0
		if op.text == "-" {
			sign = -1
		}
		acc = acc.add(rhs, sign)
	}
	return acc, nil
}

func (p *parser) parseProduct() (linear, error) {
	acc, err := p.parseUnary()
	if err != nil {
		return linear{}, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return linear{}, err
		}
		switch {
		case op.text == "/":
			if !rhs.isConstant() {
				return linear{}, p.errorf(op.pos, "cannot divide by a variable")
			}
			if rhs.c == 0 {
				return linear{}, p.errorf(op.pos, "division by zero")
			}
			acc = acc.scale(1 / rhs.c)
		case rhs.isConstant():
			acc = acc.scale(rhs.c)
		case acc.isConstant():
			acc = rhs.scale(acc.c)
		default:
			return linear{}, p.errorf(op.pos, "cannot multiply two variables")
		}
	}
	return acc, nil
}

func (p *parser) parseUnary() (linear, error) {
	if p.isOp("-") {
		p.next()
		x, err := p.parseUnary()
		return x.scale(-1), err
	}
	if p.isOp("+") {
		p.next()
		return p.parseUnary()
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (linear, error) {
	t := p.next()
	switch t.kind {
	case tNum:
		return constant(t.v), nil
	case tVar:
		l := constant(0)
		l.coefs[t.idx] = 1
		return l, nil
	case tOp:
		if t.text == "(" {
			x, err := p.parseSum()
			if err != nil {
				return linear{}, err
			}
			if !p.isOp(")") {
				return linear{}, p.errorf(p.peek().pos, "expected \")\"")
			}
			p.next()
			return x, nil
		}
	case tEOF:
		return linear{}, p.errorf(t.pos, "unexpected end of constraint")
	}
	return linear{}, p.errorf(t.pos, "unexpected %q", t.text)
}
