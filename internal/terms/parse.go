// Package terms implements the formula grammar shared by both formula
// dialects: lexing, parsing and the term algebra that expands operators
// into an ordered list of terms.
package terms

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// SyntaxError reports a malformed formula.
type SyntaxError struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula syntax error at offset %d in %q: %s", e.Pos, e.Formula, e.Msg)
}

// Formula is a parsed formula.
type Formula struct {
	Source string
	LHS    []Term
	RHS    []Term // the intercept, when present, is the first term
	Tilde  bool
}

// HasResponse reports whether the formula has a left-hand side.
func (f *Formula) HasResponse() bool { return len(f.LHS) > 0 }

// Parse parses a formula such as "y ~ x1 + x2". A formula without "~" is
// treated as a right-hand side.
func Parse(src string) (*Formula, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}

	f := &Formula{Source: src}
	var lhs, rhs termSet
	if p.peek().kind == tokTilde {
		p.next()
		f.Tilde = true
		rhs, err = p.parseSum()
	} else {
		lhs, err = p.parseSum()
		if err == nil && p.peek().kind == tokTilde {
			p.next()
			f.Tilde = true
			rhs, err = p.parseSum()
		} else if err == nil {
			rhs, lhs = lhs, termSet{}
		}
	}
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}

	f.LHS = lhs.terms
	if rhs.icept != interceptNo {
		f.RHS = append([]Term{{}}, rhs.terms...)
	} else {
		f.RHS = rhs.terms
	}
	return f, nil
}

// --- lexer ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokTilde
	tokPlus
	tokMinus
	tokColon
	tokStar
	tokSlash
	tokPow
	tokLParen
	tokRParen
	tokNumber
	tokFactor
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '~':
			toks = append(toks, token{tokTilde, "~", i})
			i++
		case r == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case r == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case r == ':':
			toks = append(toks, token{tokColon, ":", i})
			i++
		case r == '*':
			if i+1 < len(rs) && rs[i+1] == '*' {
				toks = append(toks, token{tokPow, "**", i})
				i += 2
			} else {
				toks = append(toks, token{tokStar, "*", i})
				i++
			}
		case r == '^':
			toks = append(toks, token{tokPow, "^", i})
			i++
		case r == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == '`':
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Formula: src, Pos: i, Msg: "unterminated back-quoted name"}
			}
			name := string(rs[i+1 : j])
			if !isIdent(name) {
				name = "`" + name + "`"
			}
			toks = append(toks, token{tokFactor, name, i})
			i = j + 1
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j]), i})
			i = j
		case isIdentStart(r):
			j := i
			for j < len(rs) && isIdentPart(rs[j]) {
				j++
			}
			name := string(rs[i:j])
			k := j
			for k < len(rs) && unicode.IsSpace(rs[k]) {
				k++
			}
			if k < len(rs) && rs[k] == '(' {
				end, err := matchParen(src, rs, k)
				if err != nil {
					return nil, err
				}
				toks = append(toks, token{tokFactor, name + compact(rs[k:end+1]), i})
				i = end + 1
				continue
			}
			toks = append(toks, token{tokFactor, name, i})
			i = j
		default:
			return nil, &SyntaxError{Formula: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{tokEOF, "", len(rs)})
	return toks, nil
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(src string, rs []rune, open int) (int, error) {
	depth := 0
	var quote rune
	for i := open; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &SyntaxError{Formula: src, Pos: open, Msg: "unbalanced parentheses"}
}

// compact drops whitespace outside quotes so equivalent calls share a code.
func compact(rs []rune) string {
	var b strings.Builder
	var quote rune
	for _, r := range rs {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		if r == '\'' || r == '"' {
			quote = r
		}
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdent(s string) bool {
	for i, r := range s {
		if i == 0 && !isIdentStart(r) || i > 0 && !isIdentPart(r) {
			return false
		}
	}
	return s != ""
}

// --- parser ---

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Formula: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// parseSum handles "+" and "-", including a leading unary minus.
func (p *parser) parseSum() (termSet, error) {
	var acc termSet
	switch p.peek().kind {
	case tokMinus:
		// "-a" subtracts a from the empty set
	case tokPlus:
		p.next()
		fallthrough
	default:
		first, err := p.parseProduct()
		if err != nil {
			return termSet{}, err
		}
		acc = first
	}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			rhs, err := p.parseProduct()
			if err != nil {
				return termSet{}, err
			}
			acc = acc.union(rhs)
		case tokMinus:
			p.next()
			rhs, err := p.parseProduct()
			if err != nil {
				return termSet{}, err
			}
			acc = acc.minus(rhs)
		default:
			return acc, nil
		}
	}
}

// parseProduct handles "*" and "/".
func (p *parser) parseProduct() (termSet, error) {
	acc, err := p.parseInteraction()
	if err != nil {
		return termSet{}, err
	}
	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			rhs, err := p.parseInteraction()
			if err != nil {
				return termSet{}, err
			}
			acc = acc.union(rhs).union(acc.cross(rhs))
		case tokSlash:
			p.next()
			rhs, err := p.parseInteraction()
			if err != nil {
				return termSet{}, err
			}
			acc = acc.union(acc.collapse().cross(rhs))
		default:
			return acc, nil
		}
	}
}

// parseInteraction handles ":".
func (p *parser) parseInteraction() (termSet, error) {
	acc, err := p.parsePower()
	if err != nil {
		return termSet{}, err
	}
	for p.peek().kind == tokColon {
		p.next()
		rhs, err := p.parsePower()
		if err != nil {
			return termSet{}, err
		}
		acc = acc.cross(rhs)
	}
	return acc, nil
}

// parsePower handles "**" and "^" with a positive integer exponent.
func (p *parser) parsePower() (termSet, error) {
	base, err := p.parseAtom()
	if err != nil {
		return termSet{}, err
	}
	if p.peek().kind != tokPow {
		return base, nil
	}
	p.next()
	t := p.next()
	if t.kind != tokNumber {
		return termSet{}, p.errorf(t, "exponent must be a positive integer")
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 1 {
		return termSet{}, p.errorf(t, "exponent must be a positive integer, got %q", t.text)
	}
	acc := base
	for i := 1; i < n; i++ {
		acc = acc.union(acc.cross(base))
	}
	return acc, nil
}

func (p *parser) parseAtom() (termSet, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseSum()
		if err != nil {
			return termSet{}, err
		}
		if c := p.next(); c.kind != tokRParen {
			return termSet{}, p.errorf(c, "expected \")\"")
		}
		return inner, nil
	case tokNumber:
		switch t.text {
		case "0":
			return termSet{icept: interceptNo}, nil
		case "1":
			return termSet{icept: interceptYes}, nil
		}
		return termSet{}, p.errorf(t, "numbers other than 0 and 1 are not allowed, got %s", t.text)
	case tokFactor:
		return termSet{terms: []Term{{Factors: []string{t.text}}}}, nil
	case tokEOF:
		return termSet{}, p.errorf(t, "unexpected end of formula")
	}
	return termSet{}, p.errorf(t, "unexpected %q", t.text)
}
