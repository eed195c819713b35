package bindgen

import (
	"fmt"
	"strconv"
	"strings"
)

// condState tracks one open conditional block. parentLive is the liveness of
// the enclosing context at push time, taken records whether any branch of
// this block has already been selected.
type condState struct {
	parentLive bool
	live       bool
	taken      bool
}

// preproc is the conditional-inclusion state machine plus the macro table.
// It implements the narrow preprocessor subset the sqlite3 headers rely on:
// object-like defines, ifdef/ifndef/if/elif/else/endif with integer and
// defined() expressions, and undef.
type preproc struct {
	defines map[string]string // name -> replacement text, "" for value-less
	values  map[string]int64  // integer values for defines that evaluate
	stack   []condState
}

func newPreproc(seed map[string]string) *preproc {
	p := &preproc{defines: map[string]string{}, values: map[string]int64{}}
	for k, v := range seed {
		p.define(k, v)
	}
	return p
}

func (p *preproc) define(name, value string) {
	p.defines[name] = value
	if v, err := evalIntLiteral(strings.TrimSpace(value)); err == nil {
		p.values[name] = v
	}
}

func (p *preproc) undef(name string) {
	delete(p.defines, name)
	delete(p.values, name)
}

func (p *preproc) defined(name string) bool {
	_, ok := p.defines[name]
	return ok
}

// live reports whether the current line is inside active branches only.
func (p *preproc) live() bool {
	return len(p.stack) == 0 || p.stack[len(p.stack)-1].live
}

func (p *preproc) push(val bool) {
	parent := p.live()
	p.stack = append(p.stack, condState{parentLive: parent, live: parent && val, taken: parent && val})
}

func (p *preproc) elifBranch(val bool) {
	if len(p.stack) == 0 {
		return
	}
	top := &p.stack[len(p.stack)-1]
	top.live = top.parentLive && !top.taken && val
	if top.live {
		top.taken = true
	}
}

func (p *preproc) elseBranch() {
	if len(p.stack) == 0 {
		return
	}
	top := &p.stack[len(p.stack)-1]
	top.live = top.parentLive && !top.taken
	top.taken = true
}

func (p *preproc) pop() {
	if len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
	}
}

// evalCond evaluates an #if/#elif expression over the current macro table.
// Unparseable expressions include the block, the translator prefers over-
// inclusion to silently dropping declarations.
func (p *preproc) evalCond(expr string) bool {
	v, err := (&condEval{pp: p, toks: tokenizeExpr(expr)}).parse()
	if err != nil {
		return true
	}
	return v != 0
}

// evalIntLiteral parses a C integer literal with optional unary minus and
// L/UL suffixes, decimal or hex.
func evalIntLiteral(s string) (int64, error) {
	neg := false
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	for _, suffix := range []string{"ULL", "ull", "UL", "ul", "LL", "ll", "U", "u", "L", "l"} {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}
	if s == "" {
		return 0, fmt.Errorf("empty integer literal")
	}
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("not an integer literal %q: %w", s, err)
	}
	res := int64(v) // nolint
	if neg {
		res = -res
	}
	return res, nil
}

// tokenizeExpr splits a preprocessor expression into identifiers, numbers
// and operator tokens.
func tokenizeExpr(s string) []string {
	var res []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			res = append(res, s[i:j])
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (isIdentPart(s[j])) { // hex digits and suffixes alike
				j++
			}
			res = append(res, s[i:j])
			i = j
		default:
			two := ""
			if i+1 < len(s) {
				two = s[i : i+2]
			}
			switch two {
			case "&&", "||", "==", "!=", ">=", "<=", "<<", ">>":
				res = append(res, two)
				i += 2
			default:
				res = append(res, string(c))
				i++
			}
		}
	}
	return res
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// condEval is a recursive-descent evaluator for preprocessor expressions:
// ||, &&, comparisons, shifts, additive and unary !/- over integers,
// defined(NAME) and macro names. In conditional context undefined names
// evaluate to 0 as in C; with strictIdents they fail the evaluation, which
// keeps cast expressions from being mistaken for integer macros.
type condEval struct {
	pp           *preproc
	toks         []string
	pos          int
	strictIdents bool
}

func (e *condEval) parse() (int64, error) {
	v, err := e.orExpr()
	if err != nil {
		return 0, err
	}
	if e.pos != len(e.toks) {
		return 0, fmt.Errorf("trailing tokens in expression")
	}
	return v, nil
}

func (e *condEval) peek() string {
	if e.pos < len(e.toks) {
		return e.toks[e.pos]
	}
	return ""
}

func (e *condEval) next() string {
	t := e.peek()
	if t != "" {
		e.pos++
	}
	return t
}

func (e *condEval) orExpr() (int64, error) {
	v, err := e.andExpr()
	if err != nil {
		return 0, err
	}
	for e.peek() == "||" {
		e.next()
		r, err := e.andExpr()
		if err != nil {
			return 0, err
		}
		if v != 0 || r != 0 {
			v = 1
		} else {
			v = 0
		}
	}
	return v, nil
}

func (e *condEval) andExpr() (int64, error) {
	v, err := e.bitOrExpr()
	if err != nil {
		return 0, err
	}
	for e.peek() == "&&" {
		e.next()
		r, err := e.bitOrExpr()
		if err != nil {
			return 0, err
		}
		if v != 0 && r != 0 {
			v = 1
		} else {
			v = 0
		}
	}
	return v, nil
}

func (e *condEval) bitOrExpr() (int64, error) {
	v, err := e.cmpExpr()
	if err != nil {
		return 0, err
	}
	for e.peek() == "|" || e.peek() == "&" {
		op := e.next()
		r, err := e.cmpExpr()
		if err != nil {
			return 0, err
		}
		if op == "|" {
			v |= r
		} else {
			v &= r
		}
	}
	return v, nil
}

func (e *condEval) cmpExpr() (int64, error) {
	v, err := e.shiftExpr()
	if err != nil {
		return 0, err
	}
	for {
		op := e.peek()
		if op != "==" && op != "!=" && op != ">" && op != "<" && op != ">=" && op != "<=" {
			return v, nil
		}
		e.next()
		r, err := e.shiftExpr()
		if err != nil {
			return 0, err
		}
		hold := false
		switch op {
		case "==":
			hold = v == r
		case "!=":
			hold = v != r
		case ">":
			hold = v > r
		case "<":
			hold = v < r
		case ">=":
			hold = v >= r
		case "<=":
			hold = v <= r
		}
		if hold {
			v = 1
		} else {
			v = 0
		}
	}
}

func (e *condEval) shiftExpr() (int64, error) {
	v, err := e.addExpr()
	if err != nil {
		return 0, err
	}
	for e.peek() == "<<" || e.peek() == ">>" {
		op := e.next()
		r, err := e.addExpr()
		if err != nil {
			return 0, err
		}
		if r < 0 || r > 62 {
			return 0, fmt.Errorf("shift out of range")
		}
		if op == "<<" {
			v <<= uint(r)
		} else {
			v >>= uint(r)
		}
	}
	return v, nil
}

func (e *condEval) addExpr() (int64, error) {
	v, err := e.unary()
	if err != nil {
		return 0, err
	}
	for e.peek() == "+" || e.peek() == "-" || e.peek() == "*" {
		op := e.next()
		r, err := e.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "+":
			v += r
		case "-":
			v -= r
		case "*":
			v *= r
		}
	}
	return v, nil
}

func (e *condEval) unary() (int64, error) {
	switch e.peek() {
	case "!":
		e.next()
		v, err := e.unary()
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case "-":
		e.next()
		v, err := e.unary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	case "(":
		e.next()
		v, err := e.orExpr()
		if err != nil {
			return 0, err
		}
		if e.next() != ")" {
			return 0, fmt.Errorf("unbalanced parens")
		}
		return v, nil
	case "defined":
		e.next()
		name := e.next()
		if name == "(" {
			name = e.next()
			if e.next() != ")" {
				return 0, fmt.Errorf("unbalanced defined()")
			}
		}
		if name == "" || !isIdentStart(name[0]) {
			return 0, fmt.Errorf("defined without a name")
		}
		if e.pp.defined(name) {
			return 1, nil
		}
		return 0, nil
	}

	tok := e.next()
	if tok == "" {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		return evalIntLiteral(tok)
	}
	if isIdentStart(tok[0]) {
		if v, ok := e.pp.values[tok]; ok {
			return v, nil
		}
		if e.strictIdents {
			return 0, fmt.Errorf("unknown identifier %q", tok)
		}
		return 0, nil // undefined identifiers evaluate to zero
	}
	return 0, fmt.Errorf("unexpected token %q", tok)
}
