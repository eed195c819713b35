package bindgen

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// include resolution is recursive with a cycle guard, capped to keep a
// malformed header from recursing forever
const includeDepthMax = 10

var systemIncludeDirs = []string{"/usr/include", "/usr/local/include"}

// Parser translates the narrow C subset the sqlite3 headers use into the
// typed model: integer defines, conditional blocks, typedefs, struct
// definitions with function-pointer members and top-level function
// declarations. Anything it does not understand is skipped with a debug
// note, never a hard failure; structural problems surface later where the
// missing piece is actually needed.
type Parser struct {
	Defines      map[string]string // pre-seeded preprocessor symbols
	IncludeDirs  []string          // extra include resolution directories
	IntMacroType func(name string, value int64) (string, bool)

	pp        *preproc
	decls     *Declarations
	funcLike  map[string]bool
	constSeen map[string]bool
	included  map[string]bool
	pending   []string
	depth     int // brace depth of the pending declaration
}

// DefaultIntMacroType types every numeric macro fitting a signed 32-bit
// integer as int32 and leaves the rest untyped.
func DefaultIntMacroType(_ string, value int64) (string, bool) {
	if value >= math.MinInt32 && value <= math.MaxInt32 {
		return "int32", true
	}
	return "", false
}

// Parse reads the header at path and returns the translated model.
func (p *Parser) Parse(path string) (*Declarations, error) {
	p.pp = newPreproc(p.Defines)
	p.decls = &Declarations{}
	p.funcLike = map[string]bool{}
	p.constSeen = map[string]bool{}
	p.included = map[string]bool{}
	p.pending = nil
	p.depth = 0
	if p.IntMacroType == nil {
		p.IntMacroType = DefaultIntMacroType
	}

	if err := p.parseFile(path, 0); err != nil {
		return nil, err
	}
	log.Printf("[DEBUG] translated %s: %d constants, %d types, %d functions, %d structs",
		path, len(p.decls.Constants), len(p.decls.Types), len(p.decls.Functions), len(p.decls.Structs))
	return p.decls, nil
}

func (p *Parser) parseFile(path string, depth int) error {
	if depth > includeDepthMax {
		return fmt.Errorf("include depth limit reached at %s", path)
	}
	data, err := os.ReadFile(path) // nolint
	if err != nil {
		return fmt.Errorf("can't read header %s: %w", path, err)
	}
	p.included[filepath.Base(path)] = true

	src := stripComments(strings.ReplaceAll(string(data), "\\\n", ""))
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			p.directive(trimmed, filepath.Dir(path), depth)
			continue
		}
		if !p.pp.live() || trimmed == "" {
			continue
		}
		p.accumulate(trimmed)
	}
	return nil
}

// accumulate tokenizes a source line, applies object-like macro substitution
// and flushes a complete declaration at every top-level semicolon.
func (p *Parser) accumulate(line string) {
	for _, tok := range tokenizeC(line) {
		if val, ok := p.pp.defines[tok]; ok && !p.funcLike[tok] {
			for _, sub := range tokenizeC(val) {
				p.push(sub)
			}
			continue
		}
		p.push(tok)
	}
}

func (p *Parser) push(tok string) {
	p.pending = append(p.pending, tok)
	switch tok {
	case "{":
		p.depth++
	case "}":
		if p.depth > 0 {
			p.depth--
		}
	case ";":
		if p.depth == 0 {
			p.declaration(p.pending)
			p.pending = p.pending[:0]
		}
	}
}

// directive handles one preprocessor line. Conditional directives are always
// processed, everything else only inside live branches.
func (p *Parser) directive(line, curDir string, depth int) {
	name, rest := splitDirective(line)
	switch name {
	case "ifdef":
		p.pp.push(p.pp.defined(strings.TrimSpace(rest)))
	case "ifndef":
		p.pp.push(!p.pp.defined(strings.TrimSpace(rest)))
	case "if":
		p.pp.push(p.pp.evalCond(rest))
	case "elif":
		p.pp.elifBranch(p.pp.evalCond(rest))
	case "else":
		p.pp.elseBranch()
	case "endif":
		p.pp.pop()
	case "define":
		if p.pp.live() {
			p.define(rest)
		}
	case "undef":
		if p.pp.live() {
			p.pp.undef(strings.TrimSpace(rest))
		}
	case "include":
		if p.pp.live() {
			p.include(rest, curDir, depth)
		}
	}
}

func splitDirective(line string) (name, rest string) {
	s := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

// define records a macro and, when its body evaluates to an integer over the
// already-known macros, a typed constant.
func (p *Parser) define(rest string) {
	name := rest
	value := ""
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		name, value = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	if name == "" || !isIdentStart(name[0]) {
		return
	}
	if i := strings.Index(name, "("); i >= 0 { // function-like macro, defined-ness only
		p.funcLike[name[:i]] = true
		p.pp.define(name[:i], "")
		return
	}

	p.pp.define(name, value)
	if value == "" || p.constSeen[name] {
		return
	}
	ev := condEval{pp: p.pp, toks: tokenizeExpr(value), strictIdents: true}
	v, err := ev.parse()
	if err != nil {
		return // non-integer macro, kept for defined-ness only
	}
	p.pp.values[name] = v
	p.constSeen[name] = true
	c := Constant{Name: name, Value: v}
	if typ, ok := p.IntMacroType(name, v); ok {
		c.Type = typ
	}
	p.decls.Constants = append(p.decls.Constants, c)
}

// include resolves an include target against the current header's directory,
// the configured include dirs and the usual system locations. Unresolvable
// targets are skipped, the headers pulled from system locations beyond the
// sqlite3 surface contribute nothing to the model.
func (p *Parser) include(rest, curDir string, depth int) {
	target := strings.TrimSpace(rest)
	switch {
	case strings.HasPrefix(target, "\"") && strings.Count(target, "\"") >= 2:
		target = target[1:strings.LastIndex(target, "\"")]
	case strings.HasPrefix(target, "<") && strings.Contains(target, ">"):
		target = target[1:strings.Index(target, ">")]
	default:
		return
	}
	if p.included[filepath.Base(target)] {
		return
	}

	dirs := append([]string{curDir}, p.IncludeDirs...)
	dirs = append(dirs, systemIncludeDirs...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, target)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			if err := p.parseFile(candidate, depth+1); err != nil {
				log.Printf("[DEBUG] can't translate include %s: %v", candidate, err)
			}
			return
		}
	}
	log.Printf("[DEBUG] include %s not resolved, skipped", target)
}

// declaration dispatches one complete top-level declaration.
func (p *Parser) declaration(toks []string) {
	toks = dropStorageClass(toks)
	if len(toks) == 0 || (len(toks) == 1 && toks[0] == ";") {
		return
	}
	switch {
	case toks[0] == "typedef":
		p.typedef(toks[1:])
	case toks[0] == "struct" && contains(toks, "{"):
		if st, err := parseStructDef(toks); err == nil {
			p.decls.Structs = append(p.decls.Structs, *st)
		} else {
			log.Printf("[DEBUG] struct declaration skipped: %v", err)
		}
	default:
		if fn, err := parseFuncDecl(toks); err == nil {
			p.decls.Functions = append(p.decls.Functions, *fn)
		} else {
			log.Printf("[DEBUG] declaration skipped (%v): %s", err, strings.Join(first(toks, 8), " "))
		}
	}
}

// typedef handles all typedef shapes the headers use: opaque struct names,
// plain aliases, function-pointer types and struct definitions with a body.
func (p *Parser) typedef(toks []string) {
	if len(toks) == 0 {
		return
	}
	if (toks[0] == "struct" || toks[0] == "union") && contains(toks, "{") {
		st, name, err := parseTypedefStruct(toks)
		if err != nil {
			log.Printf("[DEBUG] typedef struct skipped: %v", err)
			return
		}
		p.decls.Structs = append(p.decls.Structs, *st)
		p.decls.Types = append(p.decls.Types, name)
		return
	}

	cur := &cursor{toks: trimSemi(toks)}
	if _, name, err := parseDeclarator(cur); err == nil && name != "" {
		p.decls.Types = append(p.decls.Types, name)
		return
	}
	log.Printf("[DEBUG] typedef skipped: %s", strings.Join(first(toks, 8), " "))
}

// cursor is a token stream with single-token lookahead.
type cursor struct {
	toks []string
	pos  int
}

func (c *cursor) peek() string {
	if c.pos < len(c.toks) {
		return c.toks[c.pos]
	}
	return ""
}

func (c *cursor) next() string {
	t := c.peek()
	if t != "" {
		c.pos++
	}
	return t
}

func (c *cursor) done() bool { return c.pos >= len(c.toks) }

// parseTypeSpec consumes type specifier tokens and builds the base type,
// leaving the cursor at the declarator.
func parseTypeSpec(c *cursor) (CType, error) {
	t := CType{}
	builtins := []string{}
	for !c.done() {
		tok := c.peek()
		switch tok {
		case "const":
			t.Const = true
			c.next()
		case "volatile", "signed", "register":
			c.next()
		case "unsigned":
			t.Unsigned = true
			c.next()
		case "struct", "union", "enum":
			c.next()
			tag := c.next()
			if tag == "" || !isIdentStart(tag[0]) {
				return t, fmt.Errorf("missing %s tag", tok)
			}
			t.Base = tok + " " + tag
		case "void", "char", "short", "int", "long", "float", "double":
			builtins = append(builtins, tok)
			c.next()
		default:
			// a lone identifier is the base type unless builtins already claimed it
			if t.Base == "" && len(builtins) == 0 && tok != "" && isIdentStart(tok[0]) {
				t.Base = tok
				c.next()
			}
			goto done
		}
	}
done:
	if len(builtins) > 0 {
		t.Base = normalizeBuiltins(builtins)
	}
	if t.Base == "" {
		if t.Unsigned {
			t.Base = "int"
		} else {
			return t, fmt.Errorf("no type specifier")
		}
	}
	t.Raw = cSpelling(t)
	return t, nil
}

func normalizeBuiltins(list []string) string {
	joined := strings.Join(list, " ")
	switch joined {
	case "long long int", "long long":
		return "long long"
	case "long int":
		return "long"
	case "short int":
		return "short"
	case "long double":
		return "long double"
	}
	return list[len(list)-1] // "int", "char", "void", ...
}

// parseDeclarator parses TYPE-SPEC then a declarator: plain names, pointers
// and pointer-to-function shapes. Returns the declared entity's type and its
// name (possibly empty for abstract declarators).
func parseDeclarator(c *cursor) (CType, string, error) {
	base, err := parseTypeSpec(c)
	if err != nil {
		return CType{}, "", err
	}
	for c.peek() == "*" {
		base.Stars++
		c.next()
	}
	base.Raw = cSpelling(base)

	if c.peek() == "(" && (lookahead(c, 1) == "*") {
		c.next() // (
		c.next() // *
		name := ""
		if tok := c.peek(); tok != "" && isIdentStart(tok[0]) {
			name = c.next()
		}
		if c.next() != ")" {
			return CType{}, "", fmt.Errorf("unclosed function declarator")
		}
		if c.next() != "(" {
			return CType{}, "", fmt.Errorf("function declarator without parameters")
		}
		params, variadic, err := parseParams(c)
		if err != nil {
			return CType{}, "", err
		}
		sig := &FuncSig{Ret: base, Params: params, Variadic: variadic}
		t := CType{Func: sig}
		t.Raw = cSpelling(t)
		return t, name, nil
	}

	name := ""
	if tok := c.peek(); tok != "" && isIdentStart(tok[0]) {
		name = c.next()
	}
	for c.peek() == "[" { // array declarators decay to pointers
		c.next()
		for c.peek() != "]" && !c.done() {
			c.next()
		}
		c.next()
		base.Stars++
		base.Raw = cSpelling(base)
	}
	return base, name, nil
}

// parseParams consumes a parameter list up to and including the closing
// paren. The cursor must be just past the opening paren.
func parseParams(c *cursor) (params []Param, variadic bool, err error) {
	if c.peek() == ")" {
		c.next()
		return nil, false, nil
	}
	if c.peek() == "void" && lookahead(c, 1) == ")" {
		c.next()
		c.next()
		return nil, false, nil
	}
	for {
		if c.peek() == "..." {
			c.next()
			variadic = true
			if c.next() != ")" {
				return nil, false, fmt.Errorf("tokens after ellipsis")
			}
			return params, variadic, nil
		}
		typ, name, err := parseDeclarator(c)
		if err != nil {
			return nil, false, err
		}
		params = append(params, Param{Name: name, Type: typ})
		switch c.next() {
		case ",":
			continue
		case ")":
			return params, variadic, nil
		default:
			return nil, false, fmt.Errorf("unterminated parameter list")
		}
	}
}

// parseFuncDecl parses a top-level function declaration. Declarations
// without a parameter list (plain globals) are rejected.
func parseFuncDecl(toks []string) (*FuncDecl, error) {
	c := &cursor{toks: trimSemi(toks)}
	ret, err := parseTypeSpec(c)
	if err != nil {
		return nil, err
	}
	for c.peek() == "*" {
		ret.Stars++
		c.next()
	}
	ret.Raw = cSpelling(ret)

	name := c.next()
	if name == "" || !isIdentStart(name[0]) {
		return nil, fmt.Errorf("no function name")
	}
	if c.next() != "(" {
		return nil, fmt.Errorf("not a function declaration")
	}
	params, variadic, err := parseParams(c)
	if err != nil {
		return nil, err
	}
	if !c.done() {
		return nil, fmt.Errorf("trailing tokens after declaration")
	}
	return &FuncDecl{Name: name, Sig: FuncSig{Ret: ret, Params: params, Variadic: variadic}}, nil
}

// parseStructDef parses "struct NAME { fields } ;". Unparseable members are
// kept as unnamed data fields so a later consumer can report exactly which
// member broke instead of losing the whole struct.
func parseStructDef(toks []string) (*Struct, error) {
	c := &cursor{toks: toks}
	if c.next() != "struct" {
		return nil, fmt.Errorf("not a struct")
	}
	name := c.next()
	if name == "" || !isIdentStart(name[0]) {
		return nil, fmt.Errorf("missing struct tag")
	}
	if c.next() != "{" {
		return nil, fmt.Errorf("missing struct body")
	}
	body, rest := splitBody(c.toks[c.pos:])
	if rest < 0 {
		return nil, fmt.Errorf("unbalanced struct body")
	}
	return &Struct{Name: name, Fields: parseFields(body)}, nil
}

func parseTypedefStruct(toks []string) (*Struct, string, error) {
	c := &cursor{toks: toks}
	c.next() // struct or union
	tag := ""
	if tok := c.peek(); tok != "" && isIdentStart(tok[0]) {
		tag = c.next()
	}
	if c.next() != "{" {
		return nil, "", fmt.Errorf("missing typedef struct body")
	}
	body, rest := splitBody(c.toks[c.pos:])
	if rest < 0 {
		return nil, "", fmt.Errorf("unbalanced typedef struct body")
	}
	after := c.toks[c.pos+rest:]
	after = trimSemi(after)
	if len(after) == 0 {
		return nil, "", fmt.Errorf("typedef struct without a name")
	}
	name := after[len(after)-1]
	if !isIdentStart(name[0]) {
		return nil, "", fmt.Errorf("typedef struct without a name")
	}
	if tag == "" {
		tag = name
	}
	return &Struct{Name: tag, Fields: parseFields(body)}, name, nil
}

// splitBody returns the tokens of a brace-balanced body (opening brace
// already consumed) and the offset just past the closing brace, -1 when
// unbalanced.
func splitBody(toks []string) (body []string, after int) {
	depth := 1
	for i, tok := range toks {
		switch tok {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return toks[:i], i + 1
			}
		}
	}
	return nil, -1
}

func parseFields(body []string) []Field {
	var fields []Field
	start := 0
	for i, tok := range body {
		if tok != ";" {
			continue
		}
		decl := body[start:i]
		start = i + 1
		if len(decl) == 0 {
			continue
		}
		fields = append(fields, parseField(decl))
	}
	return fields
}

// parseField parses a single struct member. Function-pointer members carry
// their signature; anything else, including members the parser cannot make
// sense of, comes back as a plain data field.
func parseField(decl []string) Field {
	c := &cursor{toks: decl}
	typ, name, err := parseDeclarator(c)
	if err != nil || !c.done() {
		return Field{Name: bestFieldName(decl)}
	}
	if typ.Func != nil {
		return Field{Name: name, Sig: typ.Func}
	}
	return Field{Name: name}
}

// bestFieldName recovers the member name from an unparseable declaration:
// the last identifier before the parameter list. A "(" opening a pointer
// declarator is followed by "*", a "(" opening parameters is not.
func bestFieldName(decl []string) string {
	name := ""
	for i, tok := range decl {
		if tok == "(" && i+1 < len(decl) && decl[i+1] != "*" {
			break
		}
		if isIdentStart(tok[0]) {
			name = tok
		}
	}
	return name
}

// tokenizeC splits a line of C into identifiers, numbers, string literals
// and punctuation. The ellipsis is one token.
func tokenizeC(line string) []string {
	var res []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case isIdentStart(c):
			j := i
			for j < len(line) && isIdentPart(line[j]) {
				j++
			}
			res = append(res, line[i:j])
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(line) && (isIdentPart(line[j]) || line[j] == '.') {
				j++
			}
			res = append(res, line[i:j])
			i = j
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(line) && line[j] != quote {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(line) {
				j++
			}
			res = append(res, line[i:j])
			i = j
		case strings.HasPrefix(line[i:], "..."):
			res = append(res, "...")
			i += 3
		default:
			res = append(res, string(c))
			i++
		}
	}
	return res
}

// stripComments removes C comments while preserving line structure, block
// comment newlines survive so conditional directives keep their positions.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	i := 0
	for i < len(src) {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			i += 2
			for i < len(src) && !strings.HasPrefix(src[i:], "*/") {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i += 2
			b.WriteByte(' ')
		case src[i] == '"' || src[i] == '\'':
			quote := src[i]
			b.WriteByte(src[i])
			i++
			for i < len(src) && src[i] != quote {
				if src[i] == '\\' && i+1 < len(src) {
					b.WriteByte(src[i])
					i++
				}
				b.WriteByte(src[i])
				i++
			}
			if i < len(src) {
				b.WriteByte(src[i])
				i++
			}
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return b.String()
}

func dropStorageClass(toks []string) []string {
	res := make([]string, 0, len(toks))
	for _, t := range toks {
		if t == "extern" || t == "static" || t == "inline" {
			continue
		}
		res = append(res, t)
	}
	return res
}

func trimSemi(toks []string) []string {
	for len(toks) > 0 && toks[len(toks)-1] == ";" {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func contains(toks []string, want string) bool {
	for _, t := range toks {
		if t == want {
			return true
		}
	}
	return false
}

func first(toks []string, n int) []string {
	if len(toks) <= n {
		return toks
	}
	return toks[:n]
}

func lookahead(c *cursor, n int) string {
	if c.pos+n < len(c.toks) {
		return c.toks[c.pos+n]
	}
	return ""
}
