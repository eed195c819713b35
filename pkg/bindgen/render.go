package bindgen

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/resolver"
)

// SpecEntry is one replacement parameter for a variadic tail: either an
// explicit type or a clone of the last fixed parameter's type.
type SpecEntry struct {
	CloneLast bool
	Type      CType
}

// Specializations maps a full function name to the typed parameters that
// replace its variadic tail. Functions not registered here degrade to a
// single cloned trailing parameter.
type Specializations map[string][]SpecEntry

// DefaultSpecializations returns the built-in variadic replacements. Only
// sqlite3_db_config needs more than the generic tail: its callers pass a
// settings value plus an out-parameter for the effective state.
func DefaultSpecializations() Specializations {
	intPtr := CType{Base: "int", Stars: 1}
	intPtr.Raw = cSpelling(intPtr)
	return Specializations{
		"sqlite3_db_config": {{CloneLast: true}, {Type: intPtr}},
	}
}

// Specialize resolves a variadic signature to a finite typed parameter list.
// Replacement parameters are appended as vararg1, vararg2, ... after the
// fixed ones; non-variadic signatures pass through unchanged.
func Specialize(name string, sig FuncSig, specials Specializations) (FuncSig, error) {
	if !sig.Variadic {
		return sig, nil
	}
	entries, ok := specials[name]
	if !ok {
		entries = []SpecEntry{{CloneLast: true}}
	}
	res := FuncSig{Ret: sig.Ret, Params: append([]Param{}, sig.Params...)}
	for i, e := range entries {
		typ := e.Type
		if e.CloneLast {
			if len(sig.Params) == 0 {
				return sig, fmt.Errorf("variadic %s has no fixed parameter to clone", name)
			}
			typ = sig.Params[len(sig.Params)-1].Type
		}
		res.Params = append(res.Params, Param{Name: fmt.Sprintf("vararg%d", i+1), Type: typ})
	}
	return res, nil
}

// GoType maps a C type to its cgo spelling in generated Go signatures.
// Pointer-to-function parameters travel as unsafe.Pointer, the C helper on
// the other side casts them back to the declared type.
func GoType(t CType) string {
	if t.Func != nil {
		return "unsafe.Pointer"
	}
	if t.Base == "void" {
		if t.Stars == 0 {
			return ""
		}
		return strings.Repeat("*", t.Stars-1) + "unsafe.Pointer"
	}

	base := ""
	switch t.Base {
	case "int":
		base = "C.int"
		if t.Unsigned {
			base = "C.uint"
		}
	case "char":
		base = "C.char"
		if t.Unsigned {
			base = "C.uchar"
		}
	case "short":
		base = "C.short"
		if t.Unsigned {
			base = "C.ushort"
		}
	case "long":
		base = "C.long"
		if t.Unsigned {
			base = "C.ulong"
		}
	case "long long":
		base = "C.longlong"
		if t.Unsigned {
			base = "C.ulonglong"
		}
	case "float":
		base = "C.float"
	case "double":
		base = "C.double"
	default:
		switch {
		case strings.HasPrefix(t.Base, "struct "):
			base = "C.struct_" + strings.TrimPrefix(t.Base, "struct ")
		case strings.HasPrefix(t.Base, "union "):
			base = "C.union_" + strings.TrimPrefix(t.Base, "union ")
		case strings.HasPrefix(t.Base, "enum "):
			base = "C.enum_" + strings.TrimPrefix(t.Base, "enum ")
		default:
			base = "C." + t.Base
		}
	}
	return strings.Repeat("*", t.Stars) + base
}

// goKeywords and the cgo package name can't be used as parameter names.
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
	"C": true,
}

// paramNames picks usable Go/C parameter names: the declared name when it is
// present, unique and not a keyword, argN otherwise.
func paramNames(sig FuncSig) []string {
	names := make([]string, len(sig.Params))
	used := map[string]bool{}
	for i, p := range sig.Params {
		name := p.Name
		if name == "" || goKeywords[name] || used[name] {
			name = fmt.Sprintf("arg%d", i+1)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// EmitFunc renders one generated function: the Go function named goName and,
// when needed, a C helper that performs the actual call. target is the C
// expression invoked, either a plain symbol or a dispatch-table field access.
// guard lines, when present, are inserted before the call. forceHelper routes
// the call through a helper even for plain signatures, which is how indirect
// table calls are made. The signature must be variadic-free.
func EmitFunc(goName, target string, sig FuncSig, guard []string, forceHelper bool) (cHelper, goFunc string, err error) {
	if sig.Variadic {
		return "", "", fmt.Errorf("unresolved variadic signature for %s", goName)
	}

	names := paramNames(sig)
	needHelper := forceHelper
	for _, p := range sig.Params {
		if p.Type.Func != nil {
			needHelper = true
		}
	}
	helperName := "_sqlite3gen_" + goName

	if needHelper {
		cParams := make([]string, len(sig.Params))
		cArgs := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			if p.Type.Func != nil {
				cParams[i] = "void *" + names[i]
				cArgs[i] = "(" + p.Type.Raw + ")" + names[i]
				continue
			}
			cParams[i] = p.Type.Raw + " " + names[i]
			cArgs[i] = names[i]
		}
		paramList := strings.Join(cParams, ", ")
		if paramList == "" {
			paramList = "void"
		}
		call := fmt.Sprintf("%s(%s)", target, strings.Join(cArgs, ", "))
		if sig.Ret.IsVoid() {
			cHelper = fmt.Sprintf("static void %s(%s) { %s; }", helperName, paramList, call)
		} else {
			cHelper = fmt.Sprintf("static %s %s(%s) { return %s; }", sig.Ret.Raw, helperName, paramList, call)
		}
	}

	goParams := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		goParams[i] = names[i] + " " + GoType(p.Type)
	}
	ret := GoType(sig.Ret)

	var b strings.Builder
	fmt.Fprintf(&b, "func %s(%s)", goName, strings.Join(goParams, ", "))
	if ret != "" {
		fmt.Fprintf(&b, " %s", ret)
	}
	b.WriteString(" {\n")
	for _, line := range guard {
		b.WriteString("\t" + line + "\n")
	}
	callee := "C." + target
	if needHelper {
		callee = "C." + helperName
	}
	call := fmt.Sprintf("%s(%s)", callee, strings.Join(names, ", "))
	if ret != "" {
		fmt.Fprintf(&b, "\treturn %s\n", call)
	} else {
		fmt.Fprintf(&b, "\t%s\n", call)
	}
	b.WriteString("}")
	return cHelper, b.String(), nil
}

// Render produces the raw bindings source fragment for the model: generated
// file header, package clause, cgo preamble with compiler and linker flags
// derived from the resolution directives, typed constants, opaque type
// aliases and, unless cfg puts the build in loadable-extension mode, one thin
// Go function per translated C declaration. preambleExtra is appended inside
// the cgo comment, the trampoline generator parks its table declaration and
// helpers there.
func Render(decls *Declarations, cfg *config.Config, directives []resolver.Directive, preambleExtra string) (string, error) {
	if decls.Header == "" {
		return "", fmt.Errorf("model carries no header include")
	}
	pkg := cfg.Package
	if pkg == "" {
		pkg = "sqlite3"
	}
	suppress := cfg.LoadableExtension

	var helpers, funcs []string
	if !suppress {
		specials := DefaultSpecializations()
		for _, f := range decls.Functions {
			sig, err := Specialize(f.Name, f.Sig, specials)
			if err != nil {
				log.Printf("[DEBUG] %v, declaration dropped", err)
				continue
			}
			// cgo can't call variadic C functions, a specialized signature
			// still needs a fixed-arity helper on the C side
			cHelper, goFunc, err := EmitFunc(f.Name, f.Name, sig, nil, f.Sig.Variadic)
			if err != nil {
				log.Printf("[DEBUG] can't emit %s: %v", f.Name, err)
				continue
			}
			if cHelper != "" {
				helpers = append(helpers, cHelper)
			}
			funcs = append(funcs, goFunc)
		}
	}

	var b strings.Builder
	b.WriteString("// Code generated by sqlite3gen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg)

	b.WriteString("/*\n")
	for _, dir := range stringutils.DeDup(decls.IncludeDirs) {
		fmt.Fprintf(&b, "#cgo CFLAGS: -I%s\n", dir)
	}
	ldflags := make([]string, 0, len(directives))
	for _, d := range directives {
		switch d.Kind {
		case resolver.DirLinkSearch:
			ldflags = append(ldflags, "-L"+srcdirAnchor(d.Name))
		case resolver.DirLinkLib:
			ldflags = append(ldflags, "-l"+d.Name)
		}
	}
	if len(ldflags) > 0 {
		fmt.Fprintf(&b, "#cgo LDFLAGS: %s\n", strings.Join(stringutils.DeDup(ldflags), " "))
	}
	fmt.Fprintf(&b, "#include <%s>\n", decls.Header)
	if preambleExtra != "" {
		b.WriteString("\n" + strings.TrimRight(preambleExtra, "\n") + "\n")
	}
	if len(helpers) > 0 {
		b.WriteString("\n" + strings.Join(helpers, "\n") + "\n")
	}
	b.WriteString("*/\n")
	b.WriteString("import \"C\"\n\n")
	b.WriteString("import \"unsafe\"\n\n")
	b.WriteString("var _ unsafe.Pointer\n\n")

	for _, name := range decls.Types {
		fmt.Fprintf(&b, "type %s = C.%s\n", name, name)
	}
	if len(decls.Types) > 0 {
		b.WriteString("\n")
	}

	for _, c := range decls.Constants {
		if c.Type != "" {
			fmt.Fprintf(&b, "const %s %s = %d\n", c.Name, c.Type, c.Value)
			continue
		}
		fmt.Fprintf(&b, "const %s = %d\n", c.Name, c.Value)
	}
	if len(decls.Constants) > 0 {
		b.WriteString("\n")
	}

	for _, f := range funcs {
		b.WriteString(f + "\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// srcdirAnchor rewrites a relative library search dir against ${SRCDIR}. cgo
// expands it to the package directory; a plain relative -L resolves from the
// linker's work dir and misses archives installed next to the bindings.
func srcdirAnchor(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	if dir = strings.TrimPrefix(dir, "./"); dir == "." {
		return "${SRCDIR}"
	}
	return "${SRCDIR}/" + dir
}
