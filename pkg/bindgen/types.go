package bindgen

import "strings"

// CType is a parsed C type with the declarator name stripped. Raw keeps the
// normalized C spelling so renderers can reproduce it verbatim.
type CType struct {
	Raw      string   // normalized C spelling, e.g. "const char*"
	Base     string   // base type name, e.g. "char", "sqlite3_int64", "void"
	Stars    int      // pointer depth
	Unsigned bool
	Const    bool
	Func     *FuncSig // set for pointer-to-function types
}

// IsVoid reports a plain void type, valid only as a return.
func (t CType) IsVoid() bool {
	return t.Func == nil && t.Base == "void" && t.Stars == 0
}

// Param is a single function parameter. Name may be empty, C declarations
// are allowed to omit it.
type Param struct {
	Name string
	Type CType
}

// FuncSig is a function signature shared by declarations, pointer-to-function
// types and dispatch-table fields.
type FuncSig struct {
	Ret      CType
	Params   []Param
	Variadic bool
}

// FuncDecl is a top-level C function declaration.
type FuncDecl struct {
	Name string
	Sig  FuncSig
}

// Field is one member of a struct definition. Sig is set for
// pointer-to-function members and nil for plain data members.
type Field struct {
	Name string
	Sig  *FuncSig
}

// Struct is a parsed C struct definition with its members in source order.
type Struct struct {
	Name   string
	Fields []Field
}

// Constant is an integer preprocessor define. Type carries the Go type
// assigned by the int-macro hook, empty means untyped.
type Constant struct {
	Name  string
	Value int64
	Type  string
}

// Declarations is the typed model of a translated header: everything the
// renderer and the trampoline generator consume. Built once per run,
// read-only afterward.
type Declarations struct {
	Constants []Constant
	Types     []string // typedef names in declaration order
	Functions []FuncDecl
	Structs   []Struct

	Header      string   // include name for the generated cgo preamble
	IncludeDirs []string // -I entries for the generated cgo preamble
}

// FindStruct returns the named struct definition or nil.
func (d *Declarations) FindStruct(name string) *Struct {
	for i := range d.Structs {
		if d.Structs[i].Name == name {
			return &d.Structs[i]
		}
	}
	return nil
}

// HasConstant reports whether a constant with the given name was translated.
func (d *Declarations) HasConstant(name string) bool {
	for _, c := range d.Constants {
		if c.Name == name {
			return true
		}
	}
	return false
}

// cSpelling renders the normalized C source form of a type.
func cSpelling(t CType) string {
	if t.Func != nil {
		params := make([]string, 0, len(t.Func.Params)+1)
		for _, p := range t.Func.Params {
			params = append(params, p.Type.Raw)
		}
		if t.Func.Variadic {
			params = append(params, "...")
		}
		return t.Func.Ret.Raw + "(*)(" + strings.Join(params, ",") + ")"
	}
	res := ""
	if t.Const {
		res += "const "
	}
	if t.Unsigned {
		res += "unsigned "
	}
	res += t.Base
	res += strings.Repeat("*", t.Stars)
	return res
}
