// Package trampoline generates the indirection layer for loadable
// extensions. Extension code can't call library symbols directly, every
// entrypoint goes through the host's function-pointer table; this package
// turns the translated table definition into one wrapper per field, each
// checking the table pointer and delegating through a C helper.
package trampoline

import (
	"fmt"
	"log"
	"strings"

	"github.com/sqlite3gen/sqlite3gen/pkg/bindgen"
	"github.com/sqlite3gen/sqlite3gen/pkg/config"
)

// tableStruct is the name of the host's dispatch table in the extension
// header. Its layout is append-only across releases, so a header missing the
// struct entirely is structurally incompatible.
const tableStruct = "sqlite3_api_routines"

// the deterministic-function flag appeared in 3.8.3; older headers need it
// shimmed so downstream code can reference it regardless of header vintage
const (
	deterministicName  = "SQLITE_DETERMINISTIC"
	deterministicValue = 2048
)

// Wrapper is one generated table call: the C helper performing the indirect
// call and the Go function fronting it.
type Wrapper struct {
	Field  string // table field name
	Name   string // emitted Go function name, sqlite3_ prefixed
	Helper string // C helper source line
	Source string // Go function source
}

// Output is the complete trampoline layer for one build.
type Output struct {
	TableDecl string    // C declaration of the process-wide table pointer
	Wrappers  []Wrapper // one per table field, in field order
	Shim      string    // compatibility constant, empty when the header has it
}

// Preamble returns the C fragment for the cgo preamble: the table pointer
// declaration followed by every helper in field order.
func (o *Output) Preamble() string {
	lines := make([]string, 0, len(o.Wrappers)+1)
	lines = append(lines, o.TableDecl)
	for _, w := range o.Wrappers {
		lines = append(lines, w.Helper)
	}
	return strings.Join(lines, "\n")
}

// Fragments returns the Go source pieces appended after the rendered
// declarations: wrappers in order, then the shim when present.
func (o *Output) Fragments() []string {
	res := make([]string, 0, len(o.Wrappers)+1)
	for _, w := range o.Wrappers {
		res = append(res, w.Source)
	}
	if o.Shim != "" {
		res = append(res, o.Shim)
	}
	return res
}

// Emit builds the trampoline layer from the translated model. The dispatch
// table struct must be present and every field must be a named function
// pointer; a violation is a structural incompatibility with the extension
// header and fails the generation.
func Emit(decls *bindgen.Declarations, cfg *config.Config) (*Output, error) {
	st := decls.FindStruct(tableStruct)
	if st == nil {
		return nil, fmt.Errorf("dispatch table struct %s not found in translated header", tableStruct)
	}

	out := &Output{TableDecl: "const sqlite3_api_routines *sqlite3_api = 0;"}
	if cfg.EmbeddedExtension {
		// the host linking this code in owns the pointer, only reference it
		out.TableDecl = "extern const sqlite3_api_routines *sqlite3_api;"
	}

	specials := bindgen.DefaultSpecializations()
	for i, f := range st.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("dispatch table field %d of %s has no name", i, tableStruct)
		}
		if f.Sig == nil {
			return nil, fmt.Errorf("dispatch table field %s is not a function pointer", f.Name)
		}

		goName := "sqlite3_" + f.Name
		sig, err := bindgen.Specialize(goName, *f.Sig, specials)
		if err != nil {
			return nil, fmt.Errorf("can't specialize %s: %w", goName, err)
		}
		guard := []string{
			"if C.sqlite3_api == nil {",
			fmt.Sprintf("\tpanic(%q)", "sqlite3_api is null ("+f.Name+")"),
			"}",
		}
		helper, source, err := bindgen.EmitFunc(goName, "sqlite3_api->"+f.Name, sig, guard, true)
		if err != nil {
			return nil, fmt.Errorf("can't emit wrapper for %s: %w", f.Name, err)
		}
		out.Wrappers = append(out.Wrappers, Wrapper{Field: f.Name, Name: goName, Helper: helper, Source: source})
	}

	if !decls.HasConstant(deterministicName) {
		out.Shim = fmt.Sprintf("const %s int32 = %d", deterministicName, deterministicValue)
	}
	log.Printf("[INFO] emitted %d trampolines for %s, shim=%v", len(out.Wrappers), tableStruct, out.Shim != "")
	return out, nil
}
