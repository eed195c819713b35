package resolver

import "fmt"

// link mode qualifiers for link-lib directives
const (
	LinkStatic  = "static"
	LinkDynamic = "dynamic"
)

// DirectiveKind is the type of a build-system directive.
type DirectiveKind string

// directive kinds, the first token of the emitted line
const (
	DirLinkLib    DirectiveKind = "link-lib"             // link a library, with a static or dynamic qualifier
	DirLinkSearch DirectiveKind = "link-search"          // add a library search path
	DirRerunEnv   DirectiveKind = "rerun-if-env-changed" // the named variable invalidates build caching
	DirLibDir     DirectiveKind = "lib-dir"              // metadata, directory with compiled artifacts
)

// Directive is a single build-system instruction produced during resolution
// or bundled compilation. Directives are printed to stdout one per line for
// an outer build orchestrator; link directives are also rendered into the
// generated cgo preamble.
type Directive struct {
	Kind DirectiveKind
	Mode string // static or dynamic, set for link-lib only
	Name string // library name, directory or variable depending on kind
}

func (d Directive) String() string {
	if d.Kind == DirLinkLib {
		return fmt.Sprintf("%s %s %s", d.Kind, d.Mode, d.Name)
	}
	return fmt.Sprintf("%s %s", d.Kind, d.Name)
}

// LinkLib makes a link-library directive with the given mode qualifier.
func LinkLib(mode, name string) Directive {
	return Directive{Kind: DirLinkLib, Mode: mode, Name: name}
}

// LinkSearch makes a library search path directive.
func LinkSearch(dir string) Directive {
	return Directive{Kind: DirLinkSearch, Name: dir}
}

// RerunEnv makes a cache-invalidation directive for an environment variable.
func RerunEnv(name string) Directive {
	return Directive{Kind: DirRerunEnv, Name: name}
}

// LibDir makes a metadata directive pointing at compiled artifacts.
func LibDir(dir string) Directive {
	return Directive{Kind: DirLibDir, Name: dir}
}
