// Package bindgen translates the sqlite3 C headers into a typed declaration
// model and renders it as cgo bindings. The translator is a deliberately
// narrow C parser covering exactly the constructs the sqlite3 headers use;
// everything else is skipped without failing the build.
package bindgen

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-pkgz/fileutils"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/resolver"
)

//go:embed wrapper.h wrapper-ext.h
var wrapperStubs embed.FS

// Generate translates the header selected by library resolution into the
// typed model. Feature toggles from cfg are pre-seeded into the preprocessor
// so gated declarations are included the same way the real build would see
// them.
func Generate(loc resolver.HeaderLocation, cfg *config.Config) (*Declarations, error) {
	path, includeDirs, cleanup, err := headerPath(loc, cfg)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	defines := map[string]string{}
	if cfg.UnlockNotify {
		defines["SQLITE_ENABLE_UNLOCK_NOTIFY"] = "1"
	}
	if cfg.PreupdateHook {
		defines["SQLITE_ENABLE_PREUPDATE_HOOK"] = "1"
	}
	if cfg.Session {
		defines["SQLITE_ENABLE_SESSION"] = "1"
	}

	p := Parser{
		Defines:      defines,
		IncludeDirs:  append(append([]string{}, includeDirs...), cfg.IncludeDirs...),
		IntMacroType: DefaultIntMacroType,
	}
	decls, err := p.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("can't translate %s: %w", path, err)
	}

	decls.Header = cfg.HeaderFile()
	decls.IncludeDirs = append(append([]string{}, includeDirs...), cfg.IncludeDirs...)
	log.Printf("[INFO] translated %s for package %s", path, cfg.Package)
	return decls, nil
}

// headerPath turns a HeaderLocation into a concrete file to translate plus
// the include directories the generated preamble needs. For the wrapper-stub
// case the embedded stub is materialized into a temp file and the returned
// cleanup removes it.
func headerPath(loc resolver.HeaderLocation, cfg *config.Config) (path string, includeDirs []string, cleanup func(), err error) {
	switch loc.Kind {
	case resolver.FromExplicitPath:
		return loc.Path, []string{filepath.Dir(loc.Path)}, nil, nil

	case resolver.FromEnvironment:
		prefix := cfg.EnvPrefix()
		dir := os.Getenv(prefix + "_INCLUDE_DIR")
		if dir == "" {
			return "", nil, nil, fmt.Errorf("%s_INCLUDE_DIR must be set if %s_LIB_DIR is set", prefix, prefix)
		}
		return filepath.Join(dir, cfg.HeaderFile()), []string{dir}, nil, nil

	case resolver.FromWrapperStub:
		stub := cfg.WrapperStub()
		data, err := wrapperStubs.ReadFile(stub)
		if err != nil {
			return "", nil, nil, fmt.Errorf("can't load embedded stub %s: %w", stub, err)
		}
		tmp, err := fileutils.TempFileName("", stub)
		if err != nil {
			return "", nil, nil, fmt.Errorf("can't allocate temp name for %s: %w", stub, err)
		}
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return "", nil, nil, fmt.Errorf("can't materialize stub %s: %w", stub, err)
		}
		log.Printf("[DEBUG] translating embedded stub %s via %s", stub, tmp)
		return tmp, nil, func() { _ = os.Remove(tmp) }, nil
	}
	return "", nil, nil, fmt.Errorf("unknown header location %v", loc.Kind)
}
