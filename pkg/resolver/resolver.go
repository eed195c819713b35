// Package resolver decides how the generated bindings reach a native
// sqlite3 library: either the bundled amalgamation compiled at build time or
// a system installation discovered through environment variables and
// registry probers. The decision also yields the header location for the
// binding generator and the link directives for the outer build system.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-multierror"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/executor"
)

// Mode is how the native library will be provided.
type Mode int

// resolution modes
const (
	ModeLinked  Mode = iota // link against a system installation
	ModeBundled             // compile the vendored amalgamation
)

func (m Mode) String() string {
	if m == ModeBundled {
		return "bundled"
	}
	return "linked"
}

// HeaderKind is the discovery outcome for the header the binding generator
// has to translate.
type HeaderKind int

// header location kinds
const (
	FromEnvironment  HeaderKind = iota // expected under <PREFIX>_INCLUDE_DIR, resolved later
	FromWrapperStub                    // no location known, translate the shipped wrapper stub
	FromExplicitPath                   // discovered path, in Path
)

// HeaderLocation points the binding generator at the header to translate.
// Exactly one location is produced per invocation.
type HeaderLocation struct {
	Kind HeaderKind
	Path string // set for FromExplicitPath only
}

func (h HeaderLocation) String() string {
	switch h.Kind {
	case FromWrapperStub:
		return "wrapper-stub"
	case FromExplicitPath:
		return "path:" + h.Path
	default:
		return "environment"
	}
}

// Resolution is the complete outcome of library discovery.
type Resolution struct {
	Mode       Mode
	Header     HeaderLocation
	Directives []Directive
}

// RegistryProber queries a package registry for a library. A non-empty dir
// scopes the query to that directory's registry. Implemented by PkgConfig.
type RegistryProber interface {
	Probe(ctx context.Context, name, dir string) (*Library, error)
}

// PlatformProber locates a library in a platform package installation tree.
// Implemented by Vcpkg.
type PlatformProber interface {
	Available() bool
	Probe(ctx context.Context, name string) (*Library, error)
}

// Resolver picks the library mode and header location for a build
// configuration. Prober failures are never fatal, each one advances the
// chain to the next strategy; the bare link fallback always succeeds.
type Resolver struct {
	Registry RegistryProber
	Platform PlatformProber

	goos string // platform override for tests, default runtime.GOOS
}

// New makes a Resolver with the default probers, pkg-config through the
// given executor and the vcpkg tree inspector.
func New(ex executor.Interface) *Resolver {
	return &Resolver{Registry: &PkgConfig{Runner: ex}, Platform: &Vcpkg{}}
}

// Resolve runs the discovery chain for cfg. Cache-invalidation directives
// are emitted unconditionally before any branching; the chain itself tries
// the explicit <PREFIX>_LIB_DIR environment first, then the platform prober,
// then the general registry, and degrades to a bare link directive when
// nothing answers. The only error it can return is context cancellation.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.Config) (Resolution, error) {
	res := Resolution{Mode: ModeLinked, Directives: r.rerunDirectives(cfg)}

	if cfg.Bundled {
		res.Mode = ModeBundled
		res.Header = HeaderLocation{Kind: FromExplicitPath, Path: filepath.Join(cfg.SourceDir, cfg.HeaderFile())}
		log.Printf("[INFO] resolved %s: bundled from %s", cfg.LinkLib(), cfg.SourceDir)
		return res, nil
	}

	linkLib := cfg.LinkLib()
	misses := new(multierror.Error)

	// explicit library directory from the environment is authoritative
	if dir, ok := os.LookupEnv(cfg.EnvPrefix() + "_LIB_DIR"); ok && dir != "" {
		if lib, err := r.Registry.Probe(ctx, linkLib, dir); err == nil {
			res.Directives = append(res.Directives, lib.Directives()...)
		} else {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			misses = multierror.Append(misses, err)
			res.Directives = append(res.Directives, LinkLib(linkMode(cfg), linkLib), LinkSearch(dir))
		}
		res.Header = HeaderLocation{Kind: FromEnvironment}
		r.finish(cfg, &res, misses)
		return res, nil
	}

	if r.Platform != nil && cfg.Vcpkg && r.Platform.Available() {
		if lib, err := r.Platform.Probe(ctx, linkLib); err == nil && len(lib.IncludeDirs) > 0 {
			res.Directives = append(res.Directives, lib.Directives()...)
			include := lib.IncludeDirs[len(lib.IncludeDirs)-1]
			res.Header = HeaderLocation{Kind: FromExplicitPath, Path: filepath.Join(include, cfg.HeaderFile())}
			r.finish(cfg, &res, misses)
			return res, nil
		} else if err != nil {
			misses = multierror.Append(misses, err)
		}
	}

	if lib, err := r.Registry.Probe(ctx, linkLib, ""); err == nil {
		res.Directives = append(res.Directives, lib.Directives()...)
		if len(lib.IncludeDirs) > 0 {
			include := lib.IncludeDirs[len(lib.IncludeDirs)-1]
			res.Header = HeaderLocation{Kind: FromExplicitPath, Path: filepath.Join(include, cfg.HeaderFile())}
		} else {
			res.Header = HeaderLocation{Kind: FromWrapperStub}
		}
		r.finish(cfg, &res, misses)
		return res, nil
	} else {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		misses = multierror.Append(misses, err)
	}

	// nothing answered, link by name and hope the library is on the default paths
	res.Directives = append(res.Directives, LinkLib(linkMode(cfg), linkLib))
	res.Header = HeaderLocation{Kind: FromWrapperStub}
	r.finish(cfg, &res, misses)
	return res, nil
}

// finish logs the resolution outcome and any accumulated probe misses.
func (r *Resolver) finish(cfg *config.Config, res *Resolution, misses *multierror.Error) {
	if err := misses.ErrorOrNil(); err != nil {
		log.Printf("[DEBUG] probe misses for %s: %v", cfg.LinkLib(), err)
	}
	log.Printf("[INFO] resolved %s: %s, header %s, %d directives",
		cfg.LinkLib(), res.Mode, res.Header, len(res.Directives))
}

// rerunDirectives declares the environment variables that invalidate build
// caching. Emitted before any branching so the declarations do not depend on
// which strategy wins.
func (r *Resolver) rerunDirectives(cfg *config.Config) []Directive {
	prefix := cfg.EnvPrefix()
	res := []Directive{
		RerunEnv(prefix + "_INCLUDE_DIR"),
		RerunEnv(prefix + "_LIB_DIR"),
		RerunEnv(prefix + "_STATIC"),
	}
	goos := r.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		res = append(res, RerunEnv("PATH"))
		if cfg.Vcpkg {
			res = append(res, RerunEnv("VCPKG_ROOT"), RerunEnv("VCPKG_DYNAMIC"))
		}
	}
	return res
}

// linkMode picks the static or dynamic qualifier for directives emitted by
// the resolver itself. The <PREFIX>_STATIC variable set to anything but "0"
// forces static, as does the config flag; prober-reported directives keep
// the prober's own mode.
func linkMode(cfg *config.Config) string {
	if v, ok := os.LookupEnv(cfg.EnvPrefix() + "_STATIC"); ok && v != "0" {
		return LinkStatic
	}
	if cfg.StaticLink {
		return LinkStatic
	}
	return LinkDynamic
}

// Print writes the directives one per line to the given writer, the
// machine-readable half of the tool's output.
func Print(w io.Writer, directives []Directive) error {
	for _, d := range directives {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return fmt.Errorf("can't write directive %q: %w", d, err)
		}
	}
	return nil
}
