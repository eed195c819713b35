// Package runner wires the build pipeline. One Run call takes a validated
// configuration through library resolution, optional bundled compilation,
// binding generation or prebuilt install, trampoline emission for extensions,
// and final assembly. Components are injected so each stage can be replaced
// in tests; every stage failure comes back wrapped with the stage name and
// main reports it exactly once.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/sqlite3gen/sqlite3gen/pkg/assemble"
	"github.com/sqlite3gen/sqlite3gen/pkg/bindgen"
	"github.com/sqlite3gen/sqlite3gen/pkg/bundled"
	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/executor"
	"github.com/sqlite3gen/sqlite3gen/pkg/fallback"
	"github.com/sqlite3gen/sqlite3gen/pkg/resolver"
	"github.com/sqlite3gen/sqlite3gen/pkg/trampoline"
)

// Resolver decides how the native library is provided and where the header is.
type Resolver interface {
	Resolve(ctx context.Context, cfg *config.Config) (resolver.Resolution, error)
}

// Compiler builds the vendored amalgamation into a static archive.
type Compiler interface {
	Compile(ctx context.Context, cfg *config.Config) (*bundled.Artifact, error)
}

// Generator translates the resolved header into the typed model and renders
// it as cgo source.
type Generator interface {
	Generate(loc resolver.HeaderLocation, cfg *config.Config) (*bindgen.Declarations, error)
	Render(decls *bindgen.Declarations, cfg *config.Config, directives []resolver.Directive, preambleExtra string) (string, error)
}

// Trampoliner emits the dispatch-table indirection layer for loadable
// extensions.
type Trampoliner interface {
	Emit(decls *bindgen.Declarations, cfg *config.Config) (*trampoline.Output, error)
}

// Assembler formats the source fragments and writes the bindings file.
type Assembler interface {
	Run(ctx context.Context, fragments []string, cfg *config.Config) error
}

// Fallback installs pre-generated bindings when build-time translation is off.
type Fallback interface {
	Install(cfg *config.Config) error
}

// Runner is the pipeline with all its stages. Directives receives the
// machine-readable build directives, one per line; main points it at stdout.
type Runner struct {
	Config      *config.Config
	Resolver    Resolver
	Compiler    Compiler
	Generator   Generator
	Trampoliner Trampoliner
	Assembler   Assembler
	Fallback    Fallback

	Directives io.Writer
	Dry        bool // resolve and print directives, skip compilation and generation
}

// New makes a Runner with the real pipeline components, subprocess work going
// through the given executor.
func New(cfg *config.Config, ex executor.Interface, directives io.Writer) *Runner {
	return &Runner{
		Config:      cfg,
		Resolver:    resolver.New(ex),
		Compiler:    &bundled.Compiler{Runner: ex},
		Generator:   bindgenGenerator{},
		Trampoliner: trampolineEmitter{},
		Assembler:   assembleRunner{},
		Fallback:    prebuiltBindings{},
		Directives:  directives,
	}
}

// Run executes the pipeline for the configured build.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Printf("[DEBUG] pipeline starts: %s", cfg)

	res, err := r.Resolver.Resolve(ctx, cfg)
	if err != nil {
		return fmt.Errorf("can't resolve %s library: %w", cfg.LinkLib(), err)
	}

	if r.Dry {
		log.Printf("[INFO] dry run, stopping after resolution: mode %s, header %s", res.Mode, res.Header)
		if err := resolver.Print(r.Directives, res.Directives); err != nil {
			return fmt.Errorf("can't emit build directives: %w", err)
		}
		return nil
	}

	directives := res.Directives
	if res.Mode == resolver.ModeBundled {
		artifact, err := r.Compiler.Compile(ctx, cfg)
		if err != nil {
			return fmt.Errorf("can't build bundled library: %w", err)
		}
		directives = append(directives, artifact.Directives...)
		log.Printf("[DEBUG] bundled archive %s", artifact.ArchivePath)
	}

	if err := resolver.Print(r.Directives, directives); err != nil {
		return fmt.Errorf("can't emit build directives: %w", err)
	}

	if !cfg.BuildtimeBindgen {
		if err := r.Fallback.Install(cfg); err != nil {
			return fmt.Errorf("can't install prebuilt bindings: %w", err)
		}
		log.Printf("[INFO] build complete, prebuilt bindings %s", cfg.Output)
		return nil
	}

	decls, err := r.Generator.Generate(res.Header, cfg)
	if err != nil {
		return fmt.Errorf("can't generate bindings model: %w", err)
	}

	var fragments []string
	preamble := ""
	if cfg.LoadableExtension {
		out, err := r.Trampoliner.Emit(decls, cfg)
		if err != nil {
			return fmt.Errorf("can't generate trampolines: %w", err)
		}
		preamble = out.Preamble()
		fragments = out.Fragments()
	}

	rendered, err := r.Generator.Render(decls, cfg, directives, preamble)
	if err != nil {
		return fmt.Errorf("can't render bindings: %w", err)
	}
	fragments = append([]string{rendered}, fragments...)

	if err := r.Assembler.Run(ctx, fragments, cfg); err != nil {
		return fmt.Errorf("can't assemble %s: %w", cfg.Output, err)
	}
	log.Printf("[INFO] build complete, bindings %s", cfg.Output)
	return nil
}

// default component adapters over the package-level implementations

type bindgenGenerator struct{}

func (bindgenGenerator) Generate(loc resolver.HeaderLocation, cfg *config.Config) (*bindgen.Declarations, error) {
	return bindgen.Generate(loc, cfg)
}

func (bindgenGenerator) Render(decls *bindgen.Declarations, cfg *config.Config,
	directives []resolver.Directive, preambleExtra string) (string, error) {
	return bindgen.Render(decls, cfg, directives, preambleExtra)
}

type trampolineEmitter struct{}

func (trampolineEmitter) Emit(decls *bindgen.Declarations, cfg *config.Config) (*trampoline.Output, error) {
	return trampoline.Emit(decls, cfg)
}

type assembleRunner struct{}

func (assembleRunner) Run(ctx context.Context, fragments []string, cfg *config.Config) error {
	return assemble.Run(ctx, fragments, cfg)
}

type prebuiltBindings struct{}

func (prebuiltBindings) Install(cfg *config.Config) error {
	b, err := fallback.Select(cfg)
	if err != nil {
		return err
	}
	return b.Install(cfg)
}
