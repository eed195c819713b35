package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/executor"
	"github.com/sqlite3gen/sqlite3gen/pkg/runner"
)

type options struct {
	Profile string `short:"f" long:"profile" env:"SQLITE3GEN_PROFILE" description:"build profile file, yml or toml"`

	Output  string `short:"o" long:"output" env:"SQLITE3GEN_OUTPUT" description:"generated bindings file (default: sqlite3_bindings.go)"`
	Package string `long:"package" env:"SQLITE3GEN_PACKAGE" description:"package name of the generated file (default: sqlite3)"`

	// build modes
	Bundled           bool `long:"bundled" env:"SQLITE3GEN_BUNDLED" description:"compile the vendored amalgamation instead of linking"`
	Bindgen           bool `long:"bindgen" env:"SQLITE3GEN_BINDGEN" description:"translate the header at build time instead of installing prebuilt bindings"`
	LoadableExtension bool `long:"loadable-extension" env:"SQLITE3GEN_LOADABLE_EXTENSION" description:"generate dispatch-table trampolines for a loadable extension"`
	Embedded          bool `long:"embedded" env:"SQLITE3GEN_EMBEDDED" description:"extension linked into a host owning the dispatch table pointer"`
	SQLCipher         bool `long:"sqlcipher" env:"SQLITE3GEN_SQLCIPHER" description:"target sqlcipher instead of sqlite3"`
	Static            bool `long:"static" env:"SQLITE3GEN_FORCE_STATIC" description:"force static link directives"`
	Vcpkg             bool `long:"vcpkg" env:"SQLITE3GEN_VCPKG" description:"enable the vcpkg prober"`

	// optional library features
	UnlockNotify  bool `long:"unlock-notify" env:"SQLITE3GEN_UNLOCK_NOTIFY" description:"enable unlock notification support"`
	PreupdateHook bool `long:"preupdate-hook" env:"SQLITE3GEN_PREUPDATE_HOOK" description:"enable the preupdate hook"`
	Session       bool `long:"session" env:"SQLITE3GEN_SESSION" description:"enable the session extension, implies preupdate hook"`

	MinVersion  string   `long:"min-version" env:"SQLITE3GEN_MIN_VERSION" description:"minimum supported library version (default: 3.6.8)"`
	SourceDir   string   `long:"source-dir" env:"SQLITE3GEN_SOURCE_DIR" description:"directory with the vendored amalgamation (default: sqlite3)"`
	OutDir      string   `long:"out-dir" env:"SQLITE3GEN_OUT_DIR" description:"directory for compiled artifacts (default: .)"`
	IncludeDirs []string `short:"I" long:"include-dir" env:"SQLITE3GEN_INCLUDE_DIR" env-delim:":" description:"extra header search directory, repeatable"`
	Formatter   string   `long:"formatter" env:"SQLITE3GEN_FORMATTER" description:"formatter for the generated source (default: gofmt)"`

	Dry     bool `long:"dry" description:"resolve the library and print directives, no build"`
	Version bool `long:"version" description:"show version"`
	Verbose bool `short:"v" long:"verbose" description:"verbose mode, tool output to stderr"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	// stdout carries the machine-readable directive stream, everything
	// human-facing goes to stderr
	fmt.Fprintf(os.Stderr, "sqlite3gen %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		os.Exit(0) // already printed
	}
	setupLog(opts.Dbg)

	if err := run(opts); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Fprintf(os.Stderr, "failed, %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	overrides := config.Overrides{
		Bundled:           opts.Bundled,
		BuildtimeBindgen:  opts.Bindgen,
		LoadableExtension: opts.LoadableExtension,
		EmbeddedExtension: opts.Embedded,
		SQLCipher:         opts.SQLCipher,
		StaticLink:        opts.Static,
		Vcpkg:             opts.Vcpkg,
		UnlockNotify:      opts.UnlockNotify,
		PreupdateHook:     opts.PreupdateHook,
		Session:           opts.Session,
		MinVersion:        opts.MinVersion,
		Package:           opts.Package,
		Output:            opts.Output,
		SourceDir:         opts.SourceDir,
		OutDir:            opts.OutDir,
		Formatter:         opts.Formatter,
		IncludeDirs:       opts.IncludeDirs,
	}

	conf, err := config.New(opts.Profile, &overrides)
	if err != nil {
		return fmt.Errorf("can't make config: %w", err)
	}

	r := runner.New(conf, executor.NewLocal(opts.Verbose), os.Stdout)
	r.Dry = opts.Dry
	return r.Run(ctx)
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(os.Stderr), lgr.Err(os.Stderr)}
	if dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError)
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
