// Package config defines the build configuration for bindings generation.
// A Config is assembled from an optional profile file (yml or toml), overridden
// by command line values, and validated for conflicting modes before any stage
// of the build pipeline runs. Once built it is treated as immutable.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config describes a single bindings build. Boolean fields select the build
// mode, string fields point at inputs and outputs. All fields can be set from
// a profile file or from the command line; command line wins.
type Config struct {
	Bundled           bool `yaml:"bundled" toml:"bundled"`                       // compile the vendored amalgamation instead of linking
	BuildtimeBindgen  bool `yaml:"bindgen" toml:"bindgen"`                       // translate the header at build time, otherwise install prebuilt bindings
	LoadableExtension bool `yaml:"loadable_extension" toml:"loadable_extension"` // generate dispatch-table trampolines for a loadable extension
	EmbeddedExtension bool `yaml:"embedded_extension" toml:"embedded_extension"` // extension code linked into a host owning the dispatch table pointer
	SQLCipher         bool `yaml:"sqlcipher" toml:"sqlcipher"`                   // target sqlcipher instead of sqlite3
	StaticLink        bool `yaml:"static" toml:"static"`                         // force static link directives
	Vcpkg             bool `yaml:"vcpkg" toml:"vcpkg"`                           // enable the vcpkg prober (windows only)

	UnlockNotify  bool `yaml:"unlock_notify" toml:"unlock_notify"`
	PreupdateHook bool `yaml:"preupdate_hook" toml:"preupdate_hook"`
	Session       bool `yaml:"session" toml:"session"`

	MinVersion  string   `yaml:"min_version" toml:"min_version"`   // minimum supported library version, selects prebuilt bindings
	Package     string   `yaml:"package" toml:"package"`           // package name of the generated file
	Output      string   `yaml:"output" toml:"output"`             // path of the generated bindings file
	SourceDir   string   `yaml:"source_dir" toml:"source_dir"`     // directory with the vendored amalgamation
	OutDir      string   `yaml:"out_dir" toml:"out_dir"`           // directory for compiled artifacts
	Formatter   string   `yaml:"formatter" toml:"formatter"`       // external formatter binary
	IncludeDirs []string `yaml:"include_dirs" toml:"include_dirs"` // extra header search directories
}

// Overrides defines values from CLI which take precedence over the profile
// file. Bool overrides can only turn a mode on, matching flag semantics.
type Overrides struct {
	Bundled           bool
	BuildtimeBindgen  bool
	LoadableExtension bool
	EmbeddedExtension bool
	SQLCipher         bool
	StaticLink        bool
	Vcpkg             bool

	UnlockNotify  bool
	PreupdateHook bool
	Session       bool

	MinVersion  string
	Package     string
	Output      string
	SourceDir   string
	OutDir      string
	Formatter   string
	IncludeDirs []string
}

// New makes a config from the profile file fname (optional, empty for none)
// with overrides applied on top and defaults filled in. The result is
// validated; a conflicting mode combination fails here, before any work is
// done.
func New(fname string, o *Overrides) (*Config, error) {
	res := &Config{}

	if fname != "" {
		data, err := os.ReadFile(fname) // nolint gosec // this is a config file as defined by user
		if err != nil {
			return nil, fmt.Errorf("can't read profile %s: %w", fname, err)
		}
		if err = unmarshalProfile(fname, data, res); err != nil {
			return nil, err
		}
		log.Printf("[INFO] profile loaded from %s", fname)
	}

	res.applyOverrides(o)
	res.applyDefaults()

	if err := res.Validate(); err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] config: %s", res)
	return res, nil
}

// unmarshalProfile parses the profile from the data bytes, yml or toml
// depending on the file extension. Yaml is strict and fails on unknown fields.
func unmarshalProfile(fname string, data []byte, res *Config) error {
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err := yamlDecoder.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal yaml profile %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err := toml.Unmarshal(data, res); err != nil {
			return fmt.Errorf("can't unmarshal toml profile %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown profile format %s", fname)
	}
	return nil
}

func (c *Config) applyOverrides(o *Overrides) {
	if o == nil {
		return
	}
	c.Bundled = c.Bundled || o.Bundled
	c.BuildtimeBindgen = c.BuildtimeBindgen || o.BuildtimeBindgen
	c.LoadableExtension = c.LoadableExtension || o.LoadableExtension
	c.EmbeddedExtension = c.EmbeddedExtension || o.EmbeddedExtension
	c.SQLCipher = c.SQLCipher || o.SQLCipher
	c.StaticLink = c.StaticLink || o.StaticLink
	c.Vcpkg = c.Vcpkg || o.Vcpkg
	c.UnlockNotify = c.UnlockNotify || o.UnlockNotify
	c.PreupdateHook = c.PreupdateHook || o.PreupdateHook
	c.Session = c.Session || o.Session

	if o.MinVersion != "" {
		c.MinVersion = o.MinVersion
	}
	if o.Package != "" {
		c.Package = o.Package
	}
	if o.Output != "" {
		c.Output = o.Output
	}
	if o.SourceDir != "" {
		c.SourceDir = o.SourceDir
	}
	if o.OutDir != "" {
		c.OutDir = o.OutDir
	}
	if o.Formatter != "" {
		c.Formatter = o.Formatter
	}
	c.IncludeDirs = append(c.IncludeDirs, o.IncludeDirs...)
}

func (c *Config) applyDefaults() {
	if c.Session { // session support is built on the preupdate hook
		c.PreupdateHook = true
	}
	if c.MinVersion == "" {
		c.MinVersion = "3.6.8"
	}
	if c.Package == "" {
		c.Package = "sqlite3"
	}
	if c.Output == "" {
		c.Output = "sqlite3_bindings.go"
	}
	if c.SourceDir == "" {
		c.SourceDir = "sqlite3"
	}
	if c.OutDir == "" {
		c.OutDir = "."
	}
	if c.Formatter == "" {
		c.Formatter = "gofmt"
	}
}

// Validate checks for unsupported mode combinations. All conflicts are
// reported at once.
func (c *Config) Validate() error {
	errs := new(multierror.Error)
	if c.Bundled && c.SQLCipher {
		errs = multierror.Append(errs, fmt.Errorf("bundled sqlcipher build is not supported, link against a system sqlcipher"))
	}
	if c.Bundled && c.LoadableExtension {
		errs = multierror.Append(errs, fmt.Errorf("building a loadable extension bundled is not supported"))
	}
	if c.EmbeddedExtension && !c.LoadableExtension {
		errs = multierror.Append(errs, fmt.Errorf("embedded_extension requires loadable_extension"))
	}
	if c.EmbeddedExtension && !c.BuildtimeBindgen {
		errs = multierror.Append(errs, fmt.Errorf("embedded_extension requires bindgen, prebuilt bindings declare their own dispatch table pointer"))
	}
	return errs.ErrorOrNil()
}

// EnvPrefix returns the prefix of the environment variables consulted during
// library discovery, depending on the cipher variant.
func (c *Config) EnvPrefix() string {
	if c.SQLCipher {
		return "SQLCIPHER"
	}
	return "SQLITE3"
}

// HeaderFile returns the name of the header to translate. Loadable extensions
// are built against the extension header with the dispatch table definition.
func (c *Config) HeaderFile() string {
	if c.LoadableExtension {
		return "sqlite3ext.h"
	}
	return "sqlite3.h"
}

// WrapperStub returns the name of the stub header used when no real header
// location can be discovered.
func (c *Config) WrapperStub() string {
	if c.LoadableExtension {
		return "wrapper-ext.h"
	}
	return "wrapper.h"
}

// LinkLib returns the library name used for link directives and registry
// probes.
func (c *Config) LinkLib() string {
	if c.SQLCipher {
		return "sqlcipher"
	}
	return "sqlite3"
}

func (c *Config) String() string {
	modes := []string{}
	if c.Bundled {
		modes = append(modes, "bundled")
	}
	if c.BuildtimeBindgen {
		modes = append(modes, "bindgen")
	}
	if c.LoadableExtension {
		modes = append(modes, "loadable_extension")
	}
	if c.EmbeddedExtension {
		modes = append(modes, "embedded_extension")
	}
	if c.SQLCipher {
		modes = append(modes, "sqlcipher")
	}
	if c.StaticLink {
		modes = append(modes, "static")
	}
	if c.Vcpkg {
		modes = append(modes, "vcpkg")
	}
	if c.UnlockNotify {
		modes = append(modes, "unlock_notify")
	}
	if c.PreupdateHook {
		modes = append(modes, "preupdate_hook")
	}
	if c.Session {
		modes = append(modes, "session")
	}
	if len(modes) == 0 {
		modes = append(modes, "linked")
	}
	return fmt.Sprintf("{modes:[%s], lib:%s, header:%s, min:%s, output:%s}",
		strings.Join(modes, " "), c.LinkLib(), c.HeaderFile(), c.MinVersion, c.Output)
}
