// Package bundled compiles the vendored sqlite3 amalgamation into a static
// archive with the system C toolchain. The archive is installed into the
// configured output directory and the matching link directives are handed
// back so the generated bindings and the outer build agree on what was built.
package bundled

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/stringutils"
	"github.com/google/uuid"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/executor"
	"github.com/sqlite3gen/sqlite3gen/pkg/resolver"
)

// baseDefines is the feature set the amalgamation is always compiled with.
// The generated bindings assume these are present, the list changes only
// together with the prebuilt bundled bindings.
var baseDefines = []string{
	"SQLITE_CORE",
	"SQLITE_DEFAULT_FOREIGN_KEYS=1",
	"SQLITE_ENABLE_API_ARMOR",
	"SQLITE_ENABLE_COLUMN_METADATA",
	"SQLITE_ENABLE_DBSTAT_VTAB",
	"SQLITE_ENABLE_FTS3",
	"SQLITE_ENABLE_FTS3_PARENTHESIS",
	"SQLITE_ENABLE_FTS5",
	"SQLITE_ENABLE_JSON1",
	"SQLITE_ENABLE_LOAD_EXTENSION=1",
	"SQLITE_ENABLE_MEMORY_MANAGEMENT",
	"SQLITE_ENABLE_RTREE",
	"SQLITE_ENABLE_STAT2",
	"SQLITE_ENABLE_STAT4",
	"SQLITE_HAVE_ISNAN",
	"SQLITE_SOUNDEX",
	"SQLITE_THREADSAFE=1",
	"SQLITE_USE_URI",
	"HAVE_USLEEP=1",
}

// Compiler builds the vendored amalgamation. Runner executes the toolchain;
// CC and AR override the tools, otherwise the usual environment variables and
// finally cc/ar are used.
type Compiler struct {
	Runner executor.Interface
	CC     string
	AR     string
}

// Artifact describes a completed bundled build: the installed archive and
// the directives pointing the outer build at it.
type Artifact struct {
	ArchivePath string
	Directives  []resolver.Directive
}

// Compile stages the amalgamation into a scratch directory, compiles and
// archives it, installs the archive into cfg.OutDir and returns the link
// directives for it. The amalgamation must be vendored in cfg.SourceDir.
func (c *Compiler) Compile(ctx context.Context, cfg *config.Config) (*Artifact, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := filepath.Join(cfg.SourceDir, "sqlite3.c")
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("can't find amalgamation source %s, vendor the amalgamation into %s", src, cfg.SourceDir)
	}

	scratch := filepath.Join(os.TempDir(), "sqlite3gen-"+uuid.New().String())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, fmt.Errorf("can't make scratch dir %s: %w", scratch, err)
	}
	defer os.RemoveAll(scratch)
	log.Printf("[DEBUG] bundled build in %s", scratch)

	stagedSrc := filepath.Join(scratch, "sqlite3.c")
	if err := fileutils.CopyFile(src, stagedSrc); err != nil {
		return nil, fmt.Errorf("can't stage amalgamation source: %w", err)
	}
	if err := fileutils.CopyFile(filepath.Join(cfg.SourceDir, "sqlite3.h"), filepath.Join(scratch, "sqlite3.h")); err != nil {
		return nil, fmt.Errorf("can't stage amalgamation header: %w", err)
	}

	obj := filepath.Join(scratch, "sqlite3.o")
	args := []string{"-c", "-O2", "-I" + scratch, "-o", obj}
	for _, d := range c.defines(cfg) {
		args = append(args, "-D"+d)
	}
	args = append(args, stagedSrc)
	if _, err := c.Runner.Run(ctx, executor.Command{Name: c.tool(c.CC, "CC", "cc"), Args: args}); err != nil {
		return nil, fmt.Errorf("can't compile amalgamation: %w", err)
	}

	archive := filepath.Join(scratch, "libsqlite3.a")
	if _, err := c.Runner.Run(ctx, executor.Command{Name: c.tool(c.AR, "AR", "ar"), Args: []string{"rcs", archive, obj}}); err != nil {
		return nil, fmt.Errorf("can't archive amalgamation: %w", err)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o750); err != nil {
		return nil, fmt.Errorf("can't make out dir %s: %w", cfg.OutDir, err)
	}
	installed := filepath.Join(cfg.OutDir, "libsqlite3.a")
	if err := fileutils.CopyFile(archive, installed); err != nil {
		return nil, fmt.Errorf("can't install archive to %s: %w", installed, err)
	}

	log.Printf("[INFO] compiled bundled sqlite3 into %s, %d defines", installed, len(c.defines(cfg)))
	return &Artifact{
		ArchivePath: installed,
		Directives: []resolver.Directive{
			resolver.LinkSearch(cfg.OutDir),
			resolver.LinkLib(resolver.LinkStatic, "sqlite3"),
			resolver.LibDir(cfg.OutDir),
		},
	}, nil
}

// defines returns the full -D list for the build, base plus feature gates.
func (c *Compiler) defines(cfg *config.Config) []string {
	res := append([]string{}, baseDefines...)
	if cfg.UnlockNotify {
		res = append(res, "SQLITE_ENABLE_UNLOCK_NOTIFY")
	}
	if cfg.PreupdateHook {
		res = append(res, "SQLITE_ENABLE_PREUPDATE_HOOK")
	}
	if cfg.Session {
		res = append(res, "SQLITE_ENABLE_SESSION", "SQLITE_ENABLE_PREUPDATE_HOOK")
	}
	return stringutils.DeDup(res)
}

// tool picks the tool binary: explicit field, environment override, default.
func (c *Compiler) tool(explicit, envName, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envName); env != "" {
		return env
	}
	return fallback
}
