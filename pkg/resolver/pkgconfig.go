package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/sqlite3gen/sqlite3gen/pkg/executor"
)

// PkgConfig probes libraries with the pkg-config tool. Implements
// RegistryProber; the actual process invocation goes through the injected
// executor so tests can fake it.
type PkgConfig struct {
	Runner executor.Interface
	Bin    string // pkg-config binary, default "pkg-config"
	Static bool   // ask for static link lines
}

// Probe queries pkg-config for the named library and parses the resulting
// compiler and linker flags. A non-empty dir scopes the lookup to the
// dir/pkgconfig registry, shadowing the inherited search path.
func (p *PkgConfig) Probe(ctx context.Context, name, dir string) (*Library, error) {
	bin := p.Bin
	if bin == "" {
		bin = "pkg-config"
	}
	args := []string{"--cflags", "--libs"}
	if p.Static {
		args = append(args, "--static")
	}
	args = append(args, name)

	cmd := executor.Command{Name: bin, Args: args}
	if dir != "" {
		cmd.Env = []string{"PKG_CONFIG_PATH=" + filepath.Join(dir, "pkgconfig")}
	}

	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("pkg-config probe for %s failed: %w", name, err)
	}

	lib := parseLinkFlags(res.Joined())
	lib.Static = p.Static
	if len(lib.Libs) == 0 {
		return nil, fmt.Errorf("pkg-config reported no libraries for %s", name)
	}
	return lib, nil
}

// parseLinkFlags splits pkg-config output into include dirs, link dirs and
// library names. Unknown flags are ignored.
func parseLinkFlags(out string) *Library {
	res := &Library{}
	for _, tok := range strings.Fields(out) {
		switch {
		case strings.HasPrefix(tok, "-I") && len(tok) > 2:
			res.IncludeDirs = append(res.IncludeDirs, tok[2:])
		case strings.HasPrefix(tok, "-L") && len(tok) > 2:
			res.LinkDirs = append(res.LinkDirs, tok[2:])
		case strings.HasPrefix(tok, "-l") && len(tok) > 2:
			res.Libs = append(res.Libs, tok[2:])
		}
	}
	res.IncludeDirs = stringutils.DeDup(res.IncludeDirs)
	res.LinkDirs = stringutils.DeDup(res.LinkDirs)
	res.Libs = stringutils.DeDup(res.Libs)
	return res
}
