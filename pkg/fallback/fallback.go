// Package fallback installs pre-generated bindings when build-time
// translation is turned off. The bindings are embedded, one file per
// supported minimum library version plus a variant for loadable extensions
// and one matching the vendored amalgamation; selection picks the newest
// embedded version not above the configured minimum.
package fallback

import (
	"bytes"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-pkgz/fileutils"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
)

//go:embed prebuilt
var prebuilt embed.FS

// knownVersions are the library versions with embedded bindings, oldest
// first. Regenerated together with the prebuilt files.
var knownVersions = []string{"3.6.8", "3.7.16", "3.26.0"}

// bundledName is the bindings file generated from the vendored amalgamation.
const bundledName = "bindgen_bundled_version"

// Binding is one selected pre-generated bindings file.
type Binding struct {
	Version string // library version the bindings were generated from
	Name    string // embedded file name
	Data    []byte
}

// Select picks the embedded bindings for the configuration: the bundled
// variant for bundled builds, otherwise the newest embedded version not
// above cfg.MinVersion, with the extension variant in extension mode.
func Select(cfg *config.Config) (*Binding, error) {
	name := bundledName
	version := "bundled"
	if !cfg.Bundled {
		best, err := bestVersion(cfg.MinVersion)
		if err != nil {
			return nil, err
		}
		version = best
		name = "bindgen_" + best
	}
	if cfg.LoadableExtension {
		name += "-ext"
	}

	data, err := prebuilt.ReadFile("prebuilt/" + name)
	if err != nil {
		return nil, fmt.Errorf("prebuilt bindings %s are not embedded: %w", name, err)
	}
	log.Printf("[INFO] selected prebuilt bindings %s for min version %s", name, cfg.MinVersion)
	return &Binding{Version: version, Name: name, Data: data}, nil
}

// Install writes the bindings to cfg.Output, retargeted to the configured
// package name. The file is staged next to the destination and renamed so a
// failed install never leaves a truncated bindings file behind.
func (b *Binding) Install(cfg *config.Config) error {
	data := b.Data
	if cfg.Package != "" && cfg.Package != "sqlite3" {
		data = bytes.Replace(data, []byte("\npackage sqlite3\n"), []byte("\npackage "+cfg.Package+"\n"), 1)
	}

	dir := filepath.Dir(cfg.Output)
	tmp, err := fileutils.TempFileName(dir, "bindings-*.go")
	if err != nil {
		return fmt.Errorf("can't allocate temp name in %s: %w", dir, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil { // nolint
		return fmt.Errorf("can't write bindings to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, cfg.Output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("can't move bindings to %s: %w", cfg.Output, err)
	}
	log.Printf("[INFO] installed prebuilt bindings %s to %s", b.Name, cfg.Output)
	return nil
}

// bestVersion returns the newest known version not above min.
func bestVersion(min string) (string, error) {
	want, err := parseVersion(min)
	if err != nil {
		return "", fmt.Errorf("can't parse min_version %q: %w", min, err)
	}
	best := ""
	for _, v := range knownVersions {
		have, err := parseVersion(v)
		if err != nil {
			return "", err
		}
		if compareVersions(have, want) <= 0 {
			best = v
		}
	}
	if best == "" {
		return "", fmt.Errorf("no prebuilt bindings for sqlite3 %s, known versions: %s",
			min, strings.Join(knownVersions, ", "))
	}
	return best, nil
}

func parseVersion(s string) ([3]int, error) {
	var res [3]int
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return res, fmt.Errorf("version must have two or three numeric parts")
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return res, fmt.Errorf("bad version part %q", p)
		}
		res[i] = n
	}
	return res, nil
}

func compareVersions(a, b [3]int) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
