package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Vcpkg probes an installed vcpkg tree for the library's header and import
// library. Implements PlatformProber; the prober only reports itself
// available on windows, matching where vcpkg toolchains are used, but the
// tree inspection itself is portable and fully testable elsewhere.
type Vcpkg struct {
	Root string // vcpkg root override, default from VCPKG_ROOT or VCPKG_INSTALLATION_ROOT
	GOOS string // platform override for tests, default runtime.GOOS
}

// Available reports whether the prober applies to the current platform.
func (v *Vcpkg) Available() bool {
	goos := v.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return goos == "windows"
}

// Probe locates the library under the vcpkg installed tree for the active
// triplet. The default triplet is x64-windows-static, relaxed to x64-windows
// when VCPKG_DYNAMIC is set to anything but "0"; VCPKG_DEFAULT_TRIPLET
// overrides both.
func (v *Vcpkg) Probe(_ context.Context, name string) (*Library, error) {
	root := v.Root
	if root == "" {
		root = os.Getenv("VCPKG_ROOT")
	}
	if root == "" {
		root = os.Getenv("VCPKG_INSTALLATION_ROOT")
	}
	if root == "" {
		return nil, fmt.Errorf("vcpkg root is not set, define VCPKG_ROOT")
	}

	dynamic := false
	if val, ok := os.LookupEnv("VCPKG_DYNAMIC"); ok && val != "0" {
		dynamic = true
	}
	triplet := os.Getenv("VCPKG_DEFAULT_TRIPLET")
	if triplet == "" {
		triplet = "x64-windows"
		if !dynamic {
			triplet += "-static"
		}
	}

	base := filepath.Join(root, "installed", triplet)
	includeDir := filepath.Join(base, "include")
	libDir := filepath.Join(base, "lib")
	libFile := filepath.Join(libDir, name+".lib")

	if fi, err := os.Stat(includeDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("vcpkg tree %s has no include directory for triplet %s", root, triplet)
	}
	if fi, err := os.Stat(libFile); err != nil || fi.IsDir() {
		return nil, fmt.Errorf("vcpkg tree %s has no %s.lib for triplet %s", root, name, triplet)
	}

	return &Library{
		IncludeDirs: []string{includeDir},
		LinkDirs:    []string{libDir},
		Libs:        []string{name},
		Static:      !dynamic,
	}, nil
}
