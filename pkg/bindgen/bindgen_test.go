package bindgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
	"github.com/sqlite3gen/sqlite3gen/pkg/resolver"
)

func TestGenerate_ExplicitPath(t *testing.T) {
	cfg := &config.Config{Package: "sqlite3"}
	loc := resolver.HeaderLocation{Kind: resolver.FromExplicitPath, Path: filepath.Join("testdata", "sqlite3.h")}

	decls, err := Generate(loc, cfg)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3.h", decls.Header)
	assert.Equal(t, []string{"testdata"}, decls.IncludeDirs)
	_, ok := constByName(decls, "SQLITE_OK")
	assert.True(t, ok)
	assert.True(t, hasFunc(decls, "sqlite3_open_v2"))
}

func TestGenerate_Environment(t *testing.T) {
	t.Run("include dir set", func(t *testing.T) {
		t.Setenv("SQLITE3_INCLUDE_DIR", "testdata")
		decls, err := Generate(resolver.HeaderLocation{Kind: resolver.FromEnvironment}, &config.Config{})
		require.NoError(t, err)
		assert.Equal(t, []string{"testdata"}, decls.IncludeDirs)
		assert.True(t, hasFunc(decls, "sqlite3_close_v2"))
	})

	t.Run("include dir missing", func(t *testing.T) {
		t.Setenv("SQLITE3_INCLUDE_DIR", "")
		_, err := Generate(resolver.HeaderLocation{Kind: resolver.FromEnvironment}, &config.Config{})
		require.Error(t, err)
		assert.Equal(t, "SQLITE3_INCLUDE_DIR must be set if SQLITE3_LIB_DIR is set", err.Error())
	})

	t.Run("cipher variant prefix", func(t *testing.T) {
		t.Setenv("SQLITE3_INCLUDE_DIR", "")
		_, err := Generate(resolver.HeaderLocation{Kind: resolver.FromEnvironment}, &config.Config{SQLCipher: true})
		require.Error(t, err)
		assert.Equal(t, "SQLCIPHER_INCLUDE_DIR must be set if SQLCIPHER_LIB_DIR is set", err.Error())
	})
}

func TestGenerate_WrapperStub(t *testing.T) {
	t.Run("plain stub", func(t *testing.T) {
		cfg := &config.Config{IncludeDirs: []string{"testdata"}}
		decls, err := Generate(resolver.HeaderLocation{Kind: resolver.FromWrapperStub}, cfg)
		require.NoError(t, err)

		// the stub is a one-line include, the model comes from the real header
		assert.Equal(t, "sqlite3.h", decls.Header)
		assert.Equal(t, []string{"testdata"}, decls.IncludeDirs)
		assert.True(t, hasFunc(decls, "sqlite3_open_v2"))
		_, ok := constByName(decls, "SQLITE_DETERMINISTIC")
		assert.True(t, ok)
	})

	t.Run("extension stub", func(t *testing.T) {
		cfg := &config.Config{LoadableExtension: true, IncludeDirs: []string{"testdata"}}
		decls, err := Generate(resolver.HeaderLocation{Kind: resolver.FromWrapperStub}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "sqlite3ext.h", decls.Header)
		require.NotNil(t, decls.FindStruct("sqlite3_api_routines"))
		_, ok := constByName(decls, "SQLITE_OK")
		assert.True(t, ok, "constants arrive through the chained include")
	})
}

func TestGenerate_FeatureToggles(t *testing.T) {
	loc := resolver.HeaderLocation{Kind: resolver.FromExplicitPath, Path: filepath.Join("testdata", "sqlite3.h")}

	t.Run("all off", func(t *testing.T) {
		decls, err := Generate(loc, &config.Config{})
		require.NoError(t, err)
		assert.False(t, hasFunc(decls, "sqlite3_unlock_notify"))
		assert.False(t, hasFunc(decls, "sqlite3_preupdate_hook"))
		assert.False(t, hasFunc(decls, "sqlite3session_create"))
	})

	t.Run("all on", func(t *testing.T) {
		cfg := &config.Config{UnlockNotify: true, PreupdateHook: true, Session: true}
		decls, err := Generate(loc, cfg)
		require.NoError(t, err)
		assert.True(t, hasFunc(decls, "sqlite3_unlock_notify"))
		assert.True(t, hasFunc(decls, "sqlite3_preupdate_hook"))
		assert.True(t, hasFunc(decls, "sqlite3session_create"))
		assert.Contains(t, decls.Types, "sqlite3_session")
	})
}

func TestGenerate_ExtraIncludeDirs(t *testing.T) {
	// a header next to nothing, resolved only through cfg.IncludeDirs
	dir := t.TempDir()
	stub := filepath.Join(dir, "indirect.h")
	require.NoError(t, os.WriteFile(stub, []byte("#include <sqlite3.h>\n"), 0o600))

	cfg := &config.Config{IncludeDirs: []string{"testdata"}}
	decls, err := Generate(resolver.HeaderLocation{Kind: resolver.FromExplicitPath, Path: stub}, cfg)
	require.NoError(t, err)
	assert.True(t, hasFunc(decls, "sqlite3_close"))
	assert.Equal(t, []string{dir, "testdata"}, decls.IncludeDirs)
}

func TestGenerate_UnreadableHeader(t *testing.T) {
	loc := resolver.HeaderLocation{Kind: resolver.FromExplicitPath, Path: filepath.Join(t.TempDir(), "missing.h")}
	_, err := Generate(loc, &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't translate")
}
