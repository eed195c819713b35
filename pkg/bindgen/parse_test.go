package bindgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string, defines map[string]string) *Declarations {
	t.Helper()
	p := &Parser{Defines: defines, IntMacroType: DefaultIntMacroType}
	decls, err := p.Parse(filepath.Join("testdata", name))
	require.NoError(t, err)
	return decls
}

func findFunc(t *testing.T, decls *Declarations, name string) FuncDecl {
	t.Helper()
	for _, f := range decls.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("function %s not translated", name)
	return FuncDecl{}
}

func hasFunc(decls *Declarations, name string) bool {
	for _, f := range decls.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}

func constByName(decls *Declarations, name string) (Constant, bool) {
	for _, c := range decls.Constants {
		if c.Name == name {
			return c, true
		}
	}
	return Constant{}, false
}

func TestParser_ParseConstants(t *testing.T) {
	decls := parseFixture(t, "sqlite3.h", nil)

	tbl := []struct {
		name  string
		value int64
	}{
		{"SQLITE_OK", 0},
		{"SQLITE_ERROR", 1},
		{"SQLITE_BUSY", 5},
		{"SQLITE_IOERR", 10},
		{"SQLITE_ROW", 100},
		{"SQLITE_DONE", 101},
		{"SQLITE_VERSION_NUMBER", 3050004},
		{"SQLITE_IOERR_READ", 266},
		{"SQLITE_IOERR_SHORT_READ", 522},
		{"SQLITE_IOERR_WRITE", 778},
		{"SQLITE_OPEN_READONLY", 1},
		{"SQLITE_OPEN_READWRITE", 2},
		{"SQLITE_OPEN_CREATE", 4},
		{"SQLITE_DETERMINISTIC", 2048},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := constByName(decls, tt.name)
			require.True(t, ok, "constant %s not translated", tt.name)
			assert.Equal(t, tt.value, c.Value)
			assert.Equal(t, "int32", c.Type)
		})
	}

	t.Run("non-integer macros excluded", func(t *testing.T) {
		for _, name := range []string{"SQLITE_VERSION", "SQLITE_SOURCE_ID", "SQLITE_STATIC", "SQLITE_TRANSIENT",
			"SQLITE_EXTERN", "SQLITE3_H"} {
			_, ok := constByName(decls, name)
			assert.False(t, ok, "%s must not become a constant", name)
		}
	})

	t.Run("declaration order preserved", func(t *testing.T) {
		idx := map[string]int{}
		for i, c := range decls.Constants {
			idx[c.Name] = i
		}
		assert.Less(t, idx["SQLITE_OK"], idx["SQLITE_ROW"])
		assert.Less(t, idx["SQLITE_ROW"], idx["SQLITE_IOERR_READ"])
		assert.Less(t, idx["SQLITE_IOERR_READ"], idx["SQLITE_DETERMINISTIC"])
	})
}

func TestParser_ParseTypes(t *testing.T) {
	decls := parseFixture(t, "sqlite3.h", nil)
	for _, name := range []string{"sqlite3", "sqlite_int64", "sqlite_uint64", "sqlite3_int64", "sqlite3_uint64",
		"sqlite3_callback", "sqlite3_stmt", "sqlite3_context", "sqlite3_value", "sqlite3_blob",
		"sqlite3_backup", "sqlite3_destructor_type"} {
		assert.Contains(t, decls.Types, name)
	}
	assert.NotContains(t, decls.Types, "sqlite3_session", "session typedef is feature-gated")
}

func TestParser_ParseFunctions(t *testing.T) {
	decls := parseFixture(t, "sqlite3.h", nil)

	t.Run("plain declaration", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_close_v2")
		assert.Equal(t, "int", fn.Sig.Ret.Base)
		assert.Equal(t, 0, fn.Sig.Ret.Stars)
		require.Len(t, fn.Sig.Params, 1)
		assert.Equal(t, "", fn.Sig.Params[0].Name)
		assert.Equal(t, "sqlite3", fn.Sig.Params[0].Type.Base)
		assert.Equal(t, 1, fn.Sig.Params[0].Type.Stars)
		assert.Equal(t, "sqlite3*", fn.Sig.Params[0].Type.Raw)
	})

	t.Run("qualified return type", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_column_text")
		assert.Equal(t, "const unsigned char*", fn.Sig.Ret.Raw)
		assert.True(t, fn.Sig.Ret.Const)
		assert.True(t, fn.Sig.Ret.Unsigned)
		assert.Equal(t, 1, fn.Sig.Ret.Stars)
	})

	t.Run("function pointer parameter", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_exec")
		require.Len(t, fn.Sig.Params, 5)
		assert.Equal(t, []string{"", "sql", "callback", "", "errmsg"},
			[]string{fn.Sig.Params[0].Name, fn.Sig.Params[1].Name, fn.Sig.Params[2].Name,
				fn.Sig.Params[3].Name, fn.Sig.Params[4].Name})
		cb := fn.Sig.Params[2].Type
		require.NotNil(t, cb.Func)
		assert.Equal(t, "int", cb.Func.Ret.Base)
		assert.Len(t, cb.Func.Params, 4)
		assert.False(t, fn.Sig.Variadic)
	})

	t.Run("abstract function pointer parameter", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_bind_text")
		require.Len(t, fn.Sig.Params, 5)
		dtor := fn.Sig.Params[4].Type
		require.NotNil(t, dtor.Func)
		assert.True(t, dtor.Func.Ret.IsVoid())
		assert.Equal(t, "void(*)(void*)", dtor.Raw)
	})

	t.Run("variadic declarations", func(t *testing.T) {
		assert.True(t, findFunc(t, decls, "sqlite3_mprintf").Sig.Variadic)
		assert.True(t, findFunc(t, decls, "sqlite3_config").Sig.Variadic)
		assert.True(t, findFunc(t, decls, "sqlite3_log").Sig.Variadic)

		dbc := findFunc(t, decls, "sqlite3_db_config")
		assert.True(t, dbc.Sig.Variadic)
		require.Len(t, dbc.Sig.Params, 2)
		assert.Equal(t, "op", dbc.Sig.Params[1].Name)
	})

	t.Run("va_list is a plain parameter", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_vmprintf")
		assert.False(t, fn.Sig.Variadic)
		require.Len(t, fn.Sig.Params, 2)
		assert.Equal(t, "va_list", fn.Sig.Params[1].Type.Base)
	})

	t.Run("typedef return", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_memory_used")
		assert.Equal(t, "sqlite3_int64", fn.Sig.Ret.Base)
		assert.Empty(t, fn.Sig.Params)
	})

	t.Run("void return", func(t *testing.T) {
		fn := findFunc(t, decls, "sqlite3_free")
		assert.True(t, fn.Sig.Ret.IsVoid())
	})

	t.Run("deprecated marker expands away", func(t *testing.T) {
		assert.True(t, hasFunc(decls, "sqlite3_aggregate_count"))
	})

	t.Run("array variable skipped", func(t *testing.T) {
		assert.False(t, hasFunc(decls, "sqlite3_version"))
	})
}

func TestParser_FeatureGates(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		decls := parseFixture(t, "sqlite3.h", nil)
		assert.False(t, hasFunc(decls, "sqlite3_unlock_notify"))
		assert.False(t, hasFunc(decls, "sqlite3_preupdate_hook"))
		assert.False(t, hasFunc(decls, "sqlite3session_create"))
	})

	t.Run("unlock notify", func(t *testing.T) {
		decls := parseFixture(t, "sqlite3.h", map[string]string{"SQLITE_ENABLE_UNLOCK_NOTIFY": "1"})
		fn := findFunc(t, decls, "sqlite3_unlock_notify")
		require.Len(t, fn.Sig.Params, 3)
		require.NotNil(t, fn.Sig.Params[1].Type.Func)
		assert.Len(t, fn.Sig.Params[1].Type.Func.Params, 2)
		assert.False(t, hasFunc(decls, "sqlite3session_create"))
	})

	t.Run("preupdate hook", func(t *testing.T) {
		decls := parseFixture(t, "sqlite3.h", map[string]string{"SQLITE_ENABLE_PREUPDATE_HOOK": "1"})
		fn := findFunc(t, decls, "sqlite3_preupdate_hook")
		require.Len(t, fn.Sig.Params, 3)
		hook := fn.Sig.Params[1].Type
		require.NotNil(t, hook.Func)
		require.Len(t, hook.Func.Params, 7)
		assert.Equal(t, "zDb", hook.Func.Params[3].Name)
		assert.Equal(t, "const char*", hook.Func.Params[3].Type.Raw)
	})

	t.Run("session", func(t *testing.T) {
		decls := parseFixture(t, "sqlite3.h", map[string]string{"SQLITE_ENABLE_SESSION": "1"})
		assert.Contains(t, decls.Types, "sqlite3_session")
		create := findFunc(t, decls, "sqlite3session_create")
		assert.Len(t, create.Sig.Params, 3)
		assert.True(t, hasFunc(decls, "sqlite3session_delete"))
	})
}

func TestParser_ParseExtensionHeader(t *testing.T) {
	decls := parseFixture(t, "sqlite3ext.h", nil)

	st := decls.FindStruct("sqlite3_api_routines")
	require.NotNil(t, st, "dispatch table struct not translated")

	wantFields := []string{
		"aggregate_context", "bind_int", "bind_int64", "bind_text", "close", "column_count",
		"column_double", "column_int", "column_text", "db_config", "db_handle", "errmsg", "exec",
		"finalize", "free", "libversion", "libversion_number", "malloc", "mprintf", "open",
		"open_v2", "prepare_v2", "result_int", "result_text", "step", "vmprintf", "close_v2",
		"malloc64", "db_cacheflush",
	}
	names := make([]string, len(st.Fields))
	for i, f := range st.Fields {
		names[i] = f.Name
		assert.NotNilf(t, f.Sig, "field %s must be a function pointer", f.Name)
	}
	assert.Equal(t, wantFields, names)

	t.Run("field signatures", func(t *testing.T) {
		byName := map[string]Field{}
		for _, f := range st.Fields {
			byName[f.Name] = f
		}

		closeV2 := byName["close_v2"]
		require.Len(t, closeV2.Sig.Params, 1)
		assert.Equal(t, "sqlite3*", closeV2.Sig.Params[0].Type.Raw)
		assert.False(t, closeV2.Sig.Variadic)

		assert.True(t, byName["db_config"].Sig.Variadic)
		assert.True(t, byName["mprintf"].Sig.Variadic)
		assert.False(t, byName["vmprintf"].Sig.Variadic)
		assert.Equal(t, "pStmt", byName["column_count"].Sig.Params[0].Name)
		assert.Equal(t, "sqlite3_callback", byName["exec"].Sig.Params[2].Type.Base)
		assert.Equal(t, "sqlite3_uint64", byName["malloc64"].Sig.Params[0].Type.Base)
	})

	t.Run("includes followed", func(t *testing.T) {
		// sqlite3ext.h pulls sqlite3.h, its declarations land in the same model
		assert.Contains(t, decls.Types, "sqlite3")
		assert.Contains(t, decls.Types, "sqlite3_api_routines")
		assert.Contains(t, decls.Types, "sqlite3_loadext_entry")
		_, ok := constByName(decls, "SQLITE_OK")
		assert.True(t, ok)
		assert.True(t, hasFunc(decls, "sqlite3_open_v2"))
	})

	t.Run("redirection macros are not constants", func(t *testing.T) {
		for _, name := range []string{"sqlite3_close", "sqlite3_close_v2", "SQLITE_EXTENSION_INIT1"} {
			_, ok := constByName(decls, name)
			assert.False(t, ok, "%s must not become a constant", name)
		}
	})
}

func TestParser_SkipsUnknownConstructs(t *testing.T) {
	dir := t.TempDir()
	src := `#define GOOD 7
int (broken;
union { int a; } anon;
struct holder { int count; void (*cb)(void); char name[8]; };
int ok_fn(void);
`
	path := filepath.Join(dir, "odd.h")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	p := &Parser{IntMacroType: DefaultIntMacroType}
	decls, err := p.Parse(path)
	require.NoError(t, err)

	c, ok := constByName(decls, "GOOD")
	require.True(t, ok)
	assert.Equal(t, int64(7), c.Value)
	assert.True(t, hasFunc(decls, "ok_fn"))
	assert.False(t, hasFunc(decls, "broken"))

	st := decls.FindStruct("holder")
	require.NotNil(t, st)
	require.Len(t, st.Fields, 3)
	assert.Equal(t, "count", st.Fields[0].Name)
	assert.Nil(t, st.Fields[0].Sig)
	assert.Equal(t, "cb", st.Fields[1].Name)
	assert.NotNil(t, st.Fields[1].Sig)
	assert.Equal(t, "name", st.Fields[2].Name)
	assert.Nil(t, st.Fields[2].Sig)
}

func TestParser_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.h"),
		[]byte("#define FROM_A 1\n#include \"b.h\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.h"),
		[]byte("#define FROM_B 2\n#include \"a.h\"\n"), 0o600))

	p := &Parser{IntMacroType: DefaultIntMacroType}
	decls, err := p.Parse(filepath.Join(dir, "a.h"))
	require.NoError(t, err)

	_, ok := constByName(decls, "FROM_A")
	assert.True(t, ok)
	_, ok = constByName(decls, "FROM_B")
	assert.True(t, ok)
	require.Len(t, decls.Constants, 2, "cycled include must be translated once")
}

func TestParser_IncludeDirs(t *testing.T) {
	incDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(incDir, "extra.h"), []byte("#define EXTRA 42\n"), 0o600))
	rootDir := t.TempDir()
	path := filepath.Join(rootDir, "root.h")
	require.NoError(t, os.WriteFile(path, []byte("#include <extra.h>\n#define ROOT 1\n"), 0o600))

	p := &Parser{IncludeDirs: []string{incDir}, IntMacroType: DefaultIntMacroType}
	decls, err := p.Parse(path)
	require.NoError(t, err)

	c, ok := constByName(decls, "EXTRA")
	require.True(t, ok)
	assert.Equal(t, int64(42), c.Value)
}

func TestParser_ParseMissingFile(t *testing.T) {
	p := &Parser{}
	_, err := p.Parse(filepath.Join(t.TempDir(), "nope.h"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't read header")
}

func TestDefaultIntMacroType(t *testing.T) {
	typ, ok := DefaultIntMacroType("X", 0)
	assert.True(t, ok)
	assert.Equal(t, "int32", typ)

	typ, ok = DefaultIntMacroType("X", 2147483647)
	assert.True(t, ok)
	assert.Equal(t, "int32", typ)

	_, ok = DefaultIntMacroType("X", 2147483648)
	assert.False(t, ok)
	_, ok = DefaultIntMacroType("X", -2147483649)
	assert.False(t, ok)
}

func TestTokenizeC(t *testing.T) {
	tbl := []struct {
		in   string
		want []string
	}{
		{"int (*cb)(void*,int);", []string{"int", "(", "*", "cb", ")", "(", "void", "*", ",", "int", ")", ";"}},
		{"sqlite3_stmt*pStmt", []string{"sqlite3_stmt", "*", "pStmt"}},
		{"char *sqlite3_mprintf(const char*,...);",
			[]string{"char", "*", "sqlite3_mprintf", "(", "const", "char", "*", ",", "...", ")", ";"}},
		{`x = "a b;c"`, []string{"x", "=", `"a b;c"`}},
		{"0x800 100L", []string{"0x800", "100L"}},
	}
	for _, tt := range tbl {
		assert.Equal(t, tt.want, tokenizeC(tt.in), "input %q", tt.in)
	}
}

func TestStripComments(t *testing.T) {
	t.Run("line comment", func(t *testing.T) {
		assert.Equal(t, "int a; ", stripComments("int a; // trailing"))
	})
	t.Run("block keeps newlines", func(t *testing.T) {
		got := stripComments("#define A 1 /* one\ntwo */\n#define B 2")
		assert.Equal(t, "#define A 1 \n \n#define B 2", got)
	})
	t.Run("comment inside string survives", func(t *testing.T) {
		assert.Equal(t, `s = "a /* not */ b";`, stripComments(`s = "a /* not */ b";`))
	})
}
