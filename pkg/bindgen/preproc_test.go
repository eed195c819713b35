package bindgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreproc_Conditionals(t *testing.T) {
	pp := newPreproc(map[string]string{"FOO": "1"})

	t.Run("taken branch", func(t *testing.T) {
		pp.push(pp.defined("FOO"))
		assert.True(t, pp.live())
		pp.elseBranch()
		assert.False(t, pp.live())
		pp.pop()
		assert.True(t, pp.live())
	})

	t.Run("skipped branch flips on else", func(t *testing.T) {
		pp.push(pp.defined("BAR"))
		assert.False(t, pp.live())
		pp.elseBranch()
		assert.True(t, pp.live())
		pp.pop()
	})

	t.Run("nested block inside dead branch stays dead", func(t *testing.T) {
		pp.push(false)
		pp.push(true)
		assert.False(t, pp.live())
		pp.elseBranch()
		assert.False(t, pp.live(), "else of a nested block can't revive a dead parent")
		pp.pop()
		pp.pop()
	})

	t.Run("elif chain takes first match only", func(t *testing.T) {
		pp.push(false)
		pp.elifBranch(true)
		assert.True(t, pp.live())
		pp.elifBranch(true)
		assert.False(t, pp.live())
		pp.elseBranch()
		assert.False(t, pp.live())
		pp.pop()
	})

	t.Run("undef removes the macro", func(t *testing.T) {
		pp.define("TMP", "3")
		assert.True(t, pp.defined("TMP"))
		pp.undef("TMP")
		assert.False(t, pp.defined("TMP"))
		pp.push(pp.defined("TMP"))
		assert.False(t, pp.live())
		pp.pop()
	})
}

func TestPreproc_EvalCond(t *testing.T) {
	pp := newPreproc(map[string]string{"FOO": "1", "BAR": "0", "VER": "3007014"})

	tbl := []struct {
		expr string
		want bool
	}{
		{"defined(FOO)", true},
		{"defined FOO", true},
		{"defined(MISSING)", false},
		{"!defined(MISSING)", true},
		{"FOO && !BAR", true},
		{"FOO && BAR", false},
		{"FOO || BAR", true},
		{"VER >= 3007014", true},
		{"VER >= 3007015", false},
		{"VER < 3007015 && VER > 3000000", true},
		{"VER == 3007014", true},
		{"VER != 3007014", false},
		{"MISSING", false},       // undefined identifiers read as zero
		{"FOO @@ BAR", true},     // unparseable expressions include the block
		{"(FOO || MISSING) && VER == 3007014", true},
	}
	for _, tt := range tbl {
		assert.Equalf(t, tt.want, pp.evalCond(tt.expr), "expr %q", tt.expr)
	}
}

func TestEvalIntLiteral(t *testing.T) {
	tbl := []struct {
		in   string
		want int64
		err  bool
	}{
		{in: "42", want: 42},
		{in: "0x800", want: 2048},
		{in: "0X10", want: 16},
		{in: "-7", want: -7},
		{in: "1ULL", want: 1},
		{in: "100L", want: 100},
		{in: "3050004", want: 3050004},
		{in: "0x7fffffff", want: 2147483647},
		{in: "abc", err: true},
		{in: "", err: true},
		{in: "1.5", err: true},
	}
	for _, tt := range tbl {
		v, err := evalIntLiteral(tt.in)
		if tt.err {
			assert.Errorf(t, err, "input %q", tt.in)
			continue
		}
		require.NoErrorf(t, err, "input %q", tt.in)
		assert.Equalf(t, tt.want, v, "input %q", tt.in)
	}
}

func TestCondEval_Expressions(t *testing.T) {
	pp := newPreproc(map[string]string{"SQLITE_IOERR": "10"})

	tbl := []struct {
		expr string
		want int64
	}{
		{"(SQLITE_IOERR | (1<<8))", 266},
		{"(SQLITE_IOERR | (2<<8))", 522},
		{"1<<4", 16},
		{"256>>8", 1},
		{"2+3*4", 20}, // single precedence level, left to right, enough for the headers
		{"10-3", 7},
		{"6 & 3", 2},
		{"!0", 1},
		{"-(2+3)", -5},
	}
	for _, tt := range tbl {
		ev := condEval{pp: pp, toks: tokenizeExpr(tt.expr)}
		v, err := ev.parse()
		require.NoErrorf(t, err, "expr %q", tt.expr)
		assert.Equalf(t, tt.want, v, "expr %q", tt.expr)
	}
}

func TestCondEval_StrictIdents(t *testing.T) {
	pp := newPreproc(map[string]string{"SQLITE_IOERR": "10"})

	t.Run("known identifier resolves", func(t *testing.T) {
		ev := condEval{pp: pp, toks: tokenizeExpr("(SQLITE_IOERR | (1<<8))"), strictIdents: true}
		v, err := ev.parse()
		require.NoError(t, err)
		assert.Equal(t, int64(266), v)
	})

	t.Run("cast expression rejected", func(t *testing.T) {
		ev := condEval{pp: pp, toks: tokenizeExpr("((sqlite3_destructor_type)0)"), strictIdents: true}
		_, err := ev.parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown identifier")
	})

	t.Run("string literal rejected", func(t *testing.T) {
		ev := condEval{pp: pp, toks: tokenizeExpr(`"3.50.4"`), strictIdents: true}
		_, err := ev.parse()
		require.Error(t, err)
	})

	t.Run("trailing tokens rejected", func(t *testing.T) {
		ev := condEval{pp: pp, toks: tokenizeExpr("1 2"), strictIdents: true}
		_, err := ev.parse()
		require.Error(t, err)
	})

	t.Run("shift out of range rejected", func(t *testing.T) {
		ev := condEval{pp: pp, toks: tokenizeExpr("1<<64"), strictIdents: true}
		_, err := ev.parse()
		require.Error(t, err)
	})
}
