package recalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileExpr(t *testing.T, src string) Function {
	t.Helper()
	fn, err := CompileExprFunction(src)
	require.NoError(t, err, src)
	return fn
}

func TestExprFunction(t *testing.T) {
	t.Run("values flattens numeric arguments", func(t *testing.T) {
		value, err := compileExpr(t, "sum(values) * 2")(1.0, Array{{2.0, "x"}, {3.0, nil}})
		require.NoError(t, err)
		assert.Equal(t, 12.0, value)
	})

	t.Run("Num and Str convert like operators", func(t *testing.T) {
		fn := compileExpr(t, "Num(args[0]) > 10 ? 'big' : 'small'")
		value, err := fn(11.0)
		require.NoError(t, err)
		assert.Equal(t, "big", value)

		value, err = fn("")
		require.NoError(t, err)
		assert.Equal(t, "small", value)

		value, err = compileExpr(t, "Str(args[0]) + '!'")(true)
		require.NoError(t, err)
		assert.Equal(t, "TRUE!", value)
	})

	t.Run("integer results become numbers", func(t *testing.T) {
		value, err := compileExpr(t, "len(args)")(1.0, "a", nil)
		require.NoError(t, err)
		assert.Equal(t, 3.0, value)
	})

	t.Run("ranges are nested lists", func(t *testing.T) {
		value, err := compileExpr(t, "len(args[0])")(Array{{1.0, 2.0}, {3.0, 4.0}, {5.0, 6.0}})
		require.NoError(t, err)
		assert.Equal(t, 3.0, value)
	})

	t.Run("error values propagate without running", func(t *testing.T) {
		_, err := compileExpr(t, "1")(1.0, NewSpreadsheetError(ErrorCodeNA, ""))
		var spreadsheetErr *SpreadsheetError
		require.ErrorAs(t, err, &spreadsheetErr)
		assert.Equal(t, ErrorCodeNA, spreadsheetErr.ErrorCode)
	})

	t.Run("runtime failures are #VALUE!", func(t *testing.T) {
		_, err := compileExpr(t, "args[5]")(1.0)
		var spreadsheetErr *SpreadsheetError
		require.ErrorAs(t, err, &spreadsheetErr)
		assert.Equal(t, ErrorCodeValue, spreadsheetErr.ErrorCode)
	})

	t.Run("compile errors", func(t *testing.T) {
		_, err := CompileExprFunction("1 +")
		assert.ErrorContains(t, err, "compile expression")

		_, err = CompileExprFunction("unknown_name * 2")
		assert.Error(t, err)
	})
}

func TestExprFunctionInFormulas(t *testing.T) {
	registry := DefaultRegistry.Clone()
	require.NoError(t, registry.Register("DOUBLE", compileExpr(t, "Num(args[0]) * 2")))
	require.NoError(t, registry.Register("TOTAL", compileExpr(t, "sum(values)")))

	NewWorkbookTestCase(t, "expression functions").
		WithEngine(WithRegistry(registry)).
		Set("Sheet1!A1", 21.0).
		Set("Sheet1!A2", 4.0).
		Set("Sheet1!B1", "=DOUBLE(A1)").
		Set("Sheet1!B2", "=TOTAL(A1:A2,1)+1").
		Set("Sheet1!B3", "=DOUBLE(1/0)").
		Run().
		AssertCellEq("Sheet1!B1", 42.0).
		AssertCellEq("Sheet1!B2", 27.0).
		AssertCellType("Sheet1!B3", CellValueTypeNumber).
		End()
}
