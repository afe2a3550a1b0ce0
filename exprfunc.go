package recalc

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEnv is the environment user expressions run against. args holds the
// call arguments (ranges as nested lists), values the numeric values of all
// arguments flattened.
type exprEnv struct {
	Args   []any     `expr:"args"`
	Values []float64 `expr:"values"`
}

// Num coerces a value the way formula operators do
func (exprEnv) Num(value any) float64 {
	return coerceNumber(value)
}

// Str converts a value to its display text
func (exprEnv) Str(value any) string {
	return toString(value)
}

// CompileExprFunction compiles an expr-lang expression into a Function.
// arguments are visible as args, numeric arguments as values, and Num/Str
// convert like formula operators. error values in the arguments propagate
// without running the expression; a runtime failure yields #VALUE!.
//
// for example "sum(values) * 2" or "Num(args[0]) > 10 ? 'big' : 'small'"
func CompileExprFunction(src string) (Function, error) {
	program, err := expr.Compile(src, expr.Env(exprEnv{}))
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	return exprFunction(program), nil
}

func exprFunction(program *vm.Program) Function {
	return func(args ...Primitive) (Primitive, error) {
		if err := firstError(args...); err != nil {
			return nil, err
		}
		values, spreadsheetErr := numbers(args)
		if spreadsheetErr != nil {
			return nil, spreadsheetErr
		}

		env := exprEnv{Args: make([]any, len(args)), Values: values}
		for i, arg := range args {
			env.Args[i] = exprValue(arg)
		}

		out, err := expr.Run(program, env)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, err.Error())
		}
		return normalizeValue(out), nil
	}
}

// exprValue converts a resolved argument to the plain types expr-lang
// indexes and ranges over
func exprValue(value Primitive) any {
	arr, ok := value.(Array)
	if !ok {
		return value
	}
	rows := make([]any, len(arr))
	for i, row := range arr {
		cells := make([]any, len(row))
		for j, value := range row {
			cells[j] = value
		}
		rows[i] = cells
	}
	return rows
}
