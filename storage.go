package recalc

import "github.com/rs/zerolog"

// calculation holds the tables one recomputation pass works against. it is
// created at the start of a pass and dropped at its end.
type calculation struct {
	workbook  *Workbook
	formulas  *FormulaTable
	graph     *DependencyGraph
	stack     *CalculationStack
	functions *FunctionRegistry
	maxRows   int
	logger    zerolog.Logger

	masked int // lookup misses stored as error values
}

func newCalculation(wb *Workbook, functions *FunctionRegistry, maxRows int, logger zerolog.Logger) *calculation {
	calc := &calculation{
		workbook:  wb,
		graph:     NewDependencyGraph(),
		stack:     NewCalculationStack(),
		functions: functions,
		maxRows:   maxRows,
		logger:    logger,
	}
	calc.formulas = discoverFormulas(calc)
	return calc
}
