package recalc

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., sheet or function) was
	// not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Engine recomputes every formula of a workbook. a zero-config engine uses
// the default function registry and logs nothing.
type Engine struct {
	functions *FunctionRegistry
	maxRows   int
	logger    zerolog.Logger

	dependencies *DependencyGraph // trace of the last pass
}

// Option configures an Engine
type Option func(*Engine)

// WithRegistry sets the function registry formulas are resolved against
func WithRegistry(registry *FunctionRegistry) Option {
	return func(e *Engine) {
		e.functions = registry
	}
}

// WithMaxRows sets the row bound of open-ended ranges on sheets without a
// declared used range
func WithMaxRows(rows int) Option {
	return func(e *Engine) {
		if rows > 0 {
			e.maxRows = rows
		}
	}
}

// WithLogger sets the logger passes report to
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a new engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		functions:    DefaultRegistry,
		maxRows:      defaultMaxRows,
		logger:       zerolog.Nop(),
		dependencies: NewDependencyGraph(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recalculate recomputes every formula cell of wb in place. the first fatal
// error aborts the pass and leaves wb partially recomputed.
func (e *Engine) Recalculate(wb *Workbook) error {
	if wb == nil {
		return NewApplicationError(InvalidArgument, "Workbook is nil")
	}

	start := time.Now()
	calc := newCalculation(wb, e.functions, e.maxRows, e.logger)
	e.dependencies = calc.graph

	// later discoveries first. a task finished by an earlier recursive read
	// is evaluated again, which reads the same inputs.
	tasks := calc.formulas.Tasks()
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := calc.evaluate(tasks[i]); err != nil {
			e.logger.Error().Err(err).Str("cell", tasks[i].Key).Msg("recalculation aborted")
			return err
		}
	}

	cells := 0
	for _, sheet := range wb.Sheets {
		cells += sheet.GetTotalCells()
	}
	e.logger.Info().
		Int("sheets", len(wb.SheetNames)).
		Int("cells", cells).
		Int("formulas", len(tasks)).
		Int("done", calc.formulas.CountByStatus(TaskDone)).
		Int("masked", calc.masked).
		Dur("elapsed", time.Since(start)).
		Msg("recalculated workbook")
	return nil
}

// RecalculateCopy deep-copies wb and recomputes the copy. wb is never
// modified, also not when the pass fails.
func (e *Engine) RecalculateCopy(wb *Workbook) (*Workbook, error) {
	if wb == nil {
		return nil, NewApplicationError(InvalidArgument, "Workbook is nil")
	}
	next, err := wb.Clone()
	if err != nil {
		return nil, err
	}
	if err := e.Recalculate(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Dependencies returns which cell read which during the last pass
func (e *Engine) Dependencies() *DependencyGraph {
	return e.dependencies
}

// Functions returns the registry the engine resolves function names against
func (e *Engine) Functions() *FunctionRegistry {
	return e.functions
}

// Recalculate recomputes wb in place with a default engine
func Recalculate(wb *Workbook) error {
	return NewEngine().Recalculate(wb)
}

// RecalculateCopy recomputes a deep copy of wb with a default engine
func RecalculateCopy(wb *Workbook) (*Workbook, error) {
	return NewEngine().RecalculateCopy(wb)
}

// evaluate computes one formula task and stores the result into its cell.
// the task is Done afterwards, whether it succeeded or not.
func (c *calculation) evaluate(task *FormulaTask) error {
	task.Status = TaskWorking
	c.stack.push(task.Key)
	defer func() {
		c.stack.pop()
		task.Status = TaskDone
	}()

	sheet, exists := c.workbook.Sheet(task.Sheet)
	if !exists {
		return NewApplicationError(Internal, fmt.Sprintf("Sheet %s of task %s vanished", task.Sheet, task.Key))
	}
	cell, exists := sheet.Cell(task.Address)
	if !exists {
		return NewApplicationError(Internal, fmt.Sprintf("Cell %s vanished", task.Key))
	}

	source := strings.TrimPrefix(cell.Formula, "=")
	c.logger.Debug().Str("cell", task.Key).Str("formula", source).Int("depth", c.stack.depth()).Msg("evaluating formula")

	value, err := c.compute(task, source)
	if err != nil {
		var miss *LookupMissError
		if errors.As(err, &miss) {
			cell.Value = lookupMissSentinel
			cell.Type = CellValueTypeError
			cell.Display = miss.Marker
			c.masked++
			c.logger.Warn().Str("cell", task.Key).Str("formula", source).Msg("lookup miss stored as error value")
			return nil
		}
		return &FormulaError{Sheet: task.Sheet, Cell: task.Address, Formula: cell.Formula, Err: err}
	}

	storeResult(cell, value)
	return nil
}

// compute lexes and folds a formula source
func (c *calculation) compute(task *FormulaTask, source string) (Primitive, error) {
	root, err := NewLexer(source, c.functions).WithLocation(task.Sheet, task.Address).Parse()
	if err != nil {
		return nil, err
	}
	return root.Eval(task)
}

// storeResult writes a computed value and its type tag into a cell
func storeResult(cell *Cell, value Primitive) {
	cell.Display = ""
	switch v := value.(type) {
	case Array:
		// a range is only meaningful as a function argument
		value = NewSpreadsheetError(ErrorCodeValue, "Range used as a value")
		cell.Display = ErrorMapper[ErrorCodeValue]
	case *SpreadsheetError:
		cell.Display = ErrorMapper[v.ErrorCode]
	}
	cell.Value = value
	cell.Type = typeOf(value)
}

// CalculationStack tracks the formula tasks currently being worked on,
// outermost first
type CalculationStack struct {
	items      []string            // stack of cells being processed
	processing map[string]struct{} // currently being processed (cycle detection)
}

// NewCalculationStack creates a new calculation stack
func NewCalculationStack() *CalculationStack {
	return &CalculationStack{
		items:      make([]string, 0),
		processing: make(map[string]struct{}),
	}
}

// push adds a cell to the stack
func (cs *CalculationStack) push(key string) {
	cs.items = append(cs.items, key)
	cs.processing[key] = struct{}{}
}

// pop removes and returns the top cell from the stack
func (cs *CalculationStack) pop() (string, bool) {
	if len(cs.items) == 0 {
		return "", false
	}
	key := cs.items[len(cs.items)-1]
	cs.items = cs.items[:len(cs.items)-1]
	delete(cs.processing, key)
	return key, true
}

// isProcessing checks if a cell is currently being processed
func (cs *CalculationStack) isProcessing(key string) bool {
	_, exists := cs.processing[key]
	return exists
}

// chain returns the cycle that re-entering key closes, starting at key's
// first entry and ending with key again
func (cs *CalculationStack) chain(key string) []string {
	if !cs.isProcessing(key) {
		return []string{key}
	}
	start := slices.Index(cs.items, key)
	cycle := slices.Clone(cs.items[start:])
	return append(cycle, key)
}

func (cs *CalculationStack) depth() int {
	return len(cs.items)
}

// RunnableWorkbook provides a chainable interface for building and
// recomputing a workbook. it tracks the first error internally.
type RunnableWorkbook struct {
	workbook *Workbook
	engine   *Engine
	err      error
	printLn  func(string)
}

// NewRunnableWorkbook creates a new RunnableWorkbook. printLn is required
// and will be used for all logging operations (Log, CheckError)
func NewRunnableWorkbook(printLn func(string)) *RunnableWorkbook {
	return &RunnableWorkbook{
		workbook: NewWorkbook(),
		engine:   NewEngine(),
		printLn:  printLn,
	}
}

// WithEngine replaces the engine used by Recalculate (chainable)
func (r *RunnableWorkbook) WithEngine(engine *Engine) *RunnableWorkbook {
	r.engine = engine
	return r
}

// AddSheet adds a new sheet (chainable)
func (r *RunnableWorkbook) AddSheet(name string) *RunnableWorkbook {
	if r.err != nil {
		return r // no-op if there's already an error
	}
	_, r.err = r.workbook.AddSheet(name)
	return r
}

// WithSheet ensures a sheet exists before continuing (chainable)
func (r *RunnableWorkbook) WithSheet(name string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	if !r.workbook.DoesSheetExist(name) {
		return r.AddSheet(name)
	}
	return r
}

// SetRef declares the used range of a sheet (chainable)
func (r *RunnableWorkbook) SetRef(sheetName, ref string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	sheet, exists := r.workbook.Sheet(sheetName)
	if !exists {
		r.err = NewApplicationError(NotFound, fmt.Sprintf("Sheet %s not found", sheetName))
		return r
	}
	sheet.Ref = ref
	return r
}

// Set sets a cell value or formula (chainable)
func (r *RunnableWorkbook) Set(address string, value Primitive) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.Set(address, value)
	return r
}

// SetBatch sets multiple cells at once (chainable). cells are set in
// address order.
func (r *RunnableWorkbook) SetBatch(cells map[string]Primitive) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	addresses := make([]string, 0, len(cells))
	for address := range cells {
		addresses = append(addresses, address)
	}
	slices.Sort(addresses)
	for _, address := range addresses {
		if r.err = r.workbook.Set(address, cells[address]); r.err != nil {
			return r
		}
	}
	return r
}

// Recalculate recomputes all formulas in place (chainable)
func (r *RunnableWorkbook) Recalculate() *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.engine.Recalculate(r.workbook)
	return r
}

// Run executes a final recomputation and returns the workbook and any error.
// typically the last method in the chain
func (r *RunnableWorkbook) Run() (*Workbook, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.err = r.engine.Recalculate(r.workbook); r.err != nil {
		return nil, r.err
	}
	return r.workbook, nil
}

// RunOrPanic executes a final recomputation and panics if there's an
// error. useful for examples and tests where you want to fail fast
func (r *RunnableWorkbook) RunOrPanic() *Workbook {
	wb, err := r.Run()
	if err != nil {
		panic(err)
	}
	return wb
}

// Error returns the current error state
func (r *RunnableWorkbook) Error() error {
	return r.err
}

// CheckError logs the current error using the PrintLn function (chainable)
func (r *RunnableWorkbook) CheckError() *RunnableWorkbook {
	if r.err != nil {
		r.printLn(fmt.Sprintf("ERROR: %v", r.err))
	} else {
		r.printLn("No errors")
	}
	return r
}

// Workbook returns the underlying workbook. use with caution as it
// bypasses error tracking.
func (r *RunnableWorkbook) Workbook() *Workbook {
	return r.workbook
}

// Reset clears the error state (chainable)
func (r *RunnableWorkbook) Reset() *RunnableWorkbook {
	r.err = nil
	return r
}

// Then allows conditional execution based on current error state
func (r *RunnableWorkbook) Then(fn func(*RunnableWorkbook) *RunnableWorkbook) *RunnableWorkbook {
	if r.err != nil {
		return r // skip if there's an error
	}
	return fn(r)
}

// OnError allows error handling in the chain
func (r *RunnableWorkbook) OnError(fn func(error) error) *RunnableWorkbook {
	if r.err != nil {
		r.err = fn(r.err)
	}
	return r
}

// Must panics if there's an error (chainable). useful for ensuring
// critical operations succeed
func (r *RunnableWorkbook) Must() *RunnableWorkbook {
	if r.err != nil {
		panic(r.err)
	}
	return r
}

// Value is a helper to get a single value from the chain.
// example: val := NewRunnableWorkbook(log).AddSheet("S").Set("S!A1", 10).Set("S!A2", "=A1*2").Recalculate().Value("S!A2")
func (r *RunnableWorkbook) Value(address string) Primitive {
	if r.err != nil {
		return nil
	}
	value, err := r.workbook.Get(address)
	if err != nil {
		r.err = err
		return nil
	}
	return value
}

// Values is a helper to get multiple values from the chain
func (r *RunnableWorkbook) Values(addresses ...string) []Primitive {
	values := make([]Primitive, len(addresses))
	for i, address := range addresses {
		values[i] = r.Value(address)
	}
	return values
}

// Log logs the value of a cell using the provided PrintLn function (chainable)
func (r *RunnableWorkbook) Log(address string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	value, err := r.workbook.Get(address)
	if err != nil {
		r.printLn(fmt.Sprintf("%s: ERROR: %v", address, err))
		return r
	}
	r.printLn(fmt.Sprintf("%s: %v", address, toString(value)))
	return r
}
