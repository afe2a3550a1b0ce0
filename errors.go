package recalc

import (
	"fmt"
	"strings"
)

// lookupMissMarker is the message every lookup miss carries. the scheduler
// stores it as the display text of the cell.
const lookupMissMarker = "#N/A"

// lookupMissSentinel is the value stored into a cell whose formula hit a
// lookup miss
const lookupMissSentinel = 42.0

// SyntaxError is raised while lexing or folding a formula: an unknown
// function name, unbalanced parentheses, an operator without an operand.
type SyntaxError struct {
	Sheet   string
	Cell    string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Sheet == "" && e.Cell == "" {
		return e.Message
	}
	return fmt.Sprintf("%q!%s: %s", e.Sheet, e.Cell, e.Message)
}

// ReferenceError is raised when a formula references a sheet or cell that
// does not exist
type ReferenceError struct {
	Address string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("Cell %s not found.", e.Address)
}

// CircularReferenceError is raised when a formula task is re-entered while
// it is still being worked on. Chain lists the tasks that were in progress,
// outermost first, ending with the re-entered one.
type CircularReferenceError struct {
	Address string
	Chain   []string
}

func (e *CircularReferenceError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("Circular ref at %s", e.Address)
	}
	return fmt.Sprintf("Circular ref at %s (%s)", e.Address, strings.Join(e.Chain, " -> "))
}

// LookupMissError is raised by lookup functions when no row matches. it is
// the only failure the scheduler masks into a cell value.
type LookupMissError struct {
	Marker string
}

func (e *LookupMissError) Error() string {
	return e.Marker
}

// NewLookupMissError creates the standard "#N/A" lookup miss
func NewLookupMissError() *LookupMissError {
	return &LookupMissError{Marker: lookupMissMarker}
}

// DomainError is raised by a function given an argument outside the domain
// it is defined on
type DomainError struct {
	Function string
	Message  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Function, e.Message)
}

// FormulaError annotates a failure with the formula it happened in
type FormulaError struct {
	Sheet   string
	Cell    string
	Formula string
	Err     error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("%s: evaluating %s\n%s", QualifiedAddress(e.Sheet, e.Cell), e.Formula, e.Err.Error())
}

func (e *FormulaError) Unwrap() error {
	return e.Err
}
