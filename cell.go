package recalc

import "iter"

// Primitive represents basic spreadsheet value types.
// types:
//   - float64: numeric values (integers are converted to float64)
//   - string: text values
//   - bool: boolean values, produced by comparisons
//   - nil: empty/null cells
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
//   - Array: a resolved range, only ever seen as a function argument
type Primitive any

// Array is a rectangular block of resolved cell values, row by row. Cells
// without a stored entry are nil.
type Array [][]Primitive

// IterateValues yields every value of the array, row by row
func (a Array) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, row := range a {
			for _, value := range row {
				if !yield(value) {
					return
				}
			}
		}
	}
}

// Column returns the values of one zero-based column. rows too short to
// have it are skipped.
func (a Array) Column(index int) []Primitive {
	column := make([]Primitive, 0, len(a))
	for _, row := range a {
		if index < len(row) {
			column = append(column, row[index])
		}
	}
	return column
}

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA    ErrorCode = 7 // #N/A - value not available
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
}

// SpreadsheetError is an error *value*: it is stored in a cell and flows
// through formulas like any other primitive. it never aborts a pass.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// CellType represents numeric constants for cell value
// types (external API)
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeString  CellType = 2
	CellValueTypeDate    CellType = 3
	CellValueTypeBoolean CellType = 4
	CellValueTypeError   CellType = 5
)

func (t CellType) String() string {
	switch t {
	case CellValueTypeNumber:
		return "number"
	case CellValueTypeString:
		return "string"
	case CellValueTypeDate:
		return "date"
	case CellValueTypeBoolean:
		return "boolean"
	case CellValueTypeError:
		return "error"
	default:
		return "empty"
	}
}

// Cell is one addressed slot of a sheet. for formula cells, Value is only
// authoritative once the cell has been evaluated in the current pass.
type Cell struct {
	Value   Primitive // literal or last computed value
	Type    CellType  // tag for Value
	Formula string    // raw formula source, with or without the leading '='
	Display string    // display text for error cells
}

// NewValueCell creates a literal cell, tagging the value's type
func NewValueCell(value Primitive) *Cell {
	return &Cell{Value: value, Type: typeOf(value)}
}

// HasFormula reports whether the cell carries a formula
func (c *Cell) HasFormula() bool {
	return c != nil && c.Formula != ""
}

// typeOf maps a primitive to the cell type tag it is stored with
func typeOf(value Primitive) CellType {
	switch value.(type) {
	case float64, int, int64:
		return CellValueTypeNumber
	case string:
		return CellValueTypeString
	case bool:
		return CellValueTypeBoolean
	case *SpreadsheetError:
		return CellValueTypeError
	default:
		return CellValueTypeEmpty
	}
}
