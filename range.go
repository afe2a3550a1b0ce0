package recalc

import (
	"strconv"
	"strings"
)

// defaultMaxRows bounds an open-ended range (A:A) on a sheet without a
// declared used range
const defaultMaxRows = 500000

// RangeRef references a rectangular block of cells, optionally on another
// sheet. A:A style ranges are open-ended.
type RangeRef struct {
	Ref string
}

func (n *RangeRef) Eval(task *FormulaTask) (Primitive, error) {
	sheetName, local := SplitQualified(n.Ref, task.Sheet)
	return task.calc.resolveRange(task, sheetName, local)
}

func (n *RangeRef) ToString() string {
	return n.Ref
}

// RangeAddress represents a range of cells within a single sheet. rows are
// one-based, columns zero-based.
type RangeAddress struct {
	Sheet       string
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// Rows returns the number of rows covered
func (r RangeAddress) Rows() int {
	return max(r.EndRow-r.StartRow+1, 0)
}

// Columns returns the number of columns covered
func (r RangeAddress) Columns() int {
	return max(r.EndColumn-r.StartColumn+1, 0)
}

// Contains checks if a local address lies within the range
func (r RangeAddress) Contains(address string) bool {
	row, ok := ParseRow(address)
	if !ok {
		return false
	}
	col := ColumnToIndex(address)
	return row >= r.StartRow && row <= r.EndRow && col >= r.StartColumn && col <= r.EndColumn
}

// Each yields every local address of the range, row by row
func (r RangeAddress) Each(yield func(row, col int, address string) bool) {
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartColumn; col <= r.EndColumn; col++ {
			if !yield(row, col, IndexToColumn(col)+strconv.Itoa(row)) {
				return
			}
		}
	}
}

// bounds derives the numeric bounds of a local range like "A1:B7" or "A:C".
// a missing start row is 1. a missing end row is the last row of the sheet's
// declared used range, or maxRows when none is declared.
func bounds(sheetName string, sheet *Sheet, local string, maxRows int) RangeAddress {
	start, end, _ := strings.Cut(local, string(charColon))

	startRow, ok := ParseRow(start)
	if !ok {
		startRow = 1
	}
	endRow, ok := ParseRow(end)
	if !ok {
		endRow, ok = sheet.usedEndRow()
		if !ok {
			endRow = maxRows
		}
	}

	return RangeAddress{
		Sheet:       sheetName,
		StartRow:    startRow,
		StartColumn: ColumnToIndex(start),
		EndRow:      endRow,
		EndColumn:   ColumnToIndex(end),
	}
}

// resolveRange evaluates a range to an Array. formula cells inside it are
// evaluated first when still new; cells without an entry resolve to nil.
func (c *calculation) resolveRange(from *FormulaTask, sheetName string, local string) (Primitive, error) {
	resolvedName, sheet, exists := c.workbook.resolveSheet(sheetName)
	if !exists {
		return nil, &ReferenceError{Address: QualifiedAddress(sheetName, local)}
	}

	rng := bounds(resolvedName, sheet, local, c.maxRows)
	result := make(Array, 0, rng.Rows())
	var resolveErr error
	var row []Primitive
	rng.Each(func(r, col int, address string) bool {
		if col == rng.StartColumn {
			row = make([]Primitive, 0, rng.Columns())
		}
		value, err := c.readCell(from, resolvedName, sheet, address, false)
		if err != nil {
			resolveErr = err
			return false
		}
		row = append(row, value)
		if col == rng.EndColumn {
			result = append(result, row)
		}
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return result, nil
}

// resolveCell evaluates a single cell reference
func (c *calculation) resolveCell(from *FormulaTask, sheetName string, local string) (Primitive, error) {
	resolvedName, sheet, exists := c.workbook.resolveSheet(sheetName)
	if !exists {
		return nil, &ReferenceError{Address: QualifiedAddress(sheetName, local)}
	}
	return c.readCell(from, resolvedName, sheet, local, true)
}

// readCell returns the current value of a cell, evaluating its formula first
// if its task has not started yet. re-entering a task that is still being
// worked on is a circular reference.
func (c *calculation) readCell(from *FormulaTask, sheetName string, sheet *Sheet, address string, required bool) (Primitive, error) {
	key := QualifiedAddress(sheetName, address)
	cell, exists := sheet.Cell(address)
	if !exists {
		if required {
			return nil, &ReferenceError{Address: key}
		}
		return nil, nil
	}
	c.graph.AddDependency(from.Key, key)

	if task, ok := c.formulas.Get(key); ok {
		switch task.Status {
		case TaskNew:
			if err := c.evaluate(task); err != nil {
				return nil, err
			}
		case TaskWorking:
			return nil, &CircularReferenceError{Address: key, Chain: c.stack.chain(key)}
		}
	}
	return cell.Value, nil
}
