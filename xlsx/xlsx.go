// Package xlsx loads .xlsx workbooks into recalc workbooks and writes
// recomputed values back, using excelize.
package xlsx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/recalc"
)

// Open reads the workbook at path
func Open(path string) (*recalc.Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read converts every sheet of f into a recalc sheet. each sheet's
// dimension becomes its Ref; cells carrying a formula keep the formula
// (prefixed with '=') and their cached value.
func Read(f *excelize.File) (*recalc.Workbook, error) {
	wb := recalc.NewWorkbook()
	for _, name := range f.GetSheetList() {
		sheet, err := wb.AddSheet(name)
		if err != nil {
			return nil, err
		}
		if err := readSheet(f, name, sheet); err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
	}
	return wb, nil
}

func readSheet(f *excelize.File, name string, sheet *recalc.Sheet) error {
	dimension, err := f.GetSheetDimension(name)
	if err != nil {
		return err
	}
	sheet.Ref = dimension

	startCol, startRow, endCol, endRow, ok := dimensionBounds(dimension)
	if !ok {
		return nil
	}
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			address, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return err
			}
			if err := readCell(f, name, address, sheet); err != nil {
				return fmt.Errorf("%s: %w", address, err)
			}
		}
	}
	return nil
}

func readCell(f *excelize.File, name, address string, sheet *recalc.Sheet) error {
	formula, err := f.GetCellFormula(name, address)
	if err != nil {
		return err
	}
	raw, err := f.GetCellValue(name, address, excelize.Options{RawCellValue: true})
	if err != nil {
		return err
	}
	cellType, err := f.GetCellType(name, address)
	if err != nil {
		return err
	}

	if formula == "" && raw == "" {
		return nil
	}
	cell := &recalc.Cell{}
	if raw != "" {
		cell.Value, cell.Type = convertValue(raw, cellType)
		if cell.Type == recalc.CellValueTypeError {
			cell.Display = raw
		}
	}
	if formula != "" {
		cell.Formula = "=" + strings.TrimPrefix(formula, "=")
	}
	sheet.Cells[address] = cell
	return nil
}

// convertValue maps a raw stored value onto a primitive and its tag. dates
// stay serial numbers.
func convertValue(raw string, cellType excelize.CellType) (recalc.Primitive, recalc.CellType) {
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE"), recalc.CellValueTypeBoolean
	case excelize.CellTypeError:
		return errorValue(raw), recalc.CellValueTypeError
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString:
		return raw, recalc.CellValueTypeString
	case excelize.CellTypeDate:
		if num, err := strconv.ParseFloat(raw, 64); err == nil {
			return num, recalc.CellValueTypeDate
		}
		return raw, recalc.CellValueTypeString
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return num, recalc.CellValueTypeNumber
	}
	return raw, recalc.CellValueTypeString
}

// errorValue maps an error display text ("#DIV/0!") back to its code
func errorValue(text string) *recalc.SpreadsheetError {
	for code, display := range recalc.ErrorMapper {
		if display == text {
			return recalc.NewSpreadsheetError(code, "")
		}
	}
	return recalc.NewSpreadsheetError(recalc.ErrorCodeOther, text)
}

// dimensionBounds parses "A1:D10" (or a single "A1") into 1-based bounds
func dimensionBounds(dimension string) (startCol, startRow, endCol, endRow int, ok bool) {
	if dimension == "" {
		return 0, 0, 0, 0, false
	}
	start, end, found := strings.Cut(dimension, ":")
	if !found {
		end = start
	}
	startCol, startRow, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return 0, 0, 0, 0, false
	}
	endCol, endRow, err = excelize.CellNameToCoordinates(end)
	if err != nil {
		return 0, 0, 0, 0, false
	}
	return startCol, startRow, endCol, endRow, true
}

// WriteValues stores the value of every formula cell of wb into f, which
// replaces the formula with its result: the written file is a values
// snapshot. sheets of wb that f does not have are skipped.
func WriteValues(f *excelize.File, wb *recalc.Workbook) (int, error) {
	written := 0
	sheets := map[string]struct{}{}
	for _, name := range f.GetSheetList() {
		sheets[name] = struct{}{}
	}

	for _, name := range wb.SheetNames {
		if _, exists := sheets[name]; !exists {
			continue
		}
		sheet := wb.Sheets[name]
		for _, address := range sheet.Addresses() {
			cell := sheet.Cells[address]
			if !cell.HasFormula() {
				continue
			}
			if err := writeCell(f, name, address, cell); err != nil {
				return written, fmt.Errorf("write %s: %w", recalc.QualifiedAddress(name, address), err)
			}
			written++
		}
	}
	return written, nil
}

func writeCell(f *excelize.File, name, address string, cell *recalc.Cell) error {
	// masked lookup misses hold a placeholder number, their display is the value
	if cell.Type == recalc.CellValueTypeError && cell.Display != "" {
		return f.SetCellValue(name, address, cell.Display)
	}
	switch v := cell.Value.(type) {
	case float64:
		return f.SetCellFloat(name, address, v, -1, 64)
	case *recalc.SpreadsheetError:
		return f.SetCellValue(name, address, recalc.ErrorMapper[v.ErrorCode])
	case nil:
		return f.SetCellValue(name, address, "")
	default:
		return f.SetCellValue(name, address, v)
	}
}

// Save writes the formula values of an already recomputed wb over the
// workbook at src and saves the result to dst
func Save(src, dst string, wb *recalc.Workbook) (int, error) {
	f, err := excelize.OpenFile(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	written, err := WriteValues(f, wb)
	if err != nil {
		return written, err
	}
	if err := f.SaveAs(dst); err != nil {
		return written, fmt.Errorf("save %s: %w", dst, err)
	}
	return written, nil
}
