package recalc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// Workbook owns a set of named sheets. SheetNames keeps the order sheets
// were added (or loaded) in, which is the order formulas are discovered in.
type Workbook struct {
	SheetNames []string
	Sheets     map[string]*Sheet
}

// Sheet maps local cell addresses ("B7") to cells. Ref is the declared
// used range ("A1:D100"), consulted by open-ended ranges like A:A.
type Sheet struct {
	Cells map[string]*Cell
	Ref   string
}

// NewWorkbook creates an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{
		SheetNames: []string{},
		Sheets:     make(map[string]*Sheet),
	}
}

// NewSheet creates an empty sheet
func NewSheet() *Sheet {
	return &Sheet{Cells: make(map[string]*Cell)}
}

// AddSheet adds a new, empty sheet
func (wb *Workbook) AddSheet(name string) (*Sheet, error) {
	if name == "" || strings.ContainsRune(name, charExclaim) {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid sheet name %q", name))
	}
	if _, exists := wb.Sheets[name]; exists {
		return nil, NewApplicationError(AlreadyExists, fmt.Sprintf("Sheet %s already exists", name))
	}
	sheet := NewSheet()
	wb.Sheets[name] = sheet
	wb.SheetNames = append(wb.SheetNames, name)
	return sheet, nil
}

// Sheet returns the sheet with the given name
func (wb *Workbook) Sheet(name string) (*Sheet, bool) {
	sheet, exists := wb.Sheets[name]
	return sheet, exists
}

// DoesSheetExist checks if a sheet exists
func (wb *Workbook) DoesSheetExist(name string) bool {
	_, exists := wb.Sheets[name]
	return exists
}

// resolveSheet looks a sheet up by the name used in a formula. a quoted
// name ('Q1 Data') is unquoted when the literal name does not exist.
func (wb *Workbook) resolveSheet(name string) (string, *Sheet, bool) {
	if sheet, exists := wb.Sheets[name]; exists {
		return name, sheet, true
	}
	if unquoted, quoted := unquoteSheetName(name); quoted {
		if sheet, exists := wb.Sheets[unquoted]; exists {
			return unquoted, sheet, true
		}
	}
	return name, nil, false
}

// Cell returns the cell at a qualified address ("Sheet1!A1")
func (wb *Workbook) Cell(address string) (*Cell, error) {
	sheetName, local := SplitQualified(address, "")
	if sheetName == "" {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Address %s is not qualified with a sheet", address))
	}
	_, sheet, exists := wb.resolveSheet(sheetName)
	if !exists {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Sheet %s not found", sheetName))
	}
	cell, exists := sheet.Cell(local)
	if !exists {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Cell %s not found", address))
	}
	return cell, nil
}

// Get returns the value stored at a qualified address. a missing cell
// reads as nil.
func (wb *Workbook) Get(address string) (Primitive, error) {
	cell, err := wb.Cell(address)
	if err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == NotFound && strings.HasPrefix(appErr.Message, "Cell") {
			return nil, nil
		}
		return nil, err
	}
	return cell.Value, nil
}

// Set stores a value or formula at a qualified address
func (wb *Workbook) Set(address string, value Primitive) error {
	sheetName, local := SplitQualified(address, "")
	if sheetName == "" {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("Address %s is not qualified with a sheet", address))
	}
	sheet, exists := wb.Sheets[sheetName]
	if !exists {
		return NewApplicationError(NotFound, fmt.Sprintf("Sheet %s not found", sheetName))
	}
	return sheet.Set(local, value)
}

// Clone returns a fully independent deep copy of the workbook
func (wb *Workbook) Clone() (*Workbook, error) {
	var next Workbook
	if err := deepcopy.Copy(&next, wb); err != nil {
		return nil, fmt.Errorf("clone workbook: %w", err)
	}
	return &next, nil
}

// Set stores a value at a local address. a string starting with '=' is
// stored as a formula with no value yet.
func (s *Sheet) Set(address string, value Primitive) error {
	address = strings.ToUpper(strings.ReplaceAll(address, "$", ""))
	if !isCellAddress(address) {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %s", address))
	}
	if str, ok := value.(string); ok && strings.HasPrefix(str, "=") {
		s.Cells[address] = &Cell{Formula: str}
		return nil
	}
	switch v := value.(type) {
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case float32:
		value = float64(v)
	}
	s.Cells[address] = NewValueCell(value)
	return nil
}

// SetFormula stores a formula at a local address, keeping any previous
// value as the stale result
func (s *Sheet) SetFormula(address string, formula string) error {
	address = strings.ToUpper(strings.ReplaceAll(address, "$", ""))
	if !isCellAddress(address) {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %s", address))
	}
	cell, exists := s.Cells[address]
	if !exists {
		cell = &Cell{}
		s.Cells[address] = cell
	}
	cell.Formula = formula
	return nil
}

// Cell retrieves the cell at a local address
func (s *Sheet) Cell(address string) (*Cell, bool) {
	cell, exists := s.Cells[address]
	return cell, exists
}

// Addresses returns the sheet's cell addresses in row-major order
func (s *Sheet) Addresses() []string {
	addresses := make([]string, 0, len(s.Cells))
	for address := range s.Cells {
		addresses = append(addresses, address)
	}
	slices.SortFunc(addresses, compareAddresses)
	return addresses
}

// usedEndRow returns the last row of the declared used range
func (s *Sheet) usedEndRow() (int, bool) {
	if s.Ref == "" {
		return 0, false
	}
	parts := strings.Split(s.Ref, ":")
	return ParseRow(strings.ReplaceAll(parts[len(parts)-1], "$", ""))
}

// GetTotalCells returns the number of stored cells
func (s *Sheet) GetTotalCells() int {
	return len(s.Cells)
}
