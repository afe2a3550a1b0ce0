package recalc

import (
	"fmt"
	"strings"

	"github.com/xuri/efp"
)

// LintIssueKind classifies a problem found by Lint
type LintIssueKind uint8

const (
	LintUnknownFunction LintIssueKind = iota
	LintMissingSheet
	LintEmptyFormula
)

func (k LintIssueKind) String() string {
	switch k {
	case LintUnknownFunction:
		return "unknown function"
	case LintMissingSheet:
		return "missing sheet"
	default:
		return "empty formula"
	}
}

// LintIssue is one problem in one formula cell
type LintIssue struct {
	Cell   string // qualified address
	Kind   LintIssueKind
	Detail string
}

func (i LintIssue) String() string {
	return fmt.Sprintf("%s: %s %s", i.Cell, i.Kind, i.Detail)
}

// Lint tokenizes every formula of wb with the Excel formula grammar and
// reports the function names registry does not know and the references to
// sheets wb does not have. a pass over a workbook without issues can still
// fail, on cycles for example, but it will not fail on these.
func Lint(wb *Workbook, registry *FunctionRegistry) []LintIssue {
	if registry == nil {
		registry = DefaultRegistry
	}
	issues := []LintIssue{}
	for _, sheetName := range wb.SheetNames {
		sheet := wb.Sheets[sheetName]
		for _, address := range sheet.Addresses() {
			cell := sheet.Cells[address]
			if !cell.HasFormula() {
				continue
			}
			key := QualifiedAddress(sheetName, address)
			issues = append(issues, lintFormula(wb, registry, key, cell.Formula)...)
		}
	}
	return issues
}

func lintFormula(wb *Workbook, registry *FunctionRegistry, key, formula string) []LintIssue {
	source := strings.TrimSpace(strings.TrimPrefix(formula, "="))
	if source == "" {
		return []LintIssue{{Cell: key, Kind: LintEmptyFormula}}
	}

	var issues []LintIssue
	seen := map[string]struct{}{}
	report := func(kind LintIssueKind, detail string) {
		id := kind.String() + detail
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		issues = append(issues, LintIssue{Cell: key, Kind: kind, Detail: detail})
	}

	ps := efp.ExcelParser()
	for _, token := range ps.Parse(source) {
		switch {
		case token.TType == efp.TokenTypeFunction && token.TSubType == efp.TokenSubTypeStart:
			if _, exists := registry.Lookup(token.TValue); !exists {
				report(LintUnknownFunction, token.TValue)
			}
		case token.TType == efp.TokenTypeOperand && token.TSubType == efp.TokenSubTypeRange:
			ref := strings.ReplaceAll(token.TValue, "$", "")
			sheetName, _, ok := splitSheetRef(ref)
			if !ok || sheetName == "" {
				continue
			}
			if _, _, exists := wb.resolveSheet(sheetName); !exists {
				report(LintMissingSheet, sheetName)
			}
		}
	}
	return issues
}
