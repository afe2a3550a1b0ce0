package recalc

import (
	"strconv"
	"strings"
)

// maxColumnDigits bounds IndexToColumn. 10 base-26 digits is far wider than
// any sheet, so the guard only ever trips on garbage input.
const maxColumnDigits = 10

// ColumnToIndex converts column letters to a zero-based column index
// (A=0, Z=25, AA=26, ...). a trailing row number is ignored, so "B7" also
// yields 1.
func ColumnToIndex(letters string) int {
	letters = strings.TrimRight(letters, "0123456789")
	index := 0
	for _, ch := range letters {
		index = index*26 + int(ch-'A'+1)
	}
	return index - 1
}

// IndexToColumn converts a zero-based column index back to column letters
func IndexToColumn(index int) string {
	dividend := index + 1
	var column []byte
	for guard := maxColumnDigits; dividend > 0 && guard > 0; guard-- {
		modulo := (dividend - 1) % 26
		column = append([]byte{byte('A' + modulo)}, column...)
		dividend = (dividend - modulo - 1) / 26
	}
	return string(column)
}

// SplitAddress splits a local cell address like "AB12" into its column
// letters and row digits. either part may be empty ("A" in "A:A").
func SplitAddress(address string) (letters string, row string) {
	end := 0
	for end < len(address) && isUpperAlpha(address[end]) {
		end++
	}
	return address[:end], address[end:]
}

// ParseRow returns the one-based row number of an address, ok=false when
// the address has no row part
func ParseRow(address string) (int, bool) {
	_, rowStr := SplitAddress(address)
	if rowStr == "" {
		return 0, false
	}
	row, err := strconv.Atoi(rowStr)
	if err != nil {
		return 0, false
	}
	return row, true
}

// QualifiedAddress joins a sheet name and a local address into the
// "Sheet!A1" form used to key formula tasks
func QualifiedAddress(sheet, address string) string {
	return sheet + "!" + address
}

// SplitQualified splits "Sheet!A1" into its sheet and local parts. an
// unqualified reference belongs to defaultSheet.
func SplitQualified(ref, defaultSheet string) (sheet string, local string) {
	if i := strings.LastIndexByte(ref, '!'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return defaultSheet, ref
}

// unquoteSheetName strips the single quotes from a 'Sheet Name' reference
func unquoteSheetName(name string) (string, bool) {
	if len(name) >= 2 && name[0] == charApostrophe && name[len(name)-1] == charApostrophe {
		return name[1 : len(name)-1], true
	}
	return name, false
}

// isCellAddress checks for a local address with letters followed by
// digits (A1, XFD1048576)
func isCellAddress(s string) bool {
	letters, row := SplitAddress(s)
	return letters != "" && row != "" && isDigits(row)
}

// isColumnAddress checks for bare column letters (the halves of A:A)
func isColumnAddress(s string) bool {
	letters, row := SplitAddress(s)
	return letters != "" && row == ""
}

func isUpperAlpha(ch byte) bool {
	return ch >= 'A' && ch <= 'Z'
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compareAddresses orders local addresses row-major (A1, B1, A2, ...)
func compareAddresses(a, b string) int {
	rowA, okA := ParseRow(a)
	rowB, okB := ParseRow(b)
	if okA != okB {
		if okA {
			return -1
		}
		return 1
	}
	if rowA != rowB {
		if rowA < rowB {
			return -1
		}
		return 1
	}
	colA, colB := ColumnToIndex(a), ColumnToIndex(b)
	if colA != colB {
		if colA < colB {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
