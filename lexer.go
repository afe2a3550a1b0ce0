package recalc

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a binary (or, for '-', unary) operator inside an Expression
type Operator string

const (
	OpMinus        Operator = "-"
	OpPower        Operator = "^"
	OpMultiply     Operator = "*"
	OpDivide       Operator = "/"
	OpAdd          Operator = "+"
	OpConcat       Operator = "&"
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpNotEqual     Operator = "<>"
	OpEqual        Operator = "="
)

// character classification constants. slightly easier to read.
const (
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charDollar     = '$'
	charExclaim    = '!'
)

// operatorChars maps every single character operator to its operator.
// multi-character comparisons are fused when pushed, see Expression.pushOperator.
var operatorChars = map[rune]Operator{
	charAsterisk:  OpMultiply,
	charPlus:      OpAdd,
	charMinus:     OpMinus,
	charSlash:     OpDivide,
	charCaret:     OpPower,
	charAmpersand: OpConcat,
	charLess:      OpLess,
	charGreater:   OpGreater,
	charEqual:     OpEqual,
}

// lexContext is one open parenthesis. call is nil for plain grouping.
type lexContext struct {
	expr *Expression
	call *FunctionCall
}

// Lexer turns formula source into an Expression tree in a single scan
type Lexer struct {
	runes     []rune // UTF-8 aware representation
	functions *FunctionRegistry
	sheet     string
	cell      string

	buffer    strings.Builder
	inString  bool
	wasString bool // a string literal just closed, its (empty) buffer must not be pushed
	stack     []*lexContext
}

// NewLexer creates a lexer for a formula. a leading '=' must already be
// stripped. function names are resolved against functions while scanning.
func NewLexer(input string, functions *FunctionRegistry) *Lexer {
	return &Lexer{
		runes:     []rune(input),
		functions: functions,
	}
}

// WithLocation sets the sheet and cell used in error messages
func (l *Lexer) WithLocation(sheet, cell string) *Lexer {
	l.sheet = sheet
	l.cell = cell
	return l
}

// Parse scans the whole input and returns the root expression
func (l *Lexer) Parse() (*Expression, error) {
	root := &Expression{}
	l.stack = []*lexContext{{expr: root}}

	for _, ch := range l.runes {
		if err := l.next(ch); err != nil {
			return nil, err
		}
	}

	if l.inString {
		return nil, l.syntaxError("unclosed string literal")
	}
	if len(l.stack) > 1 {
		return nil, l.syntaxError("unbalanced parentheses: missing closing parenthesis")
	}
	root.push(l.flush())
	return root, nil
}

// next consumes a single character
func (l *Lexer) next(ch rune) error {
	top := l.stack[len(l.stack)-1]

	switch {
	case ch == charQuote:
		if l.inString {
			top.expr.pushNode(&Literal{Value: l.buffer.String()})
			l.inString = false
			l.wasString = true
		} else {
			l.inString = true
		}
		l.buffer.Reset()

	case l.inString:
		l.buffer.WriteRune(ch)

	case ch == charLParen:
		name := strings.TrimSpace(l.flush())
		context := &lexContext{expr: &Expression{grouped: true}}
		if name != "" {
			fn, exists := l.functions.Lookup(name)
			if !exists {
				return l.syntaxError(fmt.Sprintf("Function %s not found", name))
			}
			context.expr.grouped = false
			context.call = &FunctionCall{Name: name, Fn: fn}
		}
		l.stack = append(l.stack, context)

	case operatorChars[ch] != "":
		if !l.wasString {
			top.expr.push(l.flush())
		}
		l.wasString = false
		l.buffer.Reset()
		top.expr.pushOperator(operatorChars[ch])

	case ch == charComma && top.call != nil:
		l.wasString = false
		top.expr.push(l.flush())
		top.call.Args = append(top.call.Args, top.expr)
		top.expr = &Expression{}

	case ch == charRParen:
		if len(l.stack) == 1 {
			return l.syntaxError("unbalanced parentheses: too many closing parentheses")
		}
		l.wasString = false
		top.expr.push(l.flush())
		l.stack = l.stack[:len(l.stack)-1]
		parent := l.stack[len(l.stack)-1]
		if top.call == nil {
			parent.expr.pushNode(top.expr)
			break
		}
		// NAME() is a call without arguments, not a call with one empty argument
		if len(top.call.Args) > 0 || len(top.expr.terms) > 0 {
			top.call.Args = append(top.call.Args, top.expr)
		}
		parent.expr.pushNode(top.call)

	default:
		l.buffer.WriteRune(ch)
	}
	return nil
}

// flush returns and clears the buffered operand text
func (l *Lexer) flush() string {
	text := l.buffer.String()
	l.buffer.Reset()
	return text
}

func (l *Lexer) syntaxError(message string) *SyntaxError {
	return &SyntaxError{Sheet: l.sheet, Cell: l.cell, Message: message}
}

// classifyOperand turns buffered operand text into a node. ok is false for
// an empty or whitespace-only buffer, which pushes nothing.
func classifyOperand(text string) (Node, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if num, ok := parseNumber(trimmed); ok {
		return &Literal{Value: num}, true
	}

	// relative and absolute references resolve identically
	stripped := strings.ReplaceAll(trimmed, string(charDollar), "")
	if isRangeReference(stripped) {
		return &RangeRef{Ref: stripped}, true
	}
	if isCellReference(stripped) {
		return &CellRef{Ref: stripped}, true
	}

	if percent, found := strings.CutSuffix(trimmed, string(charPercent)); found {
		if num, ok := parseNumber(strings.TrimSpace(percent)); ok {
			return &Literal{Value: num / 100.0}, true
		}
	}
	return &Bareword{Text: text}, true
}

// parseNumber parses a decimal number literal. the special float words
// (Inf, NaN) that strconv also accepts are not numbers here.
func parseNumber(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "iInN") {
		return 0, false
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// splitSheetRef splits "Sheet!A1" at its first '!'. the sheet part must be
// non-empty and the local part must not contain another '!'.
func splitSheetRef(ref string) (sheet string, local string, ok bool) {
	i := strings.IndexByte(ref, charExclaim)
	if i < 0 {
		return "", ref, true
	}
	sheet, local = ref[:i], ref[i+1:]
	if sheet == "" || strings.IndexByte(local, charExclaim) >= 0 {
		return "", "", false
	}
	return sheet, local, true
}

// isRangeReference matches A1:B2, Sheet!A1:B2, A:A and Sheet!A:A
func isRangeReference(ref string) bool {
	_, local, ok := splitSheetRef(ref)
	if !ok {
		return false
	}
	start, end, found := strings.Cut(local, string(charColon))
	if !found {
		return false
	}
	return (isCellAddress(start) && isCellAddress(end)) ||
		(isColumnAddress(start) && isColumnAddress(end))
}

// isCellReference matches A1 and Sheet!A1
func isCellReference(ref string) bool {
	_, local, ok := splitSheetRef(ref)
	return ok && isCellAddress(local)
}
