package recalc

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Node is an evaluatable piece of a formula. nodes hold lookup keys (sheet
// names and address strings), never pointers into the workbook.
type Node interface {
	Eval(task *FormulaTask) (Primitive, error)
	ToString() string
}

// Literal is an already-known value: a number, a string literal, or the
// result of a folded operation
type Literal struct {
	Value Primitive
}

func (n *Literal) Eval(task *FormulaTask) (Primitive, error) {
	return n.Value, nil
}

func (n *Literal) ToString() string {
	switch v := n.Value.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return ""
	default:
		return toString(v)
	}
}

// Bareword is operand text that is neither a number nor a reference. it
// evaluates to its own text.
type Bareword struct {
	Text string
}

func (n *Bareword) Eval(task *FormulaTask) (Primitive, error) {
	return n.Text, nil
}

func (n *Bareword) ToString() string {
	return strings.TrimSpace(n.Text)
}

// CellRef references a single cell, optionally on another sheet
type CellRef struct {
	Ref string
}

func (n *CellRef) Eval(task *FormulaTask) (Primitive, error) {
	sheetName, local := SplitQualified(n.Ref, task.Sheet)
	return task.calc.resolveCell(task, sheetName, local)
}

func (n *CellRef) ToString() string {
	return n.Ref
}

// FunctionCall applies a registered function to its evaluated arguments.
// every argument is evaluated before the call, including both branches of IF.
type FunctionCall struct {
	Name string
	Fn   Function
	Args []Node
}

func (n *FunctionCall) Eval(task *FormulaTask) (Primitive, error) {
	args := make([]Primitive, 0, len(n.Args))
	for _, argNode := range n.Args {
		arg, err := argNode.Eval(task)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	result, err := n.Fn(args...)
	if err != nil {
		// error values flow on as values, anything else aborts the pass
		var spreadsheetErr *SpreadsheetError
		if errors.As(err, &spreadsheetErr) {
			return spreadsheetErr, nil
		}
		return nil, err
	}
	return normalizeValue(result), nil
}

func (n *FunctionCall) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// exprTerm is one operand (node set) or operator (node nil) of an Expression
type exprTerm struct {
	op   Operator
	node Node
}

// Expression is a flat sequence of operands and operators, folded one
// operator at a time in a fixed order when evaluated
type Expression struct {
	terms   []exprTerm
	grouped bool // written in parentheses
}

// push classifies buffered operand text and appends it
func (e *Expression) push(text string) {
	if node, ok := classifyOperand(text); ok {
		e.pushNode(node)
	}
}

func (e *Expression) pushNode(node Node) {
	e.terms = append(e.terms, exprTerm{node: node})
}

// pushOperator appends an operator, fusing "<" or ">" followed by "=" and
// "<" followed by ">" into a single comparison
func (e *Expression) pushOperator(op Operator) {
	if n := len(e.terms); n > 0 && e.terms[n-1].node == nil {
		last := e.terms[n-1].op
		if (op == OpEqual && (last == OpLess || last == OpGreater)) || (last == OpLess && op == OpGreater) {
			e.terms[n-1].op = last + op
			return
		}
	}
	e.terms = append(e.terms, exprTerm{op: op})
}

// Len returns the number of operands and operators
func (e *Expression) Len() int {
	return len(e.terms)
}

// Walk calls fn for every node of the expression tree, depth first
func (e *Expression) Walk(fn func(Node)) {
	for _, term := range e.terms {
		if term.node == nil {
			continue
		}
		walkNode(term.node, fn)
	}
}

func walkNode(node Node, fn func(Node)) {
	fn(node)
	switch n := node.(type) {
	case *Expression:
		n.Walk(fn)
	case *FunctionCall:
		for _, arg := range n.Args {
			walkNode(arg, fn)
		}
	}
}

func (e *Expression) ToString() string {
	var sb strings.Builder
	for _, term := range e.terms {
		if term.node == nil {
			sb.WriteString(string(term.op))
		} else {
			sb.WriteString(term.node.ToString())
		}
	}
	if e.grouped {
		return "(" + sb.String() + ")"
	}
	return sb.String()
}

// foldPass reduces every occurrence of one binary operator
type foldPass struct {
	op    Operator
	apply func(left, right Primitive) Primitive
}

// foldPasses run after unary minus, in exactly this order. this is not
// algebraic precedence: "+" folds before "&", so 1+2&3 is "33".
var foldPasses = []foldPass{
	{OpPower, arithmetic(math.Pow)},
	{OpMultiply, arithmetic(func(a, b float64) float64 { return a * b })},
	{OpDivide, arithmetic(func(a, b float64) float64 { return a / b })},
	{OpAdd, arithmetic(func(a, b float64) float64 { return a + b })},
	{OpConcat, concat},
	{OpLess, ordered(func(c int) bool { return c < 0 })},
	{OpGreater, ordered(func(c int) bool { return c > 0 })},
	{OpGreaterEqual, ordered(func(c int) bool { return c >= 0 })},
	{OpLessEqual, ordered(func(c int) bool { return c <= 0 })},
	{OpNotEqual, func(left, right Primitive) Primitive { return withErrors(left, right, !strictEqual(left, right)) }},
	{OpEqual, func(left, right Primitive) Primitive { return withErrors(left, right, strictEqual(left, right)) }},
}

func (e *Expression) Eval(task *FormulaTask) (Primitive, error) {
	terms := slices.Clone(e.terms)

	terms, err := foldUnaryMinus(task, terms)
	if err != nil {
		return nil, err
	}
	for _, pass := range foldPasses {
		terms, err = foldBinary(task, terms, pass)
		if err != nil {
			return nil, err
		}
	}

	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		if terms[0].node == nil {
			return nil, newSyntaxError(task, fmt.Sprintf("operator %s without operands", terms[0].op))
		}
		return terms[0].node.Eval(task)
	default:
		return nil, newSyntaxError(task, fmt.Sprintf("unexpected operand in %s", e.ToString()))
	}
}

// foldUnaryMinus scans right to left. a '-' that follows an operand turns
// into '+' of the negated right operand; any other '-' is replaced by the
// negated operand. -2^2 therefore folds to (-2)^2 = 4.
func foldUnaryMinus(task *FormulaTask, terms []exprTerm) ([]exprTerm, error) {
	for i := len(terms) - 1; i >= 0; i-- {
		if terms[i].node != nil || terms[i].op != OpMinus {
			continue
		}
		if i+1 >= len(terms) || terms[i+1].node == nil {
			return nil, newSyntaxError(task, "operator - is missing an operand")
		}
		value, err := terms[i+1].node.Eval(task)
		if err != nil {
			return nil, err
		}
		negated := &Literal{Value: negate(value)}
		if i > 0 && terms[i-1].node != nil {
			terms[i] = exprTerm{op: OpAdd}
			terms[i+1] = exprTerm{node: negated}
		} else {
			terms = slices.Replace(terms, i, i+2, exprTerm{node: negated})
		}
	}
	return terms, nil
}

// foldBinary replaces every (left, op, right) triple with a literal of the
// result, left to right
func foldBinary(task *FormulaTask, terms []exprTerm, pass foldPass) ([]exprTerm, error) {
	for i := 0; i < len(terms); {
		if terms[i].node != nil || terms[i].op != pass.op {
			i++
			continue
		}
		if i == 0 || i+1 >= len(terms) || terms[i-1].node == nil || terms[i+1].node == nil {
			return nil, newSyntaxError(task, fmt.Sprintf("operator %s is missing an operand", pass.op))
		}
		left, err := terms[i-1].node.Eval(task)
		if err != nil {
			return nil, err
		}
		right, err := terms[i+1].node.Eval(task)
		if err != nil {
			return nil, err
		}
		folded := exprTerm{node: &Literal{Value: pass.apply(left, right)}}
		// the result lands at i-1, so i now points past the right operand
		terms = slices.Replace(terms, i-1, i+2, folded)
	}
	return terms, nil
}

func newSyntaxError(task *FormulaTask, message string) *SyntaxError {
	if task == nil {
		return &SyntaxError{Message: message}
	}
	return &SyntaxError{Sheet: task.Sheet, Cell: task.Address, Message: message}
}

// arithmetic lifts a float operation to primitives: error values propagate,
// everything else is coerced to a number
func arithmetic(fn func(a, b float64) float64) func(left, right Primitive) Primitive {
	return func(left, right Primitive) Primitive {
		if err := firstError(left, right); err != nil {
			return err
		}
		return fn(coerceNumber(left), coerceNumber(right))
	}
}

func concat(left, right Primitive) Primitive {
	if err := firstError(left, right); err != nil {
		return err
	}
	return toString(left) + toString(right)
}

// ordered compares two strings lexicographically and anything else
// numerically. a comparison involving NaN is false.
func ordered(fn func(c int) bool) func(left, right Primitive) Primitive {
	return func(left, right Primitive) Primitive {
		if err := firstError(left, right); err != nil {
			return err
		}
		leftStr, leftIsStr := left.(string)
		rightStr, rightIsStr := right.(string)
		if leftIsStr && rightIsStr {
			return fn(strings.Compare(leftStr, rightStr))
		}
		a, b := coerceNumber(left), coerceNumber(right)
		switch {
		case math.IsNaN(a) || math.IsNaN(b):
			return false
		case a < b:
			return fn(-1)
		case a > b:
			return fn(1)
		default:
			return fn(0)
		}
	}
}

func withErrors(left, right Primitive, result bool) Primitive {
	if err := firstError(left, right); err != nil {
		return err
	}
	return result
}

// strictEqual compares type and value, no coercion
func strictEqual(left, right Primitive) bool {
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case *SpreadsheetError:
		r, ok := right.(*SpreadsheetError)
		return ok && l == r
	case nil:
		return right == nil
	default:
		return false
	}
}

func negate(value Primitive) Primitive {
	if err := checkForError(value); err != nil {
		return err
	}
	return -coerceNumber(value)
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

func firstError(values ...Primitive) *SpreadsheetError {
	for _, value := range values {
		if err := checkForError(value); err != nil {
			return err
		}
	}
	return nil
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// coerceNumber converts like an operator does: empty text is 0, a single
// cell range is its value, anything unconvertible is NaN
func coerceNumber(value Primitive) float64 {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return 0
		}
	case Array:
		if len(v) == 1 && len(v[0]) == 1 {
			return coerceNumber(v[0][0])
		}
		return math.NaN()
	}
	if num, ok := toNumber(value); ok {
		return num
	}
	return math.NaN()
}

// toString converts value to string
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(value)
	}
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// normalizeValue maps the values user functions may return onto primitives
func normalizeValue(value any) Primitive {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case [][]Primitive:
		return Array(v)
	case []any:
		row := make([]Primitive, len(v))
		for i, item := range v {
			row[i] = normalizeValue(item)
		}
		return Array{row}
	default:
		return v
	}
}
