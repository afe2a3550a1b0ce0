package recalc

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	irrTolerance     = 0.000001
	irrMaxIterations = 100000
)

// BuiltInFunctions contains the engine-native formula functions
type BuiltInFunctions struct{}

// NewBuiltInFunctions creates the built-in function set
func NewBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{}
}

// Collection returns the built-ins keyed by formula name. the "_xlfn."
// aliases are the names newer functions are stored under in files.
func (bf *BuiltInFunctions) Collection() Collection {
	return Collection{
		"FLOOR":        bf.FLOOR,
		"FLOOR.MATH":   math.Floor,
		"ABS":          bf.ABS,
		"SQRT":         bf.SQRT,
		"VLOOKUP":      bf.VLOOKUP,
		"MAX":          bf.MAX,
		"SUM":          bf.SUM,
		"MIN":          bf.MIN,
		"CONCATENATE":  bf.CONCATENATE,
		"IF":           bf.IF,
		"PMT":          bf.PMT,
		"COUNTA":       bf.COUNTA,
		"COUNT":        bf.COUNT,
		"IRR":          bf.IRR,
		"NORM.INV":     bf.NORMINV,
		"STDEV":        bf.STDEV,
		"AVERAGE":      bf.AVERAGE,
		"MEDIAN":       bf.MEDIAN,
		"EXP":          math.Exp,
		"LN":           math.Log,
		"VAR.P":        bf.VARP,
		"COVARIANCE.P": bf.COVARIANCEP,
		"TRIM":         bf.TRIM,
		"LEN":          bf.LEN,
		"UPPER":        bf.UPPER,
		"LOWER":        bf.LOWER,
		"ROUND":        bf.ROUND,
		"CEILING":      bf.CEILING,
		"POWER":        bf.POWER,
		"MOD":          bf.MOD,
		"PI":           bf.PI,
		"AND":          bf.AND,
		"OR":           bf.OR,
		"NOT":          bf.NOT,
		"_xlfn": Collection{
			"NORM.INV":     bf.NORMINV,
			"VAR.P":        bf.VARP,
			"COVARIANCE.P": bf.COVARIANCEP,
		},
	}
}

// numbers flattens scalars and arrays into their numeric values. error
// values propagate, anything that does not convert to a number is skipped.
func numbers(args []Primitive) ([]float64, *SpreadsheetError) {
	values := []float64{}
	add := func(value Primitive) *SpreadsheetError {
		if err := checkForError(value); err != nil {
			return err
		}
		if value == nil {
			return nil
		}
		if num, ok := toNumber(value); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
		return nil
	}

	for _, arg := range args {
		if arr, ok := arg.(Array); ok {
			for value := range arr.IterateValues() {
				if err := add(value); err != nil {
					return nil, err
				}
			}
		} else if err := add(arg); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	return sum(values) / float64(len(values))
}

func (bf *BuiltInFunctions) SUM(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	return sum(values), nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return mean(values), nil
}

func (bf *BuiltInFunctions) COUNT(args ...Primitive) (Primitive, error) {
	count := 0
	for _, arg := range args {
		// direct args that are errors should propagate
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if arr, ok := arg.(Array); ok {
			for value := range arr.IterateValues() {
				// COUNT only counts numeric values
				if _, isNum := value.(float64); isNum {
					count++
				}
			}
		} else if _, isNum := arg.(float64); isNum {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTA(args ...Primitive) (Primitive, error) {
	count := 0

	// COUNTA counts all non-empty values regardless of type. errors inside
	// a range are counted, not propagated.
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if arr, ok := arg.(Array); ok {
			for value := range arr.IterateValues() {
				if value != nil {
					count++
				}
			}
		} else if arg != nil {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) MAX(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return slices.Max(values), nil
}

func (bf *BuiltInFunctions) MIN(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return slices.Min(values), nil
}

func (bf *BuiltInFunctions) MEDIAN(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}

	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		// even count: average of two middle values
		return (values[mid-1] + values[mid]) / 2, nil
	}
	return values[mid], nil
}

// STDEV is the sample standard deviation
func (bf *BuiltInFunctions) STDEV(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "STDEV requires at least 2 numeric values")
	}
	m := mean(values)
	squares := 0.0
	for _, v := range values {
		squares += (v - m) * (v - m)
	}
	return math.Sqrt(squares / float64(len(values)-1)), nil
}

// VARP is the population variance (VAR.P)
func (bf *BuiltInFunctions) VARP(args ...Primitive) (Primitive, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "VAR.P has no numeric values")
	}
	m := mean(values)
	squares := 0.0
	for _, v := range values {
		squares += math.Pow(v-m, 2)
	}
	return squares / float64(len(values)), nil
}

// COVARIANCEP is the population covariance of two equally sized sets
// (COVARIANCE.P)
func (bf *BuiltInFunctions) COVARIANCEP(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "COVARIANCE.P requires exactly 2 arguments")
	}
	a, err := numbers(args[:1])
	if err != nil {
		return nil, err
	}
	b, err := numbers(args[1:])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) || len(a) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "COVARIANCE.P requires sets of equal size")
	}

	meanA, meanB := mean(a), mean(b)
	s := 0.0
	for i := range a {
		s += (a[i] - meanA) * (b[i] - meanB)
	}
	return s / float64(len(a)), nil
}

// VLOOKUP scans the rows of a table for an exact match of key in the first
// column and returns the value in the 1-based column of that row
func (bf *BuiltInFunctions) VLOOKUP(args ...Primitive) (Primitive, error) {
	if len(args) < 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VLOOKUP requires at least 3 arguments")
	}
	if err := firstError(args[0], args[2]); err != nil {
		return nil, err
	}
	table, ok := args[1].(Array)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VLOOKUP requires a range as its table")
	}
	column, ok := toNumber(args[2])
	if !ok || column < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VLOOKUP requires a positive column index")
	}

	index := int(column) - 1
	for _, row := range table {
		if len(row) == 0 || !strictEqual(row[0], args[0]) {
			continue
		}
		if index >= len(row) {
			return nil, NewSpreadsheetError(ErrorCodeRef, "VLOOKUP column index is outside the table")
		}
		return row[index], nil
	}
	return nil, NewLookupMissError()
}

func (bf *BuiltInFunctions) IF(args ...Primitive) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}

	// check for errors in condition before evaluating
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}

	if isTruthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (bf *BuiltInFunctions) AND(args ...Primitive) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...Primitive) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func (bf *BuiltInFunctions) NOT(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

// PMT is the payment per period of a loan: PMT(rate, nper, pv, [fv], [type])
func (bf *BuiltInFunctions) PMT(args ...Primitive) (Primitive, error) {
	if len(args) < 3 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PMT requires 3 to 5 arguments")
	}
	if err := firstError(args...); err != nil {
		return nil, err
	}
	rate := coerceNumber(args[0])
	periods := coerceNumber(args[1])
	present := coerceNumber(args[2])
	future := coerceNumber(argAt(args, 3))
	dueAtStart := coerceNumber(argAt(args, 4))

	switch {
	case rate != 0:
		q := math.Pow(1+rate, periods)
		return -(rate * (future + q*present)) / ((q - 1) * (1 + rate*dueAtStart)), nil
	case periods != 0:
		return -(future + present) / periods, nil
	default:
		return 0.0, nil
	}
}

// IRR finds the internal rate of return of the cash flows in the first
// column of a range by bisection. it gives up after irrMaxIterations and
// returns its best estimate.
func (bf *BuiltInFunctions) IRR(args ...Primitive) (Primitive, error) {
	if len(args) < 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IRR requires a range of cash flows")
	}
	flows, ok := args[0].(Array)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "IRR requires a range of cash flows")
	}
	values := flows.Column(0)
	if err := firstError(values...); err != nil {
		return nil, err
	}

	low, high := -2.0, 1.0
	var guess, npv float64
	for n := 0; n < irrMaxIterations; n++ {
		guess = (low + high) / 2
		npv = 0
		for i, value := range values {
			npv += coerceNumber(value) / math.Pow(1+guess, float64(i))
		}
		if npv > 0 {
			if low == high {
				high += math.Abs(guess)
			}
			low = guess
		} else {
			high = guess
		}
		if math.Abs(npv) <= irrTolerance {
			break
		}
	}
	return guess, nil
}

// NORMINV is the inverse of the normal cumulative distribution
// (NORM.INV(p, mu, sigma)), using Wichura's AS 241 rational approximations
func (bf *BuiltInFunctions) NORMINV(args ...Primitive) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NORM.INV requires exactly 3 arguments")
	}
	if err := firstError(args...); err != nil {
		return nil, err
	}
	p, mu, sigma := coerceNumber(args[0]), coerceNumber(args[1]), coerceNumber(args[2])

	if p < 0 || p > 1 {
		return nil, &DomainError{Function: "NORM.INV", Message: "the probability p must be between 0 and 1"}
	}
	if sigma < 0 {
		return nil, &DomainError{Function: "NORM.INV", Message: "the standard deviation sigma must be positive"}
	}
	switch {
	case p == 0:
		return math.Inf(-1), nil
	case p == 1:
		return math.Inf(1), nil
	case sigma == 0:
		return mu, nil
	}
	return mu + sigma*normalQuantile(p), nil
}

// normalQuantile returns z with P(Z <= z) = p for 0 < p < 1
func normalQuantile(p float64) float64 {
	q := p - 0.5
	if math.Abs(q) <= 0.425 {
		r := 0.180625 - q*q
		return q * (((((((r*2509.0809287301226727+
			33430.575583588128105)*r+67265.770927008700853)*r+
			45921.953931549871457)*r+13731.693765509461125)*r+
			1971.5909503065514427)*r+133.14166789178437745)*r +
			3.387132872796366608) / (((((((r*5226.495278852854561+
			28729.085735721942674)*r+39307.89580009271061)*r+
			21213.794301586595867)*r+5394.1960214247511077)*r+
			687.1870074920579083)*r+42.313330701600911252)*r + 1)
	}

	r := p
	if q > 0 {
		r = 1 - p
	}
	r = math.Sqrt(-math.Log(r))

	var val float64
	if r <= 5 {
		r -= 1.6
		val = (((((((r*7.7454501427834140764e-4+
			0.0227238449892691845833)*r+0.24178072517745061177)*
			r+1.27045825245236838258)*r+
			3.64784832476320460504)*r+5.7694972214606914055)*
			r+4.6303378461565452959)*r +
			1.42343711074968357734) / (((((((r*
			1.05075007164441684324e-9+5.475938084995344946e-4)*
			r+0.0151986665636164571966)*r+
			0.14810397642748007459)*r+0.68976733498510000455)*
			r+1.6763848301838038494)*r+
			2.05319162663775882187)*r + 1)
	} else {
		r -= 5
		val = (((((((r*2.01033439929228813265e-7+
			2.71155556874348757815e-5)*r+
			0.0012426609473880784386)*r+0.026532189526576123093)*
			r+0.29656057182850489123)*r+
			1.7848265399172913358)*r+5.4637849111641143699)*
			r + 6.6579046435011037772) / (((((((r*
			2.04426310338993978564e-15+1.4215117583164458887e-7)*
			r+1.8463183175100546818e-5)*r+
			7.868691311456132591e-4)*r+0.0148753612908506148525)*r+0.13692988092273580531)*r+
			0.59983220655588793769)*r + 1)
	}
	if q < 0 {
		return -val
	}
	return val
}

func (bf *BuiltInFunctions) CONCATENATE(args ...Primitive) (Primitive, error) {
	var result strings.Builder
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		result.WriteString(toString(arg))
	}
	return result.String(), nil
}

func (bf *BuiltInFunctions) LEN(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(utf8.RuneCountInString(toString(args[0]))), nil
}

func (bf *BuiltInFunctions) UPPER(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "UPPER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToUpper(toString(args[0])), nil
}

func (bf *BuiltInFunctions) LOWER(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOWER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToLower(toString(args[0])), nil
}

func (bf *BuiltInFunctions) TRIM(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TRIM requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.TrimSpace(toString(args[0])), nil
}

func (bf *BuiltInFunctions) ABS(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ABS requires a numeric argument")
	}
	return math.Abs(num), nil
}

func (bf *BuiltInFunctions) ROUND(args ...Primitive) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}
	if err := firstError(args...); err != nil {
		return nil, err
	}

	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric first argument")
	}

	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric second argument")
		}
	}

	multiplier := math.Pow(10, places)
	return math.Round(num*multiplier) / multiplier, nil
}

// FLOOR rounds down. a second (significance) argument is ignored.
func (bf *BuiltInFunctions) FLOOR(args ...Primitive) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FLOOR requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FLOOR requires a numeric argument")
	}
	return math.Floor(num), nil
}

func (bf *BuiltInFunctions) CEILING(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CEILING requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CEILING requires a numeric argument")
	}
	return math.Ceil(num), nil
}

func (bf *BuiltInFunctions) SQRT(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SQRT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SQRT requires a numeric argument")
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func (bf *BuiltInFunctions) POWER(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	if err := firstError(args...); err != nil {
		return nil, err
	}
	base, ok1 := toNumber(args[0])
	exp, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "POWER requires numeric arguments")
	}
	return math.Pow(base, exp), nil
}

func (bf *BuiltInFunctions) MOD(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	if err := firstError(args...); err != nil {
		return nil, err
	}
	dividend, ok1 := toNumber(args[0])
	divisor, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return math.Mod(dividend, divisor), nil
}

func (bf *BuiltInFunctions) PI(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}
