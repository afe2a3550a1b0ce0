package recalc

import (
	"fmt"
	"slices"
)

// Function is a formula function. arguments arrive fully resolved: scalars,
// or Array for ranges.
type Function func(args ...Primitive) (Primitive, error)

// Collection is a bulk set of functions to import. values may be a
// Function, a plain func of one of the supported shapes, or a nested
// Collection whose entries are imported under "key." prefixed names.
type Collection map[string]any

// ImportOptions configures FunctionRegistry.Import
type ImportOptions struct {
	Prefix string
}

// FunctionRegistry maps case-sensitive function names to functions
type FunctionRegistry struct {
	functions map[string]Function
}

// NewFunctionRegistry creates an empty registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// NewDefaultFunctionRegistry creates a registry seeded with the built-in
// functions
func NewDefaultFunctionRegistry() *FunctionRegistry {
	r := NewFunctionRegistry()
	if err := r.Import(NewBuiltInFunctions().Collection(), ImportOptions{}); err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry is the registry engines use unless configured otherwise
var DefaultRegistry = NewDefaultFunctionRegistry()

// Register adds or replaces a function
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if name == "" {
		return NewApplicationError(InvalidArgument, "Function name is empty")
	}
	if fn == nil {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("Function %s is nil", name))
	}
	r.functions[name] = fn
	return nil
}

// Lookup returns the function registered under name
func (r *FunctionRegistry) Lookup(name string) (Function, bool) {
	fn, exists := r.functions[name]
	return fn, exists
}

// Call invokes a function by name
func (r *FunctionRegistry) Call(name string, args ...Primitive) (Primitive, error) {
	fn, exists := r.functions[name]
	if !exists {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("Function %s not found", name))
	}
	return fn(args...)
}

// Names returns all registered names, sorted
func (r *FunctionRegistry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clone returns an independent copy of the registry
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	next := NewFunctionRegistry()
	for name, fn := range r.functions {
		next.functions[name] = fn
	}
	return next
}

// Import registers every function of a collection under opts.Prefix. The
// entries of a nested collection under key K are named "K.<entry>": the
// nested prefix replaces opts.Prefix rather than extending it.
func (r *FunctionRegistry) Import(collection Collection, opts ImportOptions) error {
	for _, key := range sortedCollectionKeys(collection) {
		name := opts.Prefix + key
		switch v := collection[key].(type) {
		case Collection:
			if err := r.Import(v, ImportOptions{Prefix: key + "."}); err != nil {
				return err
			}
		case map[string]any:
			if err := r.Import(Collection(v), ImportOptions{Prefix: key + "."}); err != nil {
				return err
			}
		default:
			fn, ok := asFunction(v)
			if !ok {
				return NewApplicationError(InvalidArgument, fmt.Sprintf("Cannot import %s: unsupported type %T", name, v))
			}
			if err := r.Register(name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// asFunction adapts the supported plain func shapes to a Function
func asFunction(value any) (Function, bool) {
	switch fn := value.(type) {
	case Function:
		return fn, fn != nil
	case func(args ...Primitive) (Primitive, error):
		return fn, fn != nil
	case func(args ...Primitive) Primitive:
		return func(args ...Primitive) (Primitive, error) {
			return fn(args...), nil
		}, fn != nil
	case func(float64) float64:
		return unaryMath(fn), fn != nil
	case func(float64, float64) float64:
		return binaryMath(fn), fn != nil
	default:
		return nil, false
	}
}

// unaryMath lifts a float function of one argument. missing arguments are
// read as nil (0), error values propagate.
func unaryMath(fn func(float64) float64) Function {
	return func(args ...Primitive) (Primitive, error) {
		x := argAt(args, 0)
		if err := checkForError(x); err != nil {
			return nil, err
		}
		return fn(coerceNumber(x)), nil
	}
}

// binaryMath lifts a float function of two arguments
func binaryMath(fn func(float64, float64) float64) Function {
	return func(args ...Primitive) (Primitive, error) {
		x, y := argAt(args, 0), argAt(args, 1)
		if err := firstError(x, y); err != nil {
			return nil, err
		}
		return fn(coerceNumber(x), coerceNumber(y)), nil
	}
}

func argAt(args []Primitive, i int) Primitive {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func sortedCollectionKeys(collection Collection) []string {
	keys := make([]string, 0, len(collection))
	for key := range collection {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// RegisterFunction adds a function to the default registry
func RegisterFunction(name string, fn Function) error {
	return DefaultRegistry.Register(name, fn)
}

// CallFunction invokes a function of the default registry
func CallFunction(name string, args ...Primitive) (Primitive, error) {
	return DefaultRegistry.Call(name, args...)
}

// ImportFunctions imports a collection into the default registry
func ImportFunctions(collection Collection, opts ImportOptions) error {
	return DefaultRegistry.Import(collection, opts)
}
