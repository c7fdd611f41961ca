package xtpl

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Function represents a formatter callable from templates
type Function interface {
	// Call executes the function with the given arguments
	Call(args ...interface{}) (interface{}, error)

	// Name returns the function name
	Name() string

	// MinArgs returns the minimum number of arguments required
	MinArgs() int

	// MaxArgs returns the maximum number of arguments allowed (-1 for unlimited)
	MaxArgs() int
}

// FunctionRegistry manages available functions
type FunctionRegistry interface {
	// RegisterFunction adds a function to the registry
	RegisterFunction(fn Function) error

	// GetFunction retrieves a function by name
	GetFunction(name string) (Function, bool)

	// ListFunctions returns all registered function names
	ListFunctions() []string
}

// DefaultFunctionRegistry is the default implementation of FunctionRegistry
type DefaultFunctionRegistry struct {
	functions map[string]Function
	mutex     sync.RWMutex
}

// NewFunctionRegistry creates a new, empty function registry
func NewFunctionRegistry() *DefaultFunctionRegistry {
	return &DefaultFunctionRegistry{
		functions: make(map[string]Function),
	}
}

// NewRegistryWithBuiltins creates a registry holding every built-in
// formatter, ready for custom additions that should not leak into the
// process-wide default registry.
func NewRegistryWithBuiltins() *DefaultFunctionRegistry {
	registry := NewFunctionRegistry()
	registerBuiltinFunctions(registry)
	return registry
}

func (r *DefaultFunctionRegistry) RegisterFunction(fn Function) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := fn.Name()
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}

	r.functions[name] = fn
	return nil
}

func (r *DefaultFunctionRegistry) GetFunction(name string) (Function, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fn, exists := r.functions[name]
	return fn, exists
}

func (r *DefaultFunctionRegistry) ListFunctions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var globalRegistry *DefaultFunctionRegistry
var registryOnce sync.Once

// GetDefaultFunctionRegistry returns the process-wide registry of built-in formatters
func GetDefaultFunctionRegistry() FunctionRegistry {
	registryOnce.Do(func() {
		globalRegistry = NewRegistryWithBuiltins()
	})
	return globalRegistry
}

// RegisterFunction adds a function to the default registry
func RegisterFunction(fn Function) error {
	return GetDefaultFunctionRegistry().RegisterFunction(fn)
}

// SimpleFunctionImpl provides a basic implementation of Function
type SimpleFunctionImpl struct {
	name    string
	minArgs int
	maxArgs int
	handler func(args ...interface{}) (interface{}, error)
}

func NewSimpleFunction(name string, minArgs, maxArgs int, handler func(args ...interface{}) (interface{}, error)) Function {
	return &SimpleFunctionImpl{
		name:    name,
		minArgs: minArgs,
		maxArgs: maxArgs,
		handler: handler,
	}
}

func (f *SimpleFunctionImpl) Call(args ...interface{}) (interface{}, error) {
	argCount := len(args)
	if argCount < f.minArgs {
		return nil, NewFunctionError(f.name, args, fmt.Sprintf("requires at least %d arguments, got %d", f.minArgs, argCount))
	}
	if f.maxArgs >= 0 && argCount > f.maxArgs {
		return nil, NewFunctionError(f.name, args, fmt.Sprintf("accepts at most %d arguments, got %d", f.maxArgs, argCount))
	}

	return f.handler(args...)
}

func (f *SimpleFunctionImpl) Name() string {
	return f.name
}

func (f *SimpleFunctionImpl) MinArgs() int {
	return f.minArgs
}

func (f *SimpleFunctionImpl) MaxArgs() int {
	return f.maxArgs
}

// registerBuiltinFunctions registers every built-in formatter
func registerBuiltinFunctions(registry *DefaultFunctionRegistry) {
	registerStringFunctions(registry)
	registerNumberFormatFunctions(registry)
	registerDateFunctions(registry)
	registerHumanizeFunctions(registry)

	registry.RegisterFunction(NewSimpleFunction("empty", 1, 1, func(args ...interface{}) (interface{}, error) {
		return isEmpty(args[0]), nil
	}))

	registry.RegisterFunction(NewSimpleFunction("coalesce", 1, -1, func(args ...interface{}) (interface{}, error) {
		for _, arg := range args {
			if !isEmpty(arg) {
				return arg, nil
			}
		}
		return nil, nil
	}))

	registry.RegisterFunction(NewSimpleFunction("list", 0, -1, func(args ...interface{}) (interface{}, error) {
		return args, nil
	}))

	registry.RegisterFunction(NewSimpleFunction("sum", 1, 1, func(args ...interface{}) (interface{}, error) {
		return sumList(args[0])
	}))
}

func isEmpty(val interface{}) bool {
	if val == nil {
		return true
	}
	switch v := val.(type) {
	case string:
		return v == ""
	case bool:
		return !v
	}
	if n, ok := lengthOf(val); ok {
		return n == 0
	}
	if rv := reflect.ValueOf(val); rv.Kind() == reflect.Ptr {
		return rv.IsNil()
	}
	return false
}

func sumList(val interface{}) (interface{}, error) {
	if val == nil {
		return 0, nil
	}
	items, ok := iterable(val)
	if !ok {
		return nil, NewFunctionError("sum", []interface{}{val}, "argument is not a list")
	}

	allInts := true
	total := 0.0
	for _, item := range items {
		if item == nil {
			continue
		}
		n, ok := toNumber(item)
		if !ok {
			return nil, NewFunctionError("sum", []interface{}{val}, fmt.Sprintf("non-numeric element %v", item))
		}
		if !isInteger(item) {
			allInts = false
		}
		total += n
	}
	if allInts {
		return int(total), nil
	}
	return total, nil
}
