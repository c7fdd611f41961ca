package xtpl

// Scope is the data context one compiled function sees: the current value,
// the scope it was entered from, and the loop position. Scopes form an
// immutable chain; entering a block creates a new scope pointing at the old one.
type Scope struct {
	Values interface{}
	Parent *Scope
	Index  int
	Count  int

	tpl *Template
}

func newRootScope(t *Template, values interface{}) *Scope {
	return &Scope{Values: values, Index: 1, Count: 1, tpl: t}
}

// enter returns the child scope for a value reached through a for target
func (s *Scope) enter(values interface{}, index, count int) *Scope {
	return &Scope{Values: values, Parent: s, Index: index, Count: count, tpl: s.tpl}
}

// emptyParent is the parent of the root scope: an object with no fields that
// renders as the empty string.
type emptyParent struct{}

func (emptyParent) String() string { return "" }

// ParentValues returns the value one level up. The root scope's parent is an
// empty object.
func (s *Scope) ParentValues() interface{} {
	if s.Parent == nil {
		return emptyParent{}
	}
	return s.Parent.Values
}

func (s *Scope) functions() FunctionRegistry {
	if s.tpl == nil || s.tpl.functions == nil {
		return GetDefaultFunctionRegistry()
	}
	return s.tpl.functions
}

func (s *Scope) member(name string) (Function, bool) {
	if s.tpl == nil {
		return nil, false
	}
	fn, ok := s.tpl.members[name]
	return fn, ok
}
