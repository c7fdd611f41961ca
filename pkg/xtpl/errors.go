package xtpl

import (
	"errors"
	"fmt"
	"strings"
)

// TemplateSyntaxError reports a block marker that has no partner, or a block
// structure the compiler refuses to build.
type TemplateSyntaxError struct {
	Message string
	Marker  string
	Line    int
	Column  int
}

func (e *TemplateSyntaxError) Error() string {
	if e.Marker != "" && e.Line > 0 {
		return fmt.Sprintf("template syntax error at line %d, column %d near '%s': %s", e.Line, e.Column, e.Marker, e.Message)
	} else if e.Line > 0 {
		return fmt.Sprintf("template syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("template syntax error: %s", e.Message)
}

// NewTemplateSyntaxError creates a new syntax error with position information
func NewTemplateSyntaxError(message, marker string, line, column int) error {
	return &TemplateSyntaxError{
		Message: message,
		Marker:  marker,
		Line:    line,
		Column:  column,
	}
}

// ParseError represents an error while parsing an expression
type ParseError struct {
	Message    string
	Expression string
	Token      string
	Position   int
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse error in '%s' at position %d near '%s': %s", e.Expression, e.Position, e.Token, e.Message)
	}
	return fmt.Sprintf("parse error in '%s' at position %d: %s", e.Expression, e.Position, e.Message)
}

// NewParseError creates a new parse error
func NewParseError(message, expression, token string, position int) error {
	return &ParseError{
		Message:    message,
		Expression: expression,
		Token:      token,
		Position:   position,
	}
}

// EvaluationError represents an error during expression evaluation
type EvaluationError struct {
	Expression string
	BlockID    int
	Cause      error
}

func (e *EvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation error in block %d for expression '%s': %v", e.BlockID, e.Expression, e.Cause)
	}
	return fmt.Sprintf("evaluation error in block %d for expression '%s'", e.BlockID, e.Expression)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates a new evaluation error
func NewEvaluationError(expression string, blockID int, cause error) error {
	return &EvaluationError{
		Expression: expression,
		BlockID:    blockID,
		Cause:      cause,
	}
}

// FunctionError represents an error in a formatter or member function call
type FunctionError struct {
	Function string
	Args     []interface{}
	Message  string
}

func (e *FunctionError) Error() string {
	argsStr := make([]string, len(e.Args))
	for i, arg := range e.Args {
		argsStr[i] = fmt.Sprintf("%v", arg)
	}
	return fmt.Sprintf("function error in '%s(%s)': %s", e.Function, strings.Join(argsStr, ", "), e.Message)
}

// NewFunctionError creates a new function error
func NewFunctionError(function string, args []interface{}, message string) error {
	return &FunctionError{
		Function: function,
		Args:     args,
		Message:  message,
	}
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Errors returns the collected errors
func (m *MultiError) Errors() []error {
	return append([]error(nil), m.errors...)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

// Unwrap lets errors.Is and errors.As look at every collected error
func (m *MultiError) Unwrap() []error {
	return m.errors
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// ContextError adds context to an existing error
type ContextError struct {
	Operation string
	Context   map[string]interface{}
	Cause     error
}

func (e *ContextError) Error() string {
	var contextParts []string
	for k, v := range e.Context {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
	}

	if len(contextParts) > 0 {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, strings.Join(contextParts, ", "), e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithContext wraps an error with additional context
func WithContext(err error, operation string, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ContextError{
		Operation: operation,
		Context:   context,
		Cause:     err,
	}
}

// RecoverError converts a panic recovery value to an error
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return fmt.Errorf("panic recovered: %w", v)
	case string:
		return fmt.Errorf("panic recovered: %s", v)
	default:
		return fmt.Errorf("panic recovered: %v", v)
	}
}

// IsTemplateSyntaxError checks if an error is, or wraps, a template syntax error
func IsTemplateSyntaxError(err error) bool {
	var target *TemplateSyntaxError
	return errors.As(err, &target)
}

// IsParseError checks if an error is, or wraps, an expression parse error
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsEvaluationError checks if an error is an evaluation error
func IsEvaluationError(err error) bool {
	var target *EvaluationError
	return errors.As(err, &target)
}

// IsFunctionError checks if an error is, or wraps, a function error
func IsFunctionError(err error) bool {
	var target *FunctionError
	return errors.As(err, &target)
}
