package xtpl

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompiledBlock is one <tpl> block with its expressions compiled. Target,
// Test and Exec are nil when the block has no for, if or exec attribute.
type CompiledBlock struct {
	ID     int
	Target ExpressionNode
	Test   ExpressionNode
	Exec   ExpressionNode

	body []segment
	raw  rawBlock
}

// BlockInfo describes a compiled block for tooling
type BlockInfo struct {
	ID     int
	For    string
	If     string
	Exec   string
	Body   string
	Master bool
}

// Template is a compiled template. It is immutable once Compile returns and
// safe for concurrent use.
type Template struct {
	id        uuid.UUID
	source    string
	blocks    []*CompiledBlock
	master    *CompiledBlock
	functions FunctionRegistry
	members   map[string]Function
	config    *Config
	logger    *zap.Logger
}

type compileOptions struct {
	config    *Config
	functions FunctionRegistry
	members   map[string]Function
	logger    *zap.Logger
}

// Option configures Compile
type Option func(*compileOptions)

// WithConfig compiles with the given configuration instead of the global one
func WithConfig(config *Config) Option {
	return func(o *compileOptions) { o.config = NewConfigWithDefaults(config) }
}

// WithFunctions sets the formatter registry the template calls into
func WithFunctions(registry FunctionRegistry) Option {
	return func(o *compileOptions) { o.functions = registry }
}

// WithMember adds a template member callable as this.name(...) in
// expressions and as {field:this.name} in tokens, where it receives the
// field value and the current record.
func WithMember(name string, fn func(args ...interface{}) (interface{}, error)) Option {
	return func(o *compileOptions) {
		o.members[name] = NewSimpleFunction(name, 0, -1, fn)
	}
}

// WithLogger sets the logger used for this template
func WithLogger(logger *zap.Logger) Option {
	return func(o *compileOptions) { o.logger = logger }
}

// Compile parses and compiles a template once. Unbalanced <tpl> markers and
// malformed expressions are reported here; rendering never re-parses.
func Compile(src string, opts ...Option) (*Template, error) {
	o := compileOptions{members: make(map[string]Function)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		o.config = GetGlobalConfig()
	}
	if o.functions == nil {
		o.functions = GetDefaultFunctionRegistry()
	}
	if o.logger == nil {
		o.logger = GetLogger()
	}

	t := &Template{
		id:        uuid.New(),
		source:    src,
		functions: o.functions,
		members:   o.members,
		config:    o.config,
	}
	t.logger = o.logger.With(zap.String("template", t.id.String()))

	depth, err := checkMarkers(src)
	if err != nil {
		return nil, err
	}
	// the implicit outer block adds one level
	if depth+1 > o.config.MaxRenderDepth {
		return nil, NewTemplateSyntaxError(
			fmt.Sprintf("blocks nest %d levels deep, limit is %d", depth+1, o.config.MaxRenderDepth), "", 0, 0)
	}

	raw := scanBlocks(src, t.logger)
	t.blocks = make([]*CompiledBlock, len(raw))
	errs := NewMultiError()

	// inner blocks were discovered first; compile from the master inwards
	for i := len(raw) - 1; i >= 0; i-- {
		block, err := compileBlock(raw[i], o.config)
		if err != nil {
			errs.Add(WithContext(err, "compile block", map[string]interface{}{"block": raw[i].ID}))
			continue
		}
		t.blocks[i] = block
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	t.master = t.blocks[len(t.blocks)-1]

	if o.config.StrictMode {
		if err := t.checkFunctions(); err != nil {
			return nil, err
		}
	}

	if debugEnabled(t.logger) {
		t.logger.Debug("compiled template",
			zap.Int("blocks", len(t.blocks)),
			zap.Int("depth", depth+1),
			zap.Int("source_length", len(src)))
	}
	return t, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(src string, opts ...Option) *Template {
	t, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func compileBlock(raw rawBlock, config *Config) (*CompiledBlock, error) {
	block := &CompiledBlock{ID: raw.ID, raw: raw}
	errs := NewMultiError()

	switch raw.For {
	case "":
	case ".":
		block.Target = &CurrentNode{}
	case "..":
		block.Target = &ParentNode{}
	default:
		node, err := ParseExpression(raw.For)
		errs.Add(WithContext(err, "compile for", map[string]interface{}{"expression": raw.For}))
		block.Target = node
	}

	if raw.If != "" {
		node, err := ParseExpression(raw.If)
		errs.Add(WithContext(err, "compile if", map[string]interface{}{"expression": raw.If}))
		block.Test = node
	}

	if raw.Exec != "" {
		node, err := ParseExpression(raw.Exec)
		errs.Add(WithContext(err, "compile exec", map[string]interface{}{"expression": raw.Exec}))
		block.Exec = node
	}

	body, err := compileBody(raw.Body, bodyOptions{
		disableFormats: config.DisableFormats,
		blockCount:     raw.ID,
	})
	errs.Add(err)
	block.body = body

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return block, nil
}

// checkFunctions fails when an expression calls a formatter the registry
// does not know.
func (t *Template) checkFunctions() error {
	errs := NewMultiError()
	seen := make(map[string]bool)
	visit := func(node ExpressionNode) {
		walkExpression(node, func(n ExpressionNode) {
			call, ok := n.(*FunctionCallNode)
			if !ok || seen[call.Name] {
				return
			}
			seen[call.Name] = true
			if _, exists := t.functions.GetFunction(call.Name); !exists {
				errs.Add(NewFunctionError(call.Name, nil, "unknown function"))
			}
		})
	}

	for _, block := range t.blocks {
		visit(block.Target)
		visit(block.Test)
		visit(block.Exec)
		for _, seg := range block.body {
			if expr, ok := seg.(*exprSegment); ok {
				visit(expr.node)
			}
		}
	}
	return errs.Err()
}

// walkExpression calls fn for node and every node below it
func walkExpression(node ExpressionNode, fn func(ExpressionNode)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case *FieldAccessNode:
		walkExpression(n.Object, fn)
	case *IndexAccessNode:
		walkExpression(n.Object, fn)
		walkExpression(n.Index, fn)
	case *BinaryOpNode:
		walkExpression(n.Left, fn)
		walkExpression(n.Right, fn)
	case *UnaryOpNode:
		walkExpression(n.Operand, fn)
	case *TernaryNode:
		walkExpression(n.Condition, fn)
		walkExpression(n.Then, fn)
		walkExpression(n.Else, fn)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			walkExpression(arg, fn)
		}
	case *MemberCallNode:
		for _, arg := range n.Args {
			walkExpression(arg, fn)
		}
	case *DefaultNode:
		walkExpression(n.Operand, fn)
	}
}

// Render evaluates the master block against data with an empty parent and
// index and count of 1.
func (t *Template) Render(data interface{}) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecoverError(r)
		}
	}()

	start := time.Now()
	var b strings.Builder
	if err := t.renderBody(t.master, newRootScope(t, data), &b); err != nil {
		return "", err
	}

	if debugEnabled(t.logger) {
		t.logger.Debug("rendered template",
			zap.Int("output_length", b.Len()),
			zap.Duration("elapsed", time.Since(start)))
	}
	return b.String(), nil
}

// Execute renders data and writes the result to w
func (t *Template) Execute(w io.Writer, data interface{}) error {
	out, err := t.Render(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// applyBlock renders block id in scope s: a false if or a truthy exec
// suppresses it, a for target rebinds the current value.
func (t *Template) applyBlock(id int, s *Scope, b *strings.Builder) error {
	block := t.blocks[id]

	if block.Test != nil {
		ok, err := block.Test.Evaluate(s)
		if err != nil {
			return NewEvaluationError(block.raw.If, id, err)
		}
		if !isTruthy(ok) {
			return nil
		}
	}

	if block.Exec != nil {
		suppress, err := block.Exec.Evaluate(s)
		if err != nil {
			return NewEvaluationError(block.raw.Exec, id, err)
		}
		if isTruthy(suppress) {
			return nil
		}
	}

	if block.Target == nil {
		return t.renderBody(block, s, b)
	}

	target, err := block.Target.Evaluate(s)
	if err != nil {
		return NewEvaluationError(block.raw.For, id, err)
	}

	if items, ok := iterable(target); ok {
		for i, item := range items {
			if err := t.renderBody(block, s.enter(item, i+1, len(items)), b); err != nil {
				return err
			}
		}
		return nil
	}
	return t.renderBody(block, s.enter(target, s.Index, s.Count), b)
}

func (t *Template) renderBody(block *CompiledBlock, s *Scope, b *strings.Builder) error {
	for _, seg := range block.body {
		if err := seg.render(t, block.ID, s, b); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the unique id assigned when the template was compiled
func (t *Template) ID() string {
	return t.id.String()
}

// Source returns the template text the template was compiled from
func (t *Template) Source() string {
	return t.source
}

// Blocks describes the compiled block table in id order. The last entry is
// the implicit master block.
func (t *Template) Blocks() []BlockInfo {
	infos := make([]BlockInfo, len(t.blocks))
	for i, block := range t.blocks {
		infos[i] = BlockInfo{
			ID:     block.ID,
			For:    block.raw.For,
			If:     block.raw.If,
			Exec:   block.raw.Exec,
			Body:   block.raw.Body,
			Master: block == t.master,
		}
	}
	return infos
}

// Members lists the names of the template's member functions
func (t *Template) Members() []string {
	names := make([]string, 0, len(t.members))
	for name := range t.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b BlockInfo) String() string {
	attrs := describeBlock(rawBlock{For: b.For, If: b.If, Exec: b.Exec})
	if attrs == "" {
		return fmt.Sprintf("block %d", b.ID)
	}
	return fmt.Sprintf("block %d %s", b.ID, attrs)
}
