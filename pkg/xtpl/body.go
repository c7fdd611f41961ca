package xtpl

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// {name:format(args)math}
	inlineRegex = regexp.MustCompile(`\{([\w\-.#]+)(?::([\w.]*)(?:\((.*?)\))?)?(\s?[+\-*/]\s?[\d.+\-*/()]+)?\}`)
	// {[ code ]}, "\]" escapes a bracket inside the code
	codeRegex    = regexp.MustCompile(`(?s)\{\[((?:\\\]|.)*?)\]\}`)
	subTplRegex  = regexp.MustCompile(`^xtpl(\d+)$`)
	memberPrefix = "this."
)

// segment is one compiled piece of a block body
type segment interface {
	render(t *Template, blockID int, s *Scope, b *strings.Builder) error
}

type textSegment string

func (seg textSegment) render(_ *Template, _ int, _ *Scope, b *strings.Builder) error {
	b.WriteString(string(seg))
	return nil
}

// exprSegment writes the value of an inline token or code span
type exprSegment struct {
	source string
	node   ExpressionNode
}

func (seg *exprSegment) render(_ *Template, blockID int, s *Scope, b *strings.Builder) error {
	val, err := seg.node.Evaluate(s)
	if err != nil {
		return NewEvaluationError(seg.source, blockID, err)
	}
	b.WriteString(FormatValue(val))
	return nil
}

// subTemplateSegment applies another compiled block in the caller's scope
type subTemplateSegment struct {
	id int
}

func (seg *subTemplateSegment) render(t *Template, _ int, s *Scope, b *strings.Builder) error {
	return t.applyBlock(seg.id, s, b)
}

type bodyOptions struct {
	disableFormats bool
	blockCount     int
}

// compileBody turns a block body into segments. Code spans are cut out first,
// then inline tokens are compiled in the text between them.
func compileBody(body string, opts bodyOptions) ([]segment, error) {
	var segments []segment
	errs := NewMultiError()
	last := 0

	for _, loc := range codeRegex.FindAllStringSubmatchIndex(body, -1) {
		segments = appendInline(segments, body[last:loc[0]], opts, errs)

		source := body[loc[0]:loc[1]]
		code := strings.ReplaceAll(body[loc[2]:loc[3]], `\]`, `]`)
		node, err := ParseExpression(code)
		if err != nil {
			errs.Add(WithContext(err, "compile code span", map[string]interface{}{"span": source}))
		} else {
			segments = append(segments, &exprSegment{source: source, node: node})
		}
		last = loc[1]
	}
	segments = appendInline(segments, body[last:], opts, errs)

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

func appendInline(segments []segment, text string, opts bodyOptions, errs *MultiError) []segment {
	last := 0
	for _, m := range inlineRegex.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			segments = appendText(segments, text[last:m[0]])
		}
		last = m[1]

		source := text[m[0]:m[1]]
		seg, err := compileInlineToken(source, group(text, m, 1), group(text, m, 2), group(text, m, 3), group(text, m, 4), opts)
		if err != nil {
			errs.Add(err)
			continue
		}
		segments = append(segments, seg)
	}
	if last < len(text) {
		segments = appendText(segments, text[last:])
	}
	return segments
}

func appendText(segments []segment, text string) []segment {
	if n := len(segments); n > 0 {
		if prev, ok := segments[n-1].(textSegment); ok {
			segments[n-1] = prev + textSegment(text)
			return segments
		}
	}
	return append(segments, textSegment(text))
}

func group(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

// compileInlineToken builds the expression for {name:format(args)math}
func compileInlineToken(source, name, format, args, math string, opts bodyOptions) (segment, error) {
	if sm := subTplRegex.FindStringSubmatch(name); sm != nil && format == "" && math == "" {
		id, _ := strconv.Atoi(sm[1])
		if id >= opts.blockCount {
			return nil, NewParseError("reference to unknown block", source, name, 0)
		}
		return &subTemplateSegment{id: id}, nil
	}

	value, err := compileTokenName(source, name)
	if err != nil {
		return nil, err
	}

	if math != "" {
		value, err = parseWithOperand(value, strings.TrimSpace(math))
		if err != nil {
			return nil, WithContext(err, "compile token", map[string]interface{}{"token": source})
		}
	}

	if format == "" || opts.disableFormats {
		return &exprSegment{source: source, node: &DefaultNode{Operand: value}}, nil
	}

	if strings.HasPrefix(format, memberPrefix) {
		// members receive the value and the current record; listed args are not passed
		member := strings.TrimPrefix(format, memberPrefix)
		return &exprSegment{source: source, node: &MemberCallNode{
			Name: member,
			Args: []ExpressionNode{value, &CurrentNode{}},
		}}, nil
	}

	extra, err := parseArguments(args)
	if err != nil {
		return nil, WithContext(err, "compile token arguments", map[string]interface{}{"token": source})
	}
	return &exprSegment{source: source, node: &FunctionCallNode{
		Name: format,
		Args: append([]ExpressionNode{value}, extra...),
	}}, nil
}

// compileTokenName resolves the name part of an inline token. Plain names read
// the current value only; dotted paths resolve their head in block scope.
func compileTokenName(source, name string) (ExpressionNode, error) {
	switch name {
	case ".":
		return &CurrentNode{}, nil
	case "..":
		return &ParentNode{}, nil
	case "#":
		return &IndexNode{}, nil
	}

	if !strings.Contains(name, ".") {
		return &FieldAccessNode{Object: &CurrentNode{}, Field: name}, nil
	}

	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return nil, NewParseError("empty path segment", source, name, 0)
		}
	}
	var node ExpressionNode = &VariableNode{Name: parts[0]}
	for _, part := range parts[1:] {
		node = &FieldAccessNode{Object: node, Field: part}
	}
	return node, nil
}
