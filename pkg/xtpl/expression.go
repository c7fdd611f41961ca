package xtpl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ExpressionNode represents a node in the expression AST
type ExpressionNode interface {
	String() string
	Evaluate(s *Scope) (interface{}, error)
}

// LiteralNode represents a literal value (string, number, boolean, nil)
type LiteralNode struct {
	Value interface{}
}

func (n *LiteralNode) String() string {
	if str, ok := n.Value.(string); ok {
		return fmt.Sprintf("Literal(%q)", str)
	}
	return fmt.Sprintf("Literal(%v)", n.Value)
}

func (n *LiteralNode) Evaluate(s *Scope) (interface{}, error) {
	return n.Value, nil
}

// VariableNode is a bare identifier. Fields of the current value shadow the
// scope names values, parent, xindex and xcount.
type VariableNode struct {
	Name string
}

func (n *VariableNode) String() string {
	return fmt.Sprintf("Variable(%s)", n.Name)
}

func (n *VariableNode) Evaluate(s *Scope) (interface{}, error) {
	if val, ok := lookupField(s.Values, n.Name); ok {
		return val, nil
	}
	switch n.Name {
	case "values":
		return s.Values, nil
	case "parent":
		return s.ParentValues(), nil
	case "xindex":
		return s.Index, nil
	case "xcount":
		return s.Count, nil
	}
	return nil, nil
}

// CurrentNode is the value being rendered ({.} and for=".")
type CurrentNode struct{}

func (n *CurrentNode) String() string { return "Current" }

func (n *CurrentNode) Evaluate(s *Scope) (interface{}, error) {
	return s.Values, nil
}

// ParentNode is the value one level up ({..} and for="..")
type ParentNode struct{}

func (n *ParentNode) String() string { return "Parent" }

func (n *ParentNode) Evaluate(s *Scope) (interface{}, error) {
	return s.ParentValues(), nil
}

// IndexNode is the 1-based loop index ({#})
type IndexNode struct{}

func (n *IndexNode) String() string { return "Index" }

func (n *IndexNode) Evaluate(s *Scope) (interface{}, error) {
	return s.Index, nil
}

// FieldAccessNode represents field access (obj.field)
type FieldAccessNode struct {
	Object ExpressionNode
	Field  string
}

func (n *FieldAccessNode) String() string {
	return fmt.Sprintf("FieldAccess(%s.%s)", n.Object.String(), n.Field)
}

func (n *FieldAccessNode) Evaluate(s *Scope) (interface{}, error) {
	obj, err := n.Object.Evaluate(s)
	if err != nil {
		return nil, err
	}
	return accessField(obj, n.Field), nil
}

// IndexAccessNode represents index access (obj[index])
type IndexAccessNode struct {
	Object ExpressionNode
	Index  ExpressionNode
}

func (n *IndexAccessNode) String() string {
	return fmt.Sprintf("IndexAccess(%s[%s])", n.Object.String(), n.Index.String())
}

func (n *IndexAccessNode) Evaluate(s *Scope) (interface{}, error) {
	obj, err := n.Object.Evaluate(s)
	if err != nil {
		return nil, err
	}

	indexVal, err := n.Index.Evaluate(s)
	if err != nil {
		return nil, err
	}

	switch idx := indexVal.(type) {
	case string:
		return accessField(obj, idx), nil
	case nil:
		return nil, nil
	default:
		if i, ok := toInt(idx); ok {
			return accessIndex(obj, i), nil
		}
		return nil, fmt.Errorf("invalid index type: %T", indexVal)
	}
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Left     ExpressionNode
	Operator string
	Right    ExpressionNode
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("BinaryOp(%s %s %s)", n.Left.String(), n.Operator, n.Right.String())
}

func (n *BinaryOpNode) Evaluate(s *Scope) (interface{}, error) {
	leftVal, err := n.Left.Evaluate(s)
	if err != nil {
		return nil, err
	}

	// logical operators short-circuit and yield an operand, not a bool
	switch n.Operator {
	case "&&", "&":
		if !isTruthy(leftVal) {
			return leftVal, nil
		}
		return n.Right.Evaluate(s)
	case "||", "|":
		if isTruthy(leftVal) {
			return leftVal, nil
		}
		return n.Right.Evaluate(s)
	}

	rightVal, err := n.Right.Evaluate(s)
	if err != nil {
		return nil, err
	}

	return EvaluateBinaryOperation(leftVal, n.Operator, rightVal)
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Operator string
	Operand  ExpressionNode
}

func (n *UnaryOpNode) String() string {
	return fmt.Sprintf("UnaryOp(%s %s)", n.Operator, n.Operand.String())
}

func (n *UnaryOpNode) Evaluate(s *Scope) (interface{}, error) {
	operandVal, err := n.Operand.Evaluate(s)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "!":
		return !isTruthy(operandVal), nil
	case "-":
		return evaluateUnaryMinus(operandVal), nil
	case "+":
		return evaluateUnaryPlus(operandVal), nil
	default:
		return nil, fmt.Errorf("unknown unary operator: %s", n.Operator)
	}
}

// TernaryNode represents cond ? then : else
type TernaryNode struct {
	Condition ExpressionNode
	Then      ExpressionNode
	Else      ExpressionNode
}

func (n *TernaryNode) String() string {
	return fmt.Sprintf("Ternary(%s ? %s : %s)", n.Condition.String(), n.Then.String(), n.Else.String())
}

func (n *TernaryNode) Evaluate(s *Scope) (interface{}, error) {
	cond, err := n.Condition.Evaluate(s)
	if err != nil {
		return nil, err
	}
	if isTruthy(cond) {
		return n.Then.Evaluate(s)
	}
	return n.Else.Evaluate(s)
}

// FunctionCallNode calls a formatter from the function registry
type FunctionCallNode struct {
	Name string
	Args []ExpressionNode
}

func (n *FunctionCallNode) String() string {
	return fmt.Sprintf("FunctionCall(%s, [%s])", n.Name, joinNodes(n.Args))
}

func (n *FunctionCallNode) Evaluate(s *Scope) (interface{}, error) {
	fn, exists := s.functions().GetFunction(n.Name)
	if !exists {
		return nil, NewFunctionError(n.Name, nil, "unknown function")
	}

	args, err := evaluateArgs(n.Name, n.Args, s)
	if err != nil {
		return nil, err
	}
	return fn.Call(args...)
}

// MemberCallNode calls a function registered on the template (this.name)
type MemberCallNode struct {
	Name string
	Args []ExpressionNode
}

func (n *MemberCallNode) String() string {
	return fmt.Sprintf("MemberCall(%s, [%s])", n.Name, joinNodes(n.Args))
}

func (n *MemberCallNode) Evaluate(s *Scope) (interface{}, error) {
	fn, exists := s.member(n.Name)
	if !exists {
		return nil, NewFunctionError("this."+n.Name, nil, "unknown template member")
	}

	args, err := evaluateArgs("this."+n.Name, n.Args, s)
	if err != nil {
		return nil, err
	}
	return fn.Call(args...)
}

// DefaultNode renders nil as the empty string and passes everything else through
type DefaultNode struct {
	Operand ExpressionNode
}

func (n *DefaultNode) String() string {
	return fmt.Sprintf("Default(%s)", n.Operand.String())
}

func (n *DefaultNode) Evaluate(s *Scope) (interface{}, error) {
	val, err := n.Operand.Evaluate(s)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return "", nil
	}
	return val, nil
}

func evaluateArgs(name string, nodes []ExpressionNode, s *Scope) ([]interface{}, error) {
	args := make([]interface{}, len(nodes))
	for i, arg := range nodes {
		val, err := arg.Evaluate(s)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate argument %d for function %s: %w", i, name, err)
		}
		args[i] = val
	}
	return args, nil
}

func joinNodes(nodes []ExpressionNode) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, ", ")
}

// ExpressionToken represents a token in an expression
type ExpressionToken struct {
	Type  ExpressionTokenType
	Value string
	Pos   int
}

type ExpressionTokenType int

const (
	ExprTokenIdentifier ExpressionTokenType = iota
	ExprTokenNumber
	ExprTokenString
	ExprTokenOperator
	ExprTokenLeftParen
	ExprTokenRightParen
	ExprTokenComma
	ExprTokenEOF
	ExprTokenHole
)

var (
	identifierRegex  = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*`)
	numberRegex      = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?`)
	fractionRegex    = regexp.MustCompile(`^\.[0-9]+`)
	stringRegex      = regexp.MustCompile(`^"([^"\\]|\\.)*"`)
	singleQuoteRegex = regexp.MustCompile(`^'([^'\\]|\\.)*'`)
	operatorRegex    = regexp.MustCompile(`^(===|!==|==|!=|<=|>=|&&|\|\||\+|\-|\*|\/|\%|\&|\||\!|<|>|\?|:)`)
)

// TokenizeExpression tokenizes an expression string
func TokenizeExpression(expr string) ([]ExpressionToken, error) {
	var tokens []ExpressionToken
	pos := 0

	for pos < len(expr) {
		if expr[pos] == ' ' || expr[pos] == '\t' || expr[pos] == '\n' || expr[pos] == '\r' {
			pos++
			continue
		}

		remaining := expr[pos:]

		if match := identifierRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenIdentifier, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := numberRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := stringRegex.FindString(remaining); match != "" {
			value := match[1 : len(match)-1]
			value = strings.ReplaceAll(value, `\"`, `"`)
			value = strings.ReplaceAll(value, `\\`, `\`)
			tokens = append(tokens, ExpressionToken{Type: ExprTokenString, Value: value, Pos: pos})
			pos += len(match)
			continue
		}

		if match := singleQuoteRegex.FindString(remaining); match != "" {
			value := match[1 : len(match)-1]
			value = strings.ReplaceAll(value, `\'`, `'`)
			value = strings.ReplaceAll(value, `\\`, `\`)
			tokens = append(tokens, ExpressionToken{Type: ExprTokenString, Value: value, Pos: pos})
			pos += len(match)
			continue
		}

		if match := operatorRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		switch expr[pos] {
		case '(':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenLeftParen, Value: "(", Pos: pos})
			pos++
			continue
		case ')':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenRightParen, Value: ")", Pos: pos})
			pos++
			continue
		case ',':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenComma, Value: ",", Pos: pos})
			pos++
			continue
		case '.':
			if match := fractionRegex.FindString(remaining); match != "" {
				tokens = append(tokens, ExpressionToken{Type: ExprTokenNumber, Value: "0" + match, Pos: pos})
				pos += len(match)
				continue
			}
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: ".", Pos: pos})
			pos++
			continue
		case '[', ']':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: string(expr[pos]), Pos: pos})
			pos++
			continue
		}

		return nil, NewParseError(fmt.Sprintf("unexpected character '%c'", expr[pos]), expr, string(expr[pos]), pos)
	}

	tokens = append(tokens, ExpressionToken{Type: ExprTokenEOF, Pos: pos})
	return tokens, nil
}

// ParseExpression parses an expression string into an AST. The whole input
// must be consumed.
func ParseExpression(expr string) (ExpressionNode, error) {
	tokens, err := TokenizeExpression(expr)
	if err != nil {
		return nil, err
	}
	return parseTokens(expr, tokens, nil)
}

// parseWithOperand parses suffix as the continuation of an expression whose
// first operand is already known, so "*2+1" applied to v parses as (v*2)+1.
func parseWithOperand(operand ExpressionNode, suffix string) (ExpressionNode, error) {
	tokens, err := TokenizeExpression(suffix)
	if err != nil {
		return nil, err
	}
	tokens = append([]ExpressionToken{{Type: ExprTokenHole, Pos: 0}}, tokens...)
	return parseTokens(suffix, tokens, operand)
}

// parseArguments parses a comma separated argument list without the
// surrounding parentheses.
func parseArguments(list string) ([]ExpressionNode, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	tokens, err := TokenizeExpression(list)
	if err != nil {
		return nil, err
	}
	parser := &ExpressionParser{source: list, tokens: tokens}
	var args []ExpressionNode
	for {
		arg, err := parser.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if parser.current().Type == ExprTokenComma {
			parser.advance()
			continue
		}
		break
	}
	if err := parser.expectEOF(); err != nil {
		return nil, err
	}
	return args, nil
}

func parseTokens(source string, tokens []ExpressionToken, hole ExpressionNode) (ExpressionNode, error) {
	parser := &ExpressionParser{source: source, tokens: tokens, hole: hole}

	node, err := parser.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := parser.expectEOF(); err != nil {
		return nil, err
	}
	return node, nil
}

// ExpressionParser parses expressions into AST nodes
type ExpressionParser struct {
	source string
	tokens []ExpressionToken
	pos    int
	hole   ExpressionNode
}

func (p *ExpressionParser) current() ExpressionToken {
	if p.pos >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF, Pos: len(p.source)}
	}
	return p.tokens[p.pos]
}

func (p *ExpressionParser) peek(offset int) ExpressionToken {
	if p.pos+offset >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF, Pos: len(p.source)}
	}
	return p.tokens[p.pos+offset]
}

func (p *ExpressionParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *ExpressionParser) isOperator(values ...string) bool {
	tok := p.current()
	if tok.Type != ExprTokenOperator {
		return false
	}
	for _, v := range values {
		if tok.Value == v {
			return true
		}
	}
	return false
}

func (p *ExpressionParser) errorf(format string, args ...interface{}) error {
	tok := p.current()
	return NewParseError(fmt.Sprintf(format, args...), p.source, tok.Value, tok.Pos)
}

func (p *ExpressionParser) expectEOF() error {
	if p.current().Type != ExprTokenEOF {
		return p.errorf("unexpected trailing token")
	}
	return nil
}

// parseExpression parses a complete expression
func (p *ExpressionParser) parseExpression() (ExpressionNode, error) {
	return p.parseTernary()
}

// parseTernary parses cond ? a : b (lowest precedence, right associative)
func (p *ExpressionParser) parseTernary() (ExpressionNode, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if !p.isOperator("?") {
		return cond, nil
	}
	p.advance()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if !p.isOperator(":") {
		return nil, p.errorf("expected ':' in conditional expression")
	}
	p.advance()
	otherwise, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &TernaryNode{Condition: cond, Then: then, Else: otherwise}, nil
}

// parseLogicalOr parses logical OR expressions
func (p *ExpressionParser) parseLogicalOr() (ExpressionNode, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}

	for p.isOperator("||", "|") {
		op := p.current().Value
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseLogicalAnd parses logical AND expressions
func (p *ExpressionParser) parseLogicalAnd() (ExpressionNode, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}

	for p.isOperator("&&", "&") {
		op := p.current().Value
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseEquality parses equality expressions (==, !=, ===, !==)
func (p *ExpressionParser) parseEquality() (ExpressionNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.isOperator("==", "!=", "===", "!==") {
		op := p.current().Value
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseComparison parses comparison expressions (<, >, <=, >=)
func (p *ExpressionParser) parseComparison() (ExpressionNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.isOperator("<", ">", "<=", ">=") {
		op := p.current().Value
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseTerm parses addition and subtraction
func (p *ExpressionParser) parseTerm() (ExpressionNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.isOperator("+", "-") {
		op := p.current().Value
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseFactor parses multiplication, division, and modulo
func (p *ExpressionParser) parseFactor() (ExpressionNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.isOperator("*", "/", "%") {
		op := p.current().Value
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseUnary parses unary expressions (!, -, +)
func (p *ExpressionParser) parseUnary() (ExpressionNode, error) {
	if p.isOperator("!", "-", "+") {
		op := p.current().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOpNode{Operator: op, Operand: operand}, nil
	}

	return p.parsePostfix()
}

// parsePostfix parses field and index access (obj.field, obj[key])
func (p *ExpressionParser) parsePostfix() (ExpressionNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.isOperator("."):
			p.advance()
			if p.current().Type != ExprTokenIdentifier {
				return nil, p.errorf("expected identifier after '.'")
			}
			field := p.current().Value
			p.advance()
			left = &FieldAccessNode{Object: left, Field: field}
		case p.isOperator("["):
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if !p.isOperator("]") {
				return nil, p.errorf("expected ']' after index")
			}
			p.advance()
			left = &IndexAccessNode{Object: left, Index: index}
		case p.current().Type == ExprTokenLeftParen:
			return nil, p.errorf("method calls are only supported on fm and this")
		default:
			return left, nil
		}
	}
}

// parsePrimary parses literals, identifiers, calls and parenthesized expressions
func (p *ExpressionParser) parsePrimary() (ExpressionNode, error) {
	token := p.current()

	switch token.Type {
	case ExprTokenHole:
		p.advance()
		if p.hole == nil {
			return nil, p.errorf("unexpected operand placeholder")
		}
		return p.hole, nil

	case ExprTokenNumber:
		p.advance()
		if intVal, err := strconv.Atoi(token.Value); err == nil {
			return &LiteralNode{Value: intVal}, nil
		}
		if floatVal, err := strconv.ParseFloat(token.Value, 64); err == nil {
			return &LiteralNode{Value: floatVal}, nil
		}
		return nil, NewParseError("invalid number", p.source, token.Value, token.Pos)

	case ExprTokenString:
		p.advance()
		return &LiteralNode{Value: token.Value}, nil

	case ExprTokenIdentifier:
		switch token.Value {
		case "true":
			p.advance()
			return &LiteralNode{Value: true}, nil
		case "false":
			p.advance()
			return &LiteralNode{Value: false}, nil
		case "null", "nil", "undefined":
			p.advance()
			return &LiteralNode{Value: nil}, nil
		case "fm", "this":
			// fm.name(...) and this.name(...) are calls, anything else is a variable
			if p.peek(1).Type == ExprTokenOperator && p.peek(1).Value == "." &&
				p.peek(2).Type == ExprTokenIdentifier && p.peek(3).Type == ExprTokenLeftParen {
				name := p.peek(2).Value
				p.advance()
				p.advance()
				p.advance()
				args, err := p.parseCallArguments()
				if err != nil {
					return nil, err
				}
				if token.Value == "this" {
					return &MemberCallNode{Name: name, Args: args}, nil
				}
				return &FunctionCallNode{Name: name, Args: args}, nil
			}
		}

		p.advance()
		if p.current().Type == ExprTokenLeftParen {
			args, err := p.parseCallArguments()
			if err != nil {
				return nil, err
			}
			return &FunctionCallNode{Name: token.Value, Args: args}, nil
		}
		return &VariableNode{Name: token.Value}, nil

	case ExprTokenLeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Type != ExprTokenRightParen {
			return nil, p.errorf("expected ')' after expression")
		}
		p.advance()
		return expr, nil

	case ExprTokenEOF:
		return nil, p.errorf("unexpected end of expression")

	default:
		return nil, p.errorf("unexpected token")
	}
}

// parseCallArguments parses "(arg, ...)" with the parser positioned on "("
func (p *ExpressionParser) parseCallArguments() ([]ExpressionNode, error) {
	if p.current().Type != ExprTokenLeftParen {
		return nil, p.errorf("expected '(' after function name")
	}
	p.advance()

	var args []ExpressionNode
	if p.current().Type == ExprTokenRightParen {
		p.advance()
		return args, nil
	}

	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.current().Type == ExprTokenComma {
			p.advance()
			continue
		}
		if p.current().Type == ExprTokenRightParen {
			p.advance()
			return args, nil
		}
		return nil, p.errorf("expected ',' or ')' in function arguments")
	}
}
