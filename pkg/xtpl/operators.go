package xtpl

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	errDivisionByZero = errors.New("division by zero")
	errModuloByZero   = errors.New("modulo by zero")
)

// EvaluateBinaryOperation evaluates a non-logical binary operation between two values
func EvaluateBinaryOperation(left interface{}, operator string, right interface{}) (interface{}, error) {
	switch operator {
	case "+":
		return evaluateAddition(left, right), nil
	case "-", "*", "/", "%":
		return evaluateArithmetic(left, operator, right)
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "<", ">", "<=", ">=":
		return evaluateComparison(left, operator, right), nil
	case "&&", "&":
		if !isTruthy(left) {
			return left, nil
		}
		return right, nil
	case "||", "|":
		if isTruthy(left) {
			return left, nil
		}
		return right, nil
	default:
		return nil, fmt.Errorf("unknown binary operator: %s", operator)
	}
}

// arithmeticOperand converts a value for arithmetic. Booleans count as 0/1 and
// numeric strings parse; anything else is not a number.
func arithmeticOperand(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return toNumber(v)
	}
	return toFloat64(val)
}

func evaluateAddition(left, right interface{}) interface{} {
	// string concatenation wins when either side is a string
	if leftStr, ok := left.(string); ok {
		return leftStr + FormatValue(right)
	}
	if rightStr, ok := right.(string); ok {
		return FormatValue(left) + rightStr
	}

	leftNum, leftOk := arithmeticOperand(left)
	rightNum, rightOk := arithmeticOperand(right)
	if !leftOk || !rightOk {
		return nil
	}

	if isInteger(left) && isInteger(right) {
		return int(leftNum + rightNum)
	}
	return leftNum + rightNum
}

// evaluateArithmetic handles - * / %. Operands that are not numbers make the
// result undefined (nil) rather than an error.
func evaluateArithmetic(left interface{}, operator string, right interface{}) (interface{}, error) {
	leftNum, leftOk := arithmeticOperand(left)
	rightNum, rightOk := arithmeticOperand(right)
	if !leftOk || !rightOk {
		return nil, nil
	}
	bothInts := isInteger(left) && isInteger(right)

	switch operator {
	case "-":
		if bothInts {
			return int(leftNum - rightNum), nil
		}
		return leftNum - rightNum, nil
	case "*":
		if bothInts {
			return int(leftNum * rightNum), nil
		}
		return leftNum * rightNum, nil
	case "/":
		if rightNum == 0 {
			return nil, errDivisionByZero
		}
		result := leftNum / rightNum
		if bothInts && result == float64(int(result)) {
			return int(result), nil
		}
		return result, nil
	case "%":
		leftInt, leftIsInt := toInt(leftNum)
		rightInt, rightIsInt := toInt(rightNum)
		if !leftIsInt || !rightIsInt {
			return nil, fmt.Errorf("modulo operation requires integers, got %v and %v", left, right)
		}
		if rightInt == 0 {
			return nil, errModuloByZero
		}
		return leftInt % rightInt, nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator: %s", operator)
}

// looseEquals compares numbers by value across Go numeric types and numeric
// strings; nil only equals nil.
func looseEquals(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	switch {
	case leftIsNum && rightIsNum:
		return leftNum == rightNum
	case leftIsNum:
		if s, ok := right.(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && n == leftNum
		}
	case rightIsNum:
		if s, ok := left.(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && n == rightNum
		}
	}

	return reflect.DeepEqual(left, right)
}

// strictEquals is looseEquals without string/number coercion
func strictEquals(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	if leftIsNum || rightIsNum {
		return leftIsNum && rightIsNum && leftNum == rightNum
	}
	return reflect.DeepEqual(left, right)
}

// evaluateComparison orders numbers numerically and strings lexically. Any
// other pairing compares false.
func evaluateComparison(left interface{}, operator string, right interface{}) bool {
	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)
	if leftIsStr && rightIsStr {
		switch operator {
		case "<":
			return leftStr < rightStr
		case ">":
			return leftStr > rightStr
		case "<=":
			return leftStr <= rightStr
		default:
			return leftStr >= rightStr
		}
	}

	leftNum, leftOk := arithmeticOperand(left)
	rightNum, rightOk := arithmeticOperand(right)
	if left == nil || right == nil || !leftOk || !rightOk {
		return false
	}

	switch operator {
	case "<":
		return leftNum < rightNum
	case ">":
		return leftNum > rightNum
	case "<=":
		return leftNum <= rightNum
	default:
		return leftNum >= rightNum
	}
}

func evaluateUnaryMinus(operand interface{}) interface{} {
	num, ok := arithmeticOperand(operand)
	if !ok {
		return nil
	}
	if isInteger(operand) {
		return -int(num)
	}
	return -num
}

func evaluateUnaryPlus(operand interface{}) interface{} {
	num, ok := arithmeticOperand(operand)
	if !ok {
		return nil
	}
	if isInteger(operand) {
		return int(num)
	}
	return num
}
