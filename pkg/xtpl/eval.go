package xtpl

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Data is the usual shape of a render context
type Data map[string]interface{}

// lookupField reads a named field from a map or struct. The boolean reports
// whether the field exists, which lets identifiers fall back to scope names.
func lookupField(current interface{}, field string) (interface{}, bool) {
	if current == nil {
		return nil, false
	}

	switch v := current.(type) {
	case Data:
		val, ok := v[field]
		return val, ok
	case map[string]interface{}:
		val, ok := v[field]
		return val, ok
	case map[string]string:
		val, ok := v[field]
		return val, ok
	case map[string]int:
		val, ok := v[field]
		return val, ok
	case map[string]float64:
		val, ok := v[field]
		return val, ok
	case map[string]bool:
		val, ok := v[field]
		return val, ok
	}

	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Struct:
		return lookupStructField(rv, field)
	}

	return nil, false
}

func lookupStructField(rv reflect.Value, field string) (interface{}, bool) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if tagName, _, _ := strings.Cut(tag, ","); tagName != "" && tagName != "-" {
				name = tagName
			}
		}
		if name == field || sf.Name == field {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// accessField is lookupField plus the .length pseudo property.
func accessField(current interface{}, field string) interface{} {
	if val, ok := lookupField(current, field); ok {
		return val
	}
	if field == "length" {
		if n, ok := lengthOf(current); ok {
			return n
		}
	}
	return nil
}

func lengthOf(val interface{}) (int, bool) {
	if val == nil {
		return 0, false
	}
	if s, ok := val.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// accessIndex reads element index from a slice or array. Negative indices
// count from the end. Out of range yields nil.
func accessIndex(current interface{}, index int) interface{} {
	if current == nil {
		return nil
	}

	switch v := current.(type) {
	case []interface{}:
		if index < 0 {
			index = len(v) + index
		}
		if index >= 0 && index < len(v) {
			return v[index]
		}
		return nil
	case string:
		runes := []rune(v)
		if index < 0 {
			index = len(runes) + index
		}
		if index >= 0 && index < len(runes) {
			return string(runes[index])
		}
		return nil
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if index < 0 {
			index = rv.Len() + index
		}
		if index >= 0 && index < rv.Len() {
			return rv.Index(index).Interface()
		}
	}

	return nil
}

// iterable returns the elements of an array-like value. Strings are not
// array-like.
func iterable(val interface{}) ([]interface{}, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false
	case []interface{}:
		return v, true
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// FormatValue converts a value to its string representation
func FormatValue(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', 10, 32)
	case float64:
		if math.IsNaN(v) {
			return "NaN"
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return strconv.FormatFloat(v, 'g', 15, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isTruthy follows the toolkit's script semantics: nil, false, zero, NaN and
// the empty string are false; every other value, empty collections included,
// is true.
func isTruthy(val interface{}) bool {
	if val == nil {
		return false
	}

	switch v := val.(type) {
	case bool:
		return v
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := toFloat64(v)
		return n != 0
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return !rv.IsNil()
	}
	return true
}

func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		if v == float32(int(v)) {
			return int(v), true
		}
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func isInteger(val interface{}) bool {
	switch val.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// toNumber is the lenient numeric conversion formatters use: numeric strings
// parse, everything else fails.
func toNumber(val interface{}) (float64, bool) {
	if n, ok := toFloat64(val); ok {
		return n, true
	}
	if s, ok := val.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
