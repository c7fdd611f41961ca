package xtpl

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	stripPolicy    = bluemonday.StrictPolicy()
	sanitizePolicy = bluemonday.UGCPolicy()
	scriptRegex    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
)

// registerStringFunctions registers the text and markup formatters
func registerStringFunctions(registry *DefaultFunctionRegistry) {
	// undef() - empty string for undefined values
	registry.RegisterFunction(NewSimpleFunction("undef", 1, 1, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		return args[0], nil
	}))

	// defaultValue() - fallback for undefined or empty values
	registry.RegisterFunction(NewSimpleFunction("defaultValue", 1, 2, func(args ...interface{}) (interface{}, error) {
		if args[0] != nil && args[0] != "" {
			return args[0], nil
		}
		if len(args) < 2 {
			return "", nil
		}
		return args[1], nil
	}))

	registry.RegisterFunction(newStringFunction("htmlEncode", html.EscapeString))
	registry.RegisterFunction(newStringFunction("htmlDecode", html.UnescapeString))
	registry.RegisterFunction(newStringFunction("trim", strings.TrimSpace))
	registry.RegisterFunction(newStringFunction("lowercase", strings.ToLower))
	registry.RegisterFunction(newStringFunction("uppercase", strings.ToUpper))
	registry.RegisterFunction(newStringFunction("capitalize", capitalize))
	registry.RegisterFunction(newStringFunction("nl2br", func(s string) string {
		return strings.ReplaceAll(s, "\n", "<br/>")
	}))

	// stripTags() - drop every tag, keep the text
	registry.RegisterFunction(newStringFunction("stripTags", func(s string) string {
		return html.UnescapeString(stripPolicy.Sanitize(s))
	}))

	// stripScripts() - drop <script> elements with their content
	registry.RegisterFunction(newStringFunction("stripScripts", func(s string) string {
		return scriptRegex.ReplaceAllString(s, "")
	}))

	// sanitize() - keep safe user-generated markup only
	registry.RegisterFunction(newStringFunction("sanitize", sanitizePolicy.Sanitize))

	// substr(value, start, length)
	registry.RegisterFunction(NewSimpleFunction("substr", 2, 3, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		start, ok := toInt(args[1])
		if !ok {
			return nil, NewFunctionError("substr", args, "start must be an integer")
		}
		length := -1
		if len(args) == 3 && args[2] != nil {
			if length, ok = toInt(args[2]); !ok {
				return nil, NewFunctionError("substr", args, "length must be an integer")
			}
		}
		return substr(FormatValue(args[0]), start, length), nil
	}))

	// ellipsis(value, length, word)
	registry.RegisterFunction(NewSimpleFunction("ellipsis", 2, 3, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		length, ok := toInt(args[1])
		if !ok {
			return nil, NewFunctionError("ellipsis", args, "length must be an integer")
		}
		word := len(args) == 3 && isTruthy(args[2])
		return ellipsis(FormatValue(args[0]), length, word), nil
	}))

	// plural(value, singular, plural)
	registry.RegisterFunction(NewSimpleFunction("plural", 2, 3, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		singular := FormatValue(args[1])
		plural := singular + "s"
		if len(args) == 3 && args[2] != nil && args[2] != "" {
			plural = FormatValue(args[2])
		}
		if looseEquals(args[0], 1) {
			return fmt.Sprintf("%s %s", FormatValue(args[0]), singular), nil
		}
		return fmt.Sprintf("%s %s", FormatValue(args[0]), plural), nil
	}))
}

// newStringFunction adapts a string transform into a one argument formatter
// that renders undefined as the empty string.
func newStringFunction(name string, transform func(string) string) Function {
	return NewSimpleFunction(name, 1, 1, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		return transform(FormatValue(args[0])), nil
	})
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// substr takes length runes from start; a negative start counts from the end
// and a negative length means to the end of the string.
func substr(s string, start, length int) string {
	runes := []rune(s)
	if start < 0 {
		start = len(runes) + start
		if start < 0 {
			start = 0
		}
	}
	if start >= len(runes) {
		return ""
	}
	end := len(runes)
	if length >= 0 && start+length < end {
		end = start + length
	}
	return string(runes[start:end])
}

// ellipsis truncates s to length runes including a trailing "...". With word
// set it prefers to cut at the last space or sentence mark within reach.
func ellipsis(s string, length int, word bool) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	cut := length - 3
	if cut < 0 {
		cut = 0
	}

	if word && length >= 2 {
		vs := string(runes[:length-2])
		index := -1
		for _, mark := range []string{" ", ".", "!", "?"} {
			if i := strings.LastIndex(vs, mark); i > index {
				index = i
			}
		}
		if index != -1 && len([]rune(vs[:index])) >= length-15 {
			return vs[:index] + "..."
		}
	}
	return string(runes[:cut]) + "..."
}
