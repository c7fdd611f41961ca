package xtpl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// the numeric part of a mask such as "$0,000.00 USD"
	numberMaskRegex = regexp.MustCompile(`[\d,?.]+`)
	maskDigitsRegex = regexp.MustCompile(`[^\d.]`)
	maskI18nRegex   = regexp.MustCompile(`[^\d,]`)
)

// formatNumber applies a toolkit number mask. "0,000.00" groups thousands
// and keeps two decimals, "0.0" keeps one decimal without grouping, and a
// trailing "/i" swaps the roles of "," and ".". Text around the numeric part
// of the mask is kept.
func formatNumber(v float64, mask string) (string, error) {
	i18n := false
	comma, dec := ",", "."
	if strings.HasSuffix(mask, "/i") {
		mask = strings.TrimSuffix(mask, "/i")
		i18n = true
		comma, dec = ".", ","
	}

	hasComma := strings.Contains(mask, comma)
	var digits string
	if i18n {
		digits = maskI18nRegex.ReplaceAllString(mask, "")
	} else {
		digits = maskDigitsRegex.ReplaceAllString(mask, "")
	}
	parts := strings.Split(digits, dec)
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid number format %q: no more than one decimal separator allowed", mask)
	}
	decimals := 0
	if len(parts) == 2 {
		decimals = len(parts[1])
	}

	neg := v < 0
	v = math.Abs(v)

	var fnum string
	if hasComma {
		tag := language.English
		if i18n {
			tag = language.German
		}
		fnum = message.NewPrinter(tag).Sprintf(fmt.Sprintf("%%.%df", decimals), v)
	} else {
		fnum = strconv.FormatFloat(v, 'f', decimals, 64)
		if i18n {
			fnum = strings.Replace(fnum, ".", ",", 1)
		}
	}

	sign := ""
	if neg && strings.Trim(fnum, "0.,") != "" {
		sign = "-"
	}

	loc := numberMaskRegex.FindStringIndex(mask)
	if loc == nil {
		return sign + fnum, nil
	}
	return sign + mask[:loc[0]] + fnum + mask[loc[1]:], nil
}

// fileSize renders a byte count as bytes, KB or MB with one decimal
func fileSize(size float64) string {
	switch {
	case size < 1024:
		return FormatValue(size) + " bytes"
	case size < 1048576:
		return FormatValue(math.Round(size*10/1024)/10) + " KB"
	default:
		return FormatValue(math.Round(size*10/1048576)/10) + " MB"
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// registerNumberFormatFunctions registers the numeric formatters
func registerNumberFormatFunctions(registry *DefaultFunctionRegistry) {
	// number(value, mask)
	registry.RegisterFunction(NewSimpleFunction("number", 1, 2, func(args ...interface{}) (interface{}, error) {
		if len(args) < 2 || args[1] == nil || args[1] == "" {
			return args[0], nil
		}
		v, ok := toNumber(args[0])
		if !ok {
			return "", nil
		}
		out, err := formatNumber(v, FormatValue(args[1]))
		if err != nil {
			return nil, NewFunctionError("number", args, err.Error())
		}
		return out, nil
	}))

	// usMoney(value)
	registry.RegisterFunction(NewSimpleFunction("usMoney", 1, 1, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			v = 0
		}
		return formatNumber(roundTo(v, 2), "$0,000.00")
	}))

	// round(value, places)
	registry.RegisterFunction(NewSimpleFunction("round", 1, 2, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			return nil, nil
		}
		places := 0
		if len(args) == 2 && args[1] != nil {
			if places, ok = toInt(args[1]); !ok {
				return nil, NewFunctionError("round", args, "precision must be an integer")
			}
		}
		return roundTo(v, places), nil
	}))

	// fileSize(bytes)
	registry.RegisterFunction(NewSimpleFunction("fileSize", 1, 1, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			return "", nil
		}
		return fileSize(v), nil
	}))

	// format(value, pattern) - printf-style formatting of a single value
	registry.RegisterFunction(NewSimpleFunction("format", 2, 2, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil {
			return "", nil
		}
		return fmt.Sprintf(FormatValue(args[1]), args[0]), nil
	}))
}
