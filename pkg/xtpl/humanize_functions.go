package xtpl

import (
	"time"

	"github.com/dustin/go-humanize"
)

// now is replaced in tests to pin relative times
var now = time.Now

// registerHumanizeFunctions registers the human readable formatters
func registerHumanizeFunctions(registry *DefaultFunctionRegistry) {
	// bytes(value) - SI byte sizes such as "83 MB"
	registry.RegisterFunction(NewSimpleFunction("bytes", 1, 1, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			return "", nil
		}
		if v < 0 {
			return "-" + humanize.Bytes(uint64(-v)), nil
		}
		return humanize.Bytes(uint64(v)), nil
	}))

	// comma(value, decimals) - thousands separators
	registry.RegisterFunction(NewSimpleFunction("comma", 1, 2, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			return "", nil
		}
		if len(args) == 2 && args[1] != nil {
			decimals, ok := toInt(args[1])
			if !ok {
				return nil, NewFunctionError("comma", args, "decimals must be an integer")
			}
			// CommafWithDigits truncates, round first like number and round do
			return humanize.CommafWithDigits(roundTo(v, decimals), decimals), nil
		}
		if n, ok := toInt(args[0]); ok {
			return humanize.Comma(int64(n)), nil
		}
		return humanize.Commaf(v), nil
	}))

	// ordinal(value) - 1st, 2nd, 3rd
	registry.RegisterFunction(NewSimpleFunction("ordinal", 1, 1, func(args ...interface{}) (interface{}, error) {
		v, ok := toNumber(args[0])
		if !ok {
			return "", nil
		}
		return humanize.Ordinal(int(v)), nil
	}))

	// timeAgo(value) - "3 hours ago", "2 days from now"
	registry.RegisterFunction(NewSimpleFunction("timeAgo", 1, 1, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil || args[0] == "" {
			return "", nil
		}
		t, err := parseDate(args[0])
		if err != nil {
			return nil, NewFunctionError("timeAgo", args, err.Error())
		}
		return humanize.RelTime(t, now(), "ago", "from now"), nil
	}))
}
