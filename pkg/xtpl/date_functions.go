package xtpl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// defaultDateFormat is used when date() is called without a mask
const defaultDateFormat = "m/d/Y"

// Date layouts tried, in order, when a date arrives as a string
var commonDateFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",

	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"02.01.2006",

	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
}

// parseDate converts a time, a unix timestamp or a date string into a time.
// Integers above 1e10 are taken as milliseconds.
func parseDate(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("cannot parse nil as date")
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("cannot parse nil time pointer")
		}
		return *v, nil
	case int64:
		if v > 1e10 {
			return time.Unix(v/1000, (v%1000)*1e6), nil
		}
		return time.Unix(v, 0), nil
	case string:
		if v == "" {
			return time.Time{}, fmt.Errorf("cannot parse empty string as date")
		}
		for _, layout := range commonDateFormats {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, nil
			}
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parseDate(n)
		}
		return time.Time{}, fmt.Errorf("could not parse date string: %s", v)
	}

	if isInteger(value) {
		n, _ := toInt(value)
		return parseDate(int64(n))
	}
	if f, ok := toFloat64(value); ok {
		return parseDate(int64(f))
	}
	return parseDate(fmt.Sprintf("%v", value))
}

// formatDate renders t with a PHP style mask such as "Y-m-d H:i:s". A
// backslash emits the next character literally; characters that are not
// format codes are copied as they are.
func formatDate(t time.Time, mask string) string {
	var b strings.Builder
	runes := []rune(mask)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\\' {
			if i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			}
			continue
		}
		if s, ok := dateCode(t, c); ok {
			b.WriteString(s)
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func dateCode(t time.Time, c rune) (string, bool) {
	switch c {
	case 'd':
		return t.Format("02"), true
	case 'D':
		return t.Format("Mon"), true
	case 'j':
		return strconv.Itoa(t.Day()), true
	case 'l':
		return t.Format("Monday"), true
	case 'N':
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return strconv.Itoa(wd), true
	case 'S':
		return ordinalSuffix(t.Day()), true
	case 'w':
		return strconv.Itoa(int(t.Weekday())), true
	case 'z':
		return strconv.Itoa(t.YearDay() - 1), true
	case 'W':
		_, week := t.ISOWeek()
		return fmt.Sprintf("%02d", week), true
	case 'F':
		return t.Format("January"), true
	case 'm':
		return t.Format("01"), true
	case 'M':
		return t.Format("Jan"), true
	case 'n':
		return strconv.Itoa(int(t.Month())), true
	case 't':
		return strconv.Itoa(daysInMonth(t)), true
	case 'L':
		if daysInMonth(time.Date(t.Year(), time.February, 1, 0, 0, 0, 0, time.UTC)) == 29 {
			return "1", true
		}
		return "0", true
	case 'o':
		year, _ := t.ISOWeek()
		return strconv.Itoa(year), true
	case 'Y':
		return t.Format("2006"), true
	case 'y':
		return t.Format("06"), true
	case 'a':
		return t.Format("pm"), true
	case 'A':
		return t.Format("PM"), true
	case 'g':
		return t.Format("3"), true
	case 'G':
		return strconv.Itoa(t.Hour()), true
	case 'h':
		return t.Format("03"), true
	case 'H':
		return t.Format("15"), true
	case 'i':
		return t.Format("04"), true
	case 's':
		return t.Format("05"), true
	case 'u':
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)), true
	case 'O':
		return t.Format("-0700"), true
	case 'P':
		return t.Format("-07:00"), true
	case 'T':
		return t.Format("MST"), true
	case 'Z':
		_, offset := t.Zone()
		return strconv.Itoa(offset), true
	case 'c':
		return t.Format("2006-01-02T15:04:05-07:00"), true
	case 'U':
		return strconv.FormatInt(t.Unix(), 10), true
	}
	return "", false
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// registerDateFunctions registers the date formatters
func registerDateFunctions(registry *DefaultFunctionRegistry) {
	// date(value, mask) - mask defaults to m/d/Y
	registry.RegisterFunction(NewSimpleFunction("date", 1, 2, func(args ...interface{}) (interface{}, error) {
		if args[0] == nil || args[0] == "" {
			return "", nil
		}
		mask := defaultDateFormat
		if len(args) == 2 && args[1] != nil && args[1] != "" {
			mask = FormatValue(args[1])
		}
		t, err := parseDate(args[0])
		if err != nil {
			return nil, NewFunctionError("date", args, err.Error())
		}
		return formatDate(t, mask), nil
	}))
}
