package xtpl

import (
	"reflect"
	"testing"
	"time"
)

func callFunction(t *testing.T, name string, args ...interface{}) (interface{}, error) {
	t.Helper()
	fn, ok := GetDefaultFunctionRegistry().GetFunction(name)
	if !ok {
		t.Fatalf("function %s is not registered", name)
	}
	return fn.Call(args...)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []interface{}
		want interface{}
	}{
		// strings
		{"undef nil", "undef", []interface{}{nil}, ""},
		{"undef value", "undef", []interface{}{0}, 0},
		{"defaultValue empty", "defaultValue", []interface{}{"", "none"}, "none"},
		{"defaultValue set", "defaultValue", []interface{}{"x", "none"}, "x"},
		{"htmlEncode", "htmlEncode", []interface{}{`<a href="x">&</a>`}, "&lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;"},
		{"htmlDecode", "htmlDecode", []interface{}{"&lt;b&gt; &amp; &quot;"}, `<b> & "`},
		{"trim", "trim", []interface{}{"  x \n"}, "x"},
		{"lowercase", "lowercase", []interface{}{"ABC"}, "abc"},
		{"uppercase number", "uppercase", []interface{}{12}, "12"},
		{"capitalize", "capitalize", []interface{}{"hELLO"}, "Hello"},
		{"nl2br", "nl2br", []interface{}{"a\nb"}, "a<br/>b"},
		{"stripTags", "stripTags", []interface{}{"<p>Hello <b>world</b> &amp; co</p>"}, "Hello world & co"},
		{"stripScripts", "stripScripts", []interface{}{"a<script type=\"x\">alert(1)</script>b"}, "ab"},
		{"sanitize", "sanitize", []interface{}{`<b onclick="x()">hi</b><script>bad()</script>`}, "<b>hi</b>"},
		{"substr", "substr", []interface{}{"abcdef", 1, 3}, "bcd"},
		{"substr to end", "substr", []interface{}{"abcdef", 2}, "cdef"},
		{"substr negative start", "substr", []interface{}{"abcdef", -2}, "ef"},
		{"substr past end", "substr", []interface{}{"abc", 5}, ""},
		{"ellipsis short", "ellipsis", []interface{}{"short", 10}, "short"},
		{"ellipsis cut", "ellipsis", []interface{}{"abcdefghij", 6}, "abc..."},
		{"ellipsis word", "ellipsis", []interface{}{"The quick brown fox jumps", 18, true}, "The quick brown..."},
		{"plural one", "plural", []interface{}{1, "item"}, "1 item"},
		{"plural many", "plural", []interface{}{3, "item"}, "3 items"},
		{"plural custom", "plural", []interface{}{2, "child", "children"}, "2 children"},
		{"plural undefined", "plural", []interface{}{nil, "item"}, ""},

		// numbers
		{"usMoney", "usMoney", []interface{}{1234.5}, "$1,234.50"},
		{"usMoney negative", "usMoney", []interface{}{-3.456}, "-$3.46"},
		{"usMoney string", "usMoney", []interface{}{"42"}, "$42.00"},
		{"number grouped", "number", []interface{}{1234567.891, "0,000.00"}, "1,234,567.89"},
		{"number plain", "number", []interface{}{1234.5678, "0.0"}, "1234.6"},
		{"number integer", "number", []interface{}{1234.5678, "0"}, "1235"},
		{"number i18n", "number", []interface{}{1234.5, "0.000,00/i"}, "1.234,50"},
		{"number prefix and suffix", "number", []interface{}{12, "0.00 EUR"}, "12.00 EUR"},
		{"number negative", "number", []interface{}{-5, "0.0"}, "-5.0"},
		{"number not a number", "number", []interface{}{"abc", "0.00"}, ""},
		{"number without mask", "number", []interface{}{7}, 7},
		{"round", "round", []interface{}{3.14159, 2}, 3.14},
		{"round half away from zero", "round", []interface{}{2.5}, 3.0},
		{"fileSize bytes", "fileSize", []interface{}{512}, "512 bytes"},
		{"fileSize KB", "fileSize", []interface{}{1536}, "1.5 KB"},
		{"fileSize MB", "fileSize", []interface{}{5 * 1048576}, "5 MB"},
		{"format", "format", []interface{}{3.14159, "%.2f"}, "3.14"},

		// humanize
		{"bytes", "bytes", []interface{}{82854982}, "83 MB"},
		{"comma", "comma", []interface{}{1234567}, "1,234,567"},
		{"comma decimals", "comma", []interface{}{1234.5678, 2}, "1,234.57"},
		{"comma decimals round up", "comma", []interface{}{1.996, 2}, "2"},
		{"comma decimals round half away", "comma", []interface{}{-2.5, 0}, "-3"},
		{"ordinal", "ordinal", []interface{}{22}, "22nd"},

		// misc
		{"empty nil", "empty", []interface{}{nil}, true},
		{"empty slice", "empty", []interface{}{[]interface{}{}}, true},
		{"empty value", "empty", []interface{}{"x"}, false},
		{"coalesce", "coalesce", []interface{}{nil, "", "x", "y"}, "x"},
		{"list", "list", []interface{}{1, 2}, []interface{}{1, 2}},
		{"sum ints", "sum", []interface{}{[]interface{}{1, 2, 3}}, 6},
		{"sum floats", "sum", []interface{}{[]interface{}{1, 2.5}}, 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := callFunction(t, tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("%s(%v) error: %v", tt.fn, tt.args, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s(%v) = %#v, want %#v", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestFunctionArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []interface{}
	}{
		{"too few", "substr", []interface{}{"abc"}},
		{"too many", "trim", []interface{}{"a", "b"}},
		{"bad start", "substr", []interface{}{"abc", "x"}},
		{"bad length", "ellipsis", []interface{}{"abc", 1.5}},
		{"bad mask", "number", []interface{}{1, "0.0.0"}},
		{"bad date", "date", []interface{}{"not a date"}},
		{"sum non-list", "sum", []interface{}{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callFunction(t, tt.fn, tt.args...)
			if err == nil {
				t.Fatalf("%s(%v) expected error", tt.fn, tt.args)
			}
			if !IsFunctionError(err) {
				t.Errorf("%s(%v) error = %T, want FunctionError", tt.fn, tt.args, err)
			}
		})
	}
}

func TestDateFunction(t *testing.T) {
	when := time.Date(2024, time.March, 5, 14, 7, 9, 123000000, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		mask  interface{}
		want  string
	}{
		{"default mask", when, nil, "03/05/2024"},
		{"iso", when, "Y-m-d H:i:s", "2024-03-05 14:07:09"},
		{"names", when, "l, F jS", "Tuesday, March 5th"},
		{"short names", when, "D M y", "Tue Mar 24"},
		{"twelve hour", when, "g:i a / h A", "2:07 pm / 02 PM"},
		{"week and year day", when, "W z N w", "10 64 2 2"},
		{"month facts", when, "t L n", "31 1 3"},
		{"milliseconds", when, "s.u", "09.123"},
		{"timezone", when, "O P T Z", "+0000 +00:00 UTC 0"},
		{"iso 8601", when, "c", "2024-03-05T14:07:09+00:00"},
		{"unix", when, "U", "1709647629"},
		{"escaped", when, `\Y\e\a\r: Y`, "Year: 2024"},
		{"string input", "2024-03-05", "d.m.Y", "05.03.2024"},
		{"rfc3339 input", "2024-03-05T14:07:09Z", "H:i", "14:07"},
		{"unix input", int64(1709647629), "Y", "2024"},
		{"millisecond input", int64(1709647629000), "Y", "2024"},
		{"nil input", nil, "Y", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []interface{}{tt.value}
			if tt.mask != nil {
				args = append(args, tt.mask)
			}
			got, err := callFunction(t, "date", args...)
			if err != nil {
				t.Fatalf("date(%v) error: %v", args, err)
			}
			if got != tt.want {
				t.Errorf("date(%v) = %q, want %q", args, got, tt.want)
			}
		})
	}
}

func TestOrdinalSuffix(t *testing.T) {
	for day, want := range map[int]string{1: "st", 2: "nd", 3: "rd", 4: "th", 11: "th", 12: "th", 13: "th", 21: "st", 22: "nd", 23: "rd", 31: "st"} {
		if got := ordinalSuffix(day); got != want {
			t.Errorf("ordinalSuffix(%d) = %q, want %q", day, got, want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	tests := []struct {
		value interface{}
		want  string
	}{
		{fixed.Add(-3 * time.Hour), "3 hours ago"},
		{fixed.Add(2 * 24 * time.Hour), "2 days from now"},
		{nil, ""},
	}
	for _, tt := range tests {
		got, err := callFunction(t, "timeAgo", tt.value)
		if err != nil {
			t.Fatalf("timeAgo(%v) error: %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("timeAgo(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if len(registry.ListFunctions()) != 0 {
		t.Fatal("new registry should be empty")
	}

	fn := NewSimpleFunction("greet", 0, 1, func(args ...interface{}) (interface{}, error) {
		return "hi", nil
	})
	if err := registry.RegisterFunction(fn); err != nil {
		t.Fatalf("RegisterFunction() error: %v", err)
	}
	if err := registry.RegisterFunction(NewSimpleFunction("", 0, 0, nil)); err == nil {
		t.Error("expected error for empty function name")
	}

	got, ok := registry.GetFunction("greet")
	if !ok || got.Name() != "greet" || got.MinArgs() != 0 || got.MaxArgs() != 1 {
		t.Errorf("GetFunction(greet) = %v, %v", got, ok)
	}

	builtins := NewRegistryWithBuiltins().ListFunctions()
	for _, name := range []string{"date", "ellipsis", "fileSize", "htmlEncode", "number", "usMoney", "timeAgo"} {
		found := false
		for _, b := range builtins {
			if b == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("builtin %s missing from %v", name, builtins)
		}
	}
}
