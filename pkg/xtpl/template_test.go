package xtpl

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data interface{}
		want string
	}{
		{
			name: "literal text",
			src:  "Hello, world",
			data: Data{},
			want: "Hello, world",
		},
		{
			name: "inline substitution",
			src:  "Hello, {name}!",
			data: Data{"name": "Ada"},
			want: "Hello, Ada!",
		},
		{
			name: "unknown field renders empty",
			src:  "{unknownField}",
			data: Data{},
			want: "",
		},
		{
			name: "loop index and current value",
			src:  `<tpl for=".">Count: {#}, Value: {.}</tpl>`,
			data: []interface{}{10, 20, 30},
			want: "Count: 1, Value: 10Count: 2, Value: 20Count: 3, Value: 30",
		},
		{
			name: "for over a field",
			src:  `<ul><tpl for="items"><li>{name}</li></tpl></ul>`,
			data: Data{"items": []interface{}{Data{"name": "a"}, Data{"name": "b"}}},
			want: "<ul><li>a</li><li>b</li></ul>",
		},
		{
			name: "for over typed slice",
			src:  `<tpl for="rows">{id};</tpl>`,
			data: Data{"rows": []map[string]interface{}{{"id": 1}, {"id": 2}}},
			want: "1;2;",
		},
		{
			name: "for over empty array renders nothing",
			src:  `[<tpl for="items">x</tpl>]`,
			data: Data{"items": []interface{}{}},
			want: "[]",
		},
		{
			name: "for over object renders once",
			src:  `<tpl for="user">{name} ({#}/{[xcount]})</tpl>`,
			data: Data{"user": Data{"name": "Ada"}},
			want: "Ada (1/1)",
		},
		{
			name: "for over undefined renders once with undefined",
			src:  `<tpl for="missing">[{name}]</tpl>`,
			data: Data{},
			want: "[]",
		},
		{
			name: "xcount inside loop",
			src:  `<tpl for=".">{[xindex]}/{[xcount]} </tpl>`,
			data: []interface{}{"a", "b"},
			want: "1/2 2/2 ",
		},
		{
			name: "parent access",
			src:  `<tpl for="kids">{name} of {parent.name};</tpl>`,
			data: Data{"name": "Ann", "kids": []interface{}{Data{"name": "Bo"}, Data{"name": "Cy"}}},
			want: "Bo of Ann;Cy of Ann;",
		},
		{
			name: "parent token",
			src:  `<tpl for="kids">{[ parent.name ]}-{name} </tpl>`,
			data: Data{"name": "Ann", "kids": []interface{}{Data{"name": "Bo"}}},
			want: "Ann-Bo ",
		},
		{
			name: "for dot dot rebinds to parent",
			src:  `<tpl for="kid"><tpl for="..">{name}</tpl></tpl>`,
			data: Data{"name": "Ann", "kid": Data{"name": "Bo"}},
			want: "Ann",
		},
		{
			name: "nested loops keep their own index",
			src:  `<tpl for="rows">{#}:<tpl for="cells">{#}</tpl>;</tpl>`,
			data: Data{"rows": []interface{}{
				Data{"cells": []interface{}{"a", "b"}},
				Data{"cells": []interface{}{"c"}},
			}},
			want: "1:12;2:1;",
		},
		{
			name: "if false renders nothing",
			src:  `<tpl if="values.x > 0">positive</tpl>`,
			data: Data{"x": -1},
			want: "",
		},
		{
			name: "if true renders body",
			src:  `<tpl if="values.x > 0">positive</tpl>`,
			data: Data{"x": 5},
			want: "positive",
		},
		{
			name: "less and greater than inside one opener",
			src:  `<tpl for="."><tpl if="values >= 2 && xindex < 3">{.}</tpl></tpl>`,
			data: []interface{}{1, 2, 3},
			want: "2",
		},
		{
			name: "root parent token renders empty",
			src:  `[{..}][{[ parent.name ]}]`,
			data: Data{"name": "Ann"},
			want: "[][]",
		},
		{
			name: "root parent is an empty object",
			src:  `<tpl if="parent">object</tpl>`,
			data: Data{},
			want: "object",
		},
		{
			name: "encoded comparison in if",
			src:  `<tpl if="age &gt;= 18 &amp;&amp; name">adult {name}</tpl>`,
			data: Data{"age": 20, "name": "Bo"},
			want: "adult Bo",
		},
		{
			name: "if inside for filters",
			src:  `<tpl for="."><tpl if="values % 2 == 0">{.} </tpl></tpl>`,
			data: []interface{}{1, 2, 3, 4},
			want: "2 4 ",
		},
		{
			name: "exec truthy suppresses",
			src:  `<tpl exec="true">hidden</tpl>`,
			data: Data{},
			want: "",
		},
		{
			name: "exec falsy renders",
			src:  `<tpl exec="flag">shown</tpl>`,
			data: Data{"flag": false},
			want: "shown",
		},
		{
			name: "formatter",
			src:  `{name:uppercase}`,
			data: Data{"name": "ada"},
			want: "ADA",
		},
		{
			name: "formatter with args",
			src:  `{text:ellipsis(8)}`,
			data: Data{"text": "A long sentence"},
			want: "A lon...",
		},
		{
			name: "formatter gets undefined",
			src:  `[{missing:htmlEncode}]`,
			data: Data{},
			want: "[]",
		},
		{
			name: "default value formatter",
			src:  `{missing:defaultValue("n/a")}`,
			data: Data{},
			want: "n/a",
		},
		{
			name: "inline math",
			src:  `{qty * 2} {qty+1} {price*qty}`,
			data: Data{"qty": 3, "price": 2},
			want: "6 4 {price*qty}",
		},
		{
			name: "math before format",
			src:  `{price:usMoney*2}`,
			data: Data{"price": 1.5},
			want: "$3.00",
		},
		{
			name: "dotted path",
			src:  `{user.address.city}`,
			data: Data{"user": Data{"address": Data{"city": "Oslo"}}},
			want: "Oslo",
		},
		{
			name: "code span",
			src:  `{[ values.first + " " + values.last ]}`,
			data: Data{"first": "Ada", "last": "Lovelace"},
			want: "Ada Lovelace",
		},
		{
			name: "code span with escaped bracket",
			src:  `{[ values.list[1\] ]}`,
			data: Data{"list": []interface{}{"a", "b"}},
			want: "b",
		},
		{
			name: "code span with ternary and formatter",
			src:  `<tpl for=".">{[ xindex % 2 === 0 ? "even" : fm.uppercase("odd") ]} </tpl>`,
			data: []interface{}{1, 2, 3},
			want: "ODD even ODD ",
		},
		{
			name: "undefined in code span renders empty",
			src:  `[{[ values.nope ]}]`,
			data: Data{},
			want: "[]",
		},
		{
			name: "struct data",
			src:  `{Name} is {age}`,
			data: struct {
				Name string
				Age  int `json:"age"`
			}{"Ada", 36},
			want: "Ada is 36",
		},
		{
			name: "nil data",
			src:  `[{name}]`,
			data: nil,
			want: "[]",
		},
		{
			name: "text outside tokens is untouched",
			src:  "a { b } {} {[ ]",
			data: Data{},
			want: "a { b } {} {[ ]",
		},
		{
			name: "multi line template",
			src:  "<tpl for=\"items\">\n- {.}\n</tpl>",
			data: Data{"items": []interface{}{"x", "y"}},
			want: "\n- x\n\n- y\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := Compile(tt.src)
			require.NoError(t, err)
			got, err := tpl.Render(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderMembers(t *testing.T) {
	tpl, err := Compile(
		`<tpl for="people"><tpl if="this.isAdult(age)">{name} is {age:this.label}. </tpl></tpl>`,
		WithMember("isAdult", func(args ...interface{}) (interface{}, error) {
			n, _ := toInt(args[0])
			return n >= 18, nil
		}),
		WithMember("label", func(args ...interface{}) (interface{}, error) {
			// value, then the current record
			record := args[1].(Data)
			return fmt.Sprintf("%v years (%s)", args[0], record["name"]), nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"isAdult", "label"}, tpl.Members())

	out, err := tpl.Render(Data{"people": []interface{}{
		Data{"name": "Ann", "age": 30},
		Data{"name": "Bo", "age": 9},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Ann is 30 years (Ann). ", out)
}

// visitLog records member calls made while rendering
type visitLog struct {
	visits []string
	stops  int
}

func (v *visitLog) options() []Option {
	return []Option{
		WithMember("visit", func(args ...interface{}) (interface{}, error) {
			v.visits = append(v.visits, fmt.Sprintf("%v/%v", args[0], args[1]))
			return nil, nil
		}),
		WithMember("stop", func(args ...interface{}) (interface{}, error) {
			v.stops++
			return true, nil
		}),
	}
}

func TestBodyEvaluationCounts(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		data       interface{}
		want       string
		wantVisits []string
		wantStops  int
	}{
		{
			name:       "for runs the body once per element",
			src:        `<tpl for="items">{[ this.visit(xindex, xcount) ]}</tpl>`,
			data:       Data{"items": []interface{}{"a", "b", "c"}},
			wantVisits: []string{"1/3", "2/3", "3/3"},
		},
		{
			name: "for over an empty array never runs the body",
			src:  `<tpl for="items">{[ this.visit(xindex, xcount) ]}</tpl>`,
			data: Data{"items": []interface{}{}},
		},
		{
			name:       "for over a scalar runs the body once",
			src:        `<tpl for="item">{[ this.visit(xindex, xcount) ]}{.}</tpl>`,
			data:       Data{"item": "solo"},
			want:       "solo",
			wantVisits: []string{"1/1"},
		},
		{
			name: "false if never runs the body",
			src:  `<tpl if="values.x > 0">{[ this.visit(xindex, xcount) ]}positive</tpl>`,
			data: Data{"x": -1},
		},
		{
			name:       "true if runs the body once",
			src:        `<tpl if="values.x > 0">{[ this.visit(xindex, xcount) ]}positive</tpl>`,
			data:       Data{"x": 5},
			want:       "positive",
			wantVisits: []string{"1/1"},
		},
		{
			name:       "falsy exec runs for its side effect and the body renders",
			src:        `<tpl exec="this.visit(values.x, 0)">body {x}</tpl>`,
			data:       Data{"x": 7},
			want:       "body 7",
			wantVisits: []string{"7/0"},
		},
		{
			name:      "truthy exec suppresses the body",
			src:       `<tpl exec="this.stop()">{[ this.visit(xindex, xcount) ]}body</tpl>`,
			data:      Data{},
			wantStops: 1,
		},
		{
			name: "false if skips exec",
			src:  `<tpl if="false" exec="this.stop()">body</tpl>`,
			data: Data{},
		},
		{
			name:       "exec runs once per loop element",
			src:        `<tpl for="items"><tpl exec="this.visit(values, xindex)">{.}</tpl></tpl>`,
			data:       Data{"items": []interface{}{"a", "b"}},
			want:       "ab",
			wantVisits: []string{"a/1", "b/2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &visitLog{}
			tpl, err := Compile(tt.src, log.options()...)
			require.NoError(t, err)

			out, err := tpl.Render(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, len(tt.wantVisits), len(log.visits), "visits: %v", log.visits)
			if len(tt.wantVisits) > 0 {
				assert.Equal(t, tt.wantVisits, log.visits)
			}
			assert.Equal(t, tt.wantStops, log.stops)
		})
	}
}

func TestRenderCustomRegistry(t *testing.T) {
	registry := NewRegistryWithBuiltins()
	require.NoError(t, registry.RegisterFunction(NewSimpleFunction("shout", 1, 1, func(args ...interface{}) (interface{}, error) {
		return strings.ToUpper(FormatValue(args[0])) + "!", nil
	})))

	tpl, err := Compile(`{name:shout} {name:trim}`, WithFunctions(registry))
	require.NoError(t, err)
	out, err := tpl.Render(Data{"name": "hey"})
	require.NoError(t, err)
	assert.Equal(t, "HEY! hey", out)

	_, exists := GetDefaultFunctionRegistry().GetFunction("shout")
	assert.False(t, exists, "custom registry must not leak into the default one")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(error) bool
	}{
		{"unclosed block", `<tpl for="a">x`, IsTemplateSyntaxError},
		{"stray closer", `x</tpl>`, IsTemplateSyntaxError},
		{"bad for expression", `<tpl for="a +">x</tpl>`, IsParseError},
		{"bad if expression", `<tpl if="(a">x</tpl>`, IsParseError},
		{"bad code span", `{[ 1 + ]}`, IsParseError},
		{"bad format args", `{a:ellipsis(1,)}`, IsParseError},
		{"empty path segment", `{a..b}`, IsParseError},
		{"reference to later block", `{xtpl3}`, IsParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type %T: %v", err, err)
		})
	}
}

func TestCompileDepthLimit(t *testing.T) {
	src := strings.Repeat("<tpl>", 5) + "x" + strings.Repeat("</tpl>", 5)

	_, err := Compile(src, WithConfig(&Config{MaxRenderDepth: 5}))
	require.Error(t, err)
	assert.True(t, IsTemplateSyntaxError(err))

	tpl, err := Compile(src, WithConfig(&Config{MaxRenderDepth: 6}))
	require.NoError(t, err)
	out, err := tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestStrictMode(t *testing.T) {
	src := `{name:nosuchformat}`

	_, err := Compile(src, WithConfig(&Config{StrictMode: true}))
	require.Error(t, err)
	assert.True(t, IsFunctionError(err))

	tpl, err := Compile(src)
	require.NoError(t, err, "unknown formatters only fail at render time outside strict mode")
	_, err = tpl.Render(Data{"name": "x"})
	require.Error(t, err)
	assert.True(t, IsEvaluationError(err))
	assert.True(t, IsFunctionError(err))
}

func TestDisableFormats(t *testing.T) {
	tpl, err := Compile(`{name:uppercase}`, WithConfig(&Config{DisableFormats: true}))
	require.NoError(t, err)
	out, err := tpl.Render(Data{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", out)
}

func TestRenderErrors(t *testing.T) {
	tpl, err := Compile(`<tpl for="items">{[ 10 / values ]}</tpl>`)
	require.NoError(t, err)

	_, err = tpl.Render(Data{"items": []interface{}{2, 0}})
	require.Error(t, err)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, 0, evalErr.BlockID)
	assert.Equal(t, `{[ 10 / values ]}`, evalErr.Expression)
	assert.ErrorIs(t, err, errDivisionByZero)
}

func TestRenderRecoversPanics(t *testing.T) {
	tpl, err := Compile(`{a:this.boom}`, WithMember("boom", func(args ...interface{}) (interface{}, error) {
		panic("boom")
	}))
	require.NoError(t, err)

	_, err = tpl.Render(Data{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
}

func TestExecute(t *testing.T) {
	tpl := MustCompile(`Hi {name}`)
	var buf bytes.Buffer
	require.NoError(t, tpl.Execute(&buf, Data{"name": "Ada"}))
	assert.Equal(t, "Hi Ada", buf.String())
}

func TestCompileTwiceIsIndependent(t *testing.T) {
	src := `<tpl for="."><tpl if="values &gt; 1">{.},</tpl></tpl>`
	data := []interface{}{1, 2, 3}

	a := MustCompile(src)
	b := MustCompile(src)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, src, a.Source())

	outA, err := a.Render(data)
	require.NoError(t, err)
	outB, err := b.Render(data)
	require.NoError(t, err)
	assert.Equal(t, "2,3,", outA)
	assert.Equal(t, outA, outB)
}

func TestBlocks(t *testing.T) {
	tpl := MustCompile(`<tpl for="a">x<tpl if="b &amp;&amp; c">y</tpl></tpl>`)
	blocks := tpl.Blocks()
	require.Len(t, blocks, 3)

	assert.Equal(t, BlockInfo{ID: 0, If: "b && c", Body: "y"}, blocks[0])
	assert.Equal(t, BlockInfo{ID: 1, For: "a", Body: "x{xtpl0}"}, blocks[1])
	assert.Equal(t, BlockInfo{ID: 2, Body: "{xtpl1}", Master: true}, blocks[2])

	assert.Equal(t, `block 0 if="b && c"`, blocks[0].String())
	assert.Equal(t, "block 2", blocks[2].String())
}

func TestConcurrentRender(t *testing.T) {
	tpl := MustCompile(`<tpl for="items">{#}:{name:uppercase};</tpl>`)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("n%d", i)
			out, err := tpl.Render(Data{"items": []interface{}{Data{"name": name}, Data{"name": name}}})
			if err != nil {
				return err
			}
			want := fmt.Sprintf("1:N%d;2:N%d;", i, i)
			if out != want {
				return fmt.Errorf("got %q, want %q", out, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
