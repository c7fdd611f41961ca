// Package xtpl compiles XTemplate-style text templates into reusable render
// functions.
//
// A template is compiled once and rendered many times against different
// data. Compilation splits the source into blocks, compiles every inline
// token and code span into an expression tree and reports malformed markup
// up front; rendering only evaluates.
//
// # Quick Start
//
//	tpl, err := xtpl.Compile(`<tpl for="items"><p>{name:uppercase}</p></tpl>`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := tpl.Render(xtpl.Data{
//	    "items": []interface{}{
//	        xtpl.Data{"name": "alpha"},
//	        xtpl.Data{"name": "beta"},
//	    },
//	})
//	// out == "<p>ALPHA</p><p>BETA</p>"
//
// # Template Syntax
//
// Blocks:
//
//	<tpl for="items">...</tpl>          - Repeat for each element of items
//	<tpl for=".">...</tpl>              - Iterate the current value
//	<tpl if="age &gt; 18">...</tpl>     - Render only when the test is truthy
//	<tpl exec="log(values)">...</tpl>   - Evaluate for side effects; truthy suppresses
//
// Inline tokens:
//
//	{name}                   - Field of the current value
//	{.}                      - The current value itself
//	{#}                      - 1-based position in the enclosing loop
//	{parent.title}           - Dotted paths resolve their head in block scope
//	{price:usMoney}          - Formatter call
//	{text:ellipsis(20)}      - Formatter with extra arguments
//	{qty * 2}                - Inline arithmetic
//	{total:this.fmtTotal}    - Template member called with (value, values)
//
// Code spans evaluate a full expression:
//
//	{[ values.first + " " + values.last ]}
//	{[ xindex % 2 === 0 ? "even" : "odd" ]}
//	{[ fm.date(values.created, "Y-m-d") ]}
//
// Inside expressions values is the current value, parent the enclosing one,
// xindex and xcount the loop position and size, and fm the formatter
// library. Fields of the current value can be named directly.
//
// # Formatters
//
// Formatters live in a FunctionRegistry. The default registry carries the
// built-in set (undef, htmlEncode, trim, substr, ellipsis, usMoney, number,
// date, fileSize, plural and friends); custom ones are added with
// RegisterFunction or passed per template with WithFunctions.
//
// # Caching
//
// TemplateCache keeps compiled templates by key with LRU eviction and an
// optional TTL. RenderString uses a process-wide cache keyed by source.
//
// # Configuration
//
// Config is read from the environment (XTPL_*) or from a YAML, TOML or JSON
// file with LoadConfigFile. See Config for the available settings.
package xtpl
