package xtpl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// An opener's attributes are double quoted, so a '>' inside a value such as
// if="x > 0" does not end the marker.
const openerPattern = `<tpl(?:\s+[\w-]+="[^"]*")*\s*>`

var (
	openerRegex = regexp.MustCompile(openerPattern)
	closerRegex = regexp.MustCompile(`</tpl>`)
	markerRegex = regexp.MustCompile(openerPattern + `|</tpl>`)
	attrRegex   = regexp.MustCompile(`\s(for|if|exec)="([^"]*)"`)
)

// rawBlock is one <tpl> region cut out of the template source, before its
// expressions are compiled.
type rawBlock struct {
	ID     int
	For    string
	If     string
	Exec   string
	Body   string
	Opener string
}

// checkMarkers verifies that every opener has a closer and returns the
// deepest nesting level found.
func checkMarkers(src string) (int, error) {
	var stack [][]int
	maxDepth := 0

	for _, loc := range markerRegex.FindAllStringIndex(src, -1) {
		marker := src[loc[0]:loc[1]]
		if marker == "</tpl>" {
			if len(stack) == 0 {
				line, col := position(src, loc[0])
				return 0, NewTemplateSyntaxError("closing marker without matching <tpl>", marker, line, col)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		stack = append(stack, loc)
		if len(stack) > maxDepth {
			maxDepth = len(stack)
		}
	}

	if len(stack) > 0 {
		loc := stack[len(stack)-1]
		line, col := position(src, loc[0])
		return 0, NewTemplateSyntaxError("unclosed block, missing </tpl>", src[loc[0]:loc[1]], line, col)
	}
	return maxDepth, nil
}

// position converts a byte offset to a 1-based line and column
func position(src string, offset int) (int, int) {
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndex(before, "\n") + 1
	return line, utf8.RuneCountInString(before[lineStart:]) + 1
}

// scanBlocks cuts the template into blocks. The source is wrapped in an outer
// block so the last block returned is always the master. Each pass takes the
// innermost block (the last opener before the first closer) and replaces it
// with a {xtplN} placeholder, so ids follow discovery order.
func scanBlocks(src string, logger *zap.Logger) []rawBlock {
	s := "<tpl>" + src + "</tpl>"
	var blocks []rawBlock
	debug := debugEnabled(logger)

	for {
		closeLoc := closerRegex.FindStringIndex(s)
		if closeLoc == nil {
			break
		}
		openers := openerRegex.FindAllStringIndex(s[:closeLoc[0]], -1)
		if len(openers) == 0 {
			// checkMarkers rules this out for validated input
			break
		}
		openLoc := openers[len(openers)-1]

		block := rawBlock{
			ID:     len(blocks),
			Opener: s[openLoc[0]:openLoc[1]],
			Body:   s[openLoc[1]:closeLoc[0]],
		}
		for _, attr := range attrRegex.FindAllStringSubmatch(block.Opener, -1) {
			value := html.UnescapeString(attr[2])
			switch attr[1] {
			case "for":
				if block.For == "" {
					block.For = value
				}
			case "if":
				if block.If == "" {
					block.If = value
				}
			case "exec":
				if block.Exec == "" {
					block.Exec = value
				}
			}
		}

		if debug {
			logger.Debug("found block",
				zap.Int("id", block.ID),
				zap.String("for", block.For),
				zap.String("if", block.If),
				zap.String("exec", block.Exec),
				zap.Int("body_length", len(block.Body)))
		}

		blocks = append(blocks, block)
		s = s[:openLoc[0]] + placeholder(block.ID) + s[closeLoc[1]:]
	}

	return blocks
}

func placeholder(id int) string {
	return "{xtpl" + strconv.Itoa(id) + "}"
}

func describeBlock(b rawBlock) string {
	var attrs []string
	if b.For != "" {
		attrs = append(attrs, fmt.Sprintf("for=%q", b.For))
	}
	if b.If != "" {
		attrs = append(attrs, fmt.Sprintf("if=%q", b.If))
	}
	if b.Exec != "" {
		attrs = append(attrs, fmt.Sprintf("exec=%q", b.Exec))
	}
	return strings.Join(attrs, " ")
}
