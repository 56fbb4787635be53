// Package textedit implements the backend-agnostic text editing
// primitives shared by every storage adapter. These are pure functions:
// the byte-level behavior (uniqueness enforcement, line indexing, range
// clipping) must be identical no matter which substrate holds the text.
//
// Note the deliberate asymmetry: InsertAtLine uses 0-based indices while
// ExtractLines and RenderView use 1-based inclusive ranges. Callers depend
// on this exact behavior; do not unify them.
package textedit

import (
	"fmt"
	"strings"

	"github.com/entrhq/recall/pkg/memory/types"
)

// splitLines treats text as an ordered sequence of lines. A trailing
// newline does not introduce a final empty line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount returns the number of lines in text.
func LineCount(text string) int {
	return len(splitLines(text))
}

// UniqueReplace substitutes the single occurrence of oldStr in text with
// newStr. Zero occurrences fail with a NotFoundError; two or more fail
// with an AmbiguousError whose message states the exact count. path is
// used only for error messages and may be empty.
func UniqueReplace(text, oldStr, newStr, path string) (string, error) {
	count := strings.Count(text, oldStr)
	switch {
	case count == 0:
		where := ""
		if path != "" {
			where = " in " + path
		}
		return "", &types.NotFoundError{
			Path: path,
			Message: fmt.Sprintf(
				"old_str was not found%s. Use the view command to check the exact text to replace.", where),
		}
	case count > 1:
		where := ""
		if path != "" {
			where = " in " + path
		}
		return "", &types.AmbiguousError{
			Path:  path,
			Count: count,
			Message: fmt.Sprintf(
				"old_str appears %d times%s; it must appear exactly once. Add surrounding context to make it unique.",
				count, where),
		}
	default:
		return strings.Replace(text, oldStr, newStr, 1), nil
	}
}

// InsertAtLine splices insertText as a new line at the 0-based line index.
// An index equal to the line count appends after the last line. Indices
// outside [0, lineCount] fail with an InvalidLineError.
func InsertAtLine(text string, line int, insertText string) (string, error) {
	lines := splitLines(text)
	if line < 0 || line > len(lines) {
		where := ""
		if len(lines) == 1 {
			where = "is 1 line long"
		} else {
			where = fmt.Sprintf("has %d lines", len(lines))
		}
		return "", &types.InvalidLineError{
			Line: line,
			Message: fmt.Sprintf(
				"Invalid insert_line %d: the file %s, so the line number must be between 0 and %d.",
				line, where, len(lines)),
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:line]...)
	out = append(out, insertText)
	out = append(out, lines[line:]...)
	return strings.Join(out, "\n"), nil
}

// ExtractLines returns lines start through end, 1-based and inclusive. An
// end beyond the last line clips silently, as does a start below 1; an
// end of -1 means "to the last line". When the clipped range is empty the
// result is empty.
func ExtractLines(text string, start, end int) []string {
	lines := splitLines(text)
	if start < 1 {
		start = 1
	}
	if end == -1 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) || end < start {
		return nil
	}
	return lines[start-1 : end]
}

// RenderView produces the line-number-prefixed rendering of text. Numbers
// are right-aligned in a fixed-width field and are absolute: a range
// starting at line s numbers its first line s. A nil range renders the
// whole file from line 1; an end of -1 means "to the last line".
func RenderView(text string, rng []int) string {
	start, end := 1, -1
	if len(rng) == 2 {
		start, end = rng[0], rng[1]
	}
	if start < 1 {
		start = 1
	}
	lines := ExtractLines(text, start, end)
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s", start+i, line)
	}
	return b.String()
}
