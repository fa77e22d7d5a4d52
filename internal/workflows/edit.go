package workflows

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// ErrEditMismatch is returned when an edit does not line up with the document
var ErrEditMismatch = errors.New("edit does not match document")

// Edit replaces one scalar token of a document. Line and Column are the
// 1-based position yaml.v3 reports for the token, Column counting runes.
type Edit struct {
	Line   int
	Column int
	// Old and New are raw tokens, quotes included
	Old string
	New string
	// Comment, when set, replaces or adds the end-of-line comment
	Comment string
	// StripComment removes the end-of-line comment
	StripComment bool
}

type splice struct {
	start, end int
	text       string
}

// Apply returns src with every edit applied. Bytes outside the edited
// tokens and their end-of-line comments are left untouched. Comment changes
// are only made when nothing but a comment follows the token on its line.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	starts := lineStarts(src)
	splices := make([]splice, 0, len(edits))
	for _, e := range edits {
		s, err := locate(src, starts, e)
		if err != nil {
			return nil, err
		}
		splices = append(splices, s)
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
	for i := 1; i < len(splices); i++ {
		if splices[i].end > splices[i-1].start {
			return nil, fmt.Errorf("%w: overlapping edits at offset %d", ErrEditMismatch, splices[i].start)
		}
	}

	out := append([]byte(nil), src...)
	for _, s := range splices {
		out = append(out[:s.start], append([]byte(s.text), out[s.end:]...)...)
	}
	return out, nil
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// span finds old at line:column in src and the end of its line, excluding
// any carriage return.
func span(src []byte, starts []int, line, column int, old string) (start, tokenEnd, lineEnd int, err error) {
	if line < 1 || line > len(starts) || column < 1 {
		return 0, 0, 0, fmt.Errorf("%w: no position %d:%d", ErrEditMismatch, line, column)
	}

	start = starts[line-1]
	for n := 1; n < column; n++ {
		if start >= len(src) || src[start] == '\n' {
			return 0, 0, 0, fmt.Errorf("%w: column %d past end of line %d", ErrEditMismatch, column, line)
		}
		_, size := utf8.DecodeRune(src[start:])
		start += size
	}
	if !bytes.HasPrefix(src[start:], []byte(old)) {
		return 0, 0, 0, fmt.Errorf("%w: expected %q at %d:%d", ErrEditMismatch, old, line, column)
	}

	tokenEnd = start + len(old)
	lineEnd = tokenEnd
	for lineEnd < len(src) && src[lineEnd] != '\n' {
		lineEnd++
	}
	if lineEnd > tokenEnd && src[lineEnd-1] == '\r' {
		lineEnd--
	}
	return start, tokenEnd, lineEnd, nil
}

// trailingComment returns the end-of-line comment after the token at
// line:column, or "" when the line continues with anything else.
func trailingComment(src []byte, line, column int, token string) string {
	_, tokenEnd, lineEnd, err := span(src, lineStarts(src), line, column, token)
	if err != nil {
		return ""
	}
	rest := bytes.TrimLeft(src[tokenEnd:lineEnd], " \t")
	if !bytes.HasPrefix(rest, []byte("#")) {
		return ""
	}
	return string(rest)
}

func locate(src []byte, starts []int, e Edit) (splice, error) {
	off, tokenEnd, lineEnd, err := span(src, starts, e.Line, e.Column, e.Old)
	if err != nil {
		return splice{}, err
	}

	rest := src[tokenEnd:lineEnd]
	trimmed := bytes.TrimLeft(rest, " \t")
	hasComment := bytes.HasPrefix(trimmed, []byte("#"))
	tail := len(trimmed) == 0 || hasComment

	s := splice{start: off, end: tokenEnd, text: e.New}
	switch {
	case !tail:
	case e.Comment != "" && hasComment:
		gap := rest[:len(rest)-len(trimmed)]
		s.end, s.text = lineEnd, e.New+string(gap)+e.Comment
	case e.Comment != "":
		s.end, s.text = lineEnd, e.New+" "+e.Comment
	case e.StripComment && hasComment:
		s.end = lineEnd
	}
	return s, nil
}
