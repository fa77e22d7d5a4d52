package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/obentoo/upkeep/internal/allowlist"
)

var (
	ErrJSONPathNotFound   = errors.New("JSON path not found in response")
	ErrInvalidJSONPath    = errors.New("invalid JSON path syntax")
	ErrRegexNoMatch       = errors.New("regex pattern did not match")
	ErrInvalidRegex       = errors.New("invalid regex pattern")
	ErrNoCaptureGroup     = errors.New("regex pattern must contain at least one capture group")
	ErrNoElementFound     = errors.New("no element found matching selector")
	ErrNoSelectorOrXPath  = errors.New("either selector or xpath must be provided")
	ErrInvalidXPath       = errors.New("invalid XPath expression")
	ErrInvalidParserType  = errors.New("invalid parser type: must be json, regex or html")
	ErrEmptyExtractedText = errors.New("extracted version text is empty")
)

// Parser extracts a version string from a fetched page
type Parser interface {
	Parse(content []byte) (string, error)
}

// NewParser builds the parser described by cfg
func NewParser(cfg *allowlist.ParserConfig) (Parser, error) {
	switch cfg.Type {
	case "json":
		if _, err := parseJSONPath(cfg.Path); err != nil {
			return nil, err
		}
		return &JSONParser{Path: cfg.Path}, nil
	case "regex":
		re, err := compileCapturing(cfg.Pattern)
		if err != nil {
			return nil, err
		}
		return &RegexParser{re: re}, nil
	case "html":
		return NewHTMLParser(cfg.Selector, cfg.XPath, cfg.Pattern)
	}
	return nil, fmt.Errorf("%w: got %q", ErrInvalidParserType, cfg.Type)
}

func compileCapturing(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidRegex)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	if re.NumSubexp() < 1 {
		return nil, ErrNoCaptureGroup
	}
	return re, nil
}

// JSONParser follows a dotted path with array indexes, e.g. "notes[0].version"
type JSONParser struct {
	Path string
}

func (p *JSONParser) Parse(content []byte) (string, error) {
	segments, err := parseJSONPath(p.Path)
	if err != nil {
		return "", err
	}

	var current interface{}
	if err := json.Unmarshal(content, &current); err != nil {
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	for _, seg := range segments {
		if seg.field != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("%w: expected object at %q", ErrJSONPathNotFound, seg.field)
			}
			if current, ok = obj[seg.field]; !ok {
				return "", fmt.Errorf("%w: field %q not found", ErrJSONPathNotFound, seg.field)
			}
			continue
		}
		arr, ok := current.([]interface{})
		if !ok {
			return "", fmt.Errorf("%w: expected array at index %d", ErrJSONPathNotFound, seg.index)
		}
		if seg.index >= len(arr) {
			return "", fmt.Errorf("%w: index %d out of bounds (length %d)", ErrJSONPathNotFound, seg.index, len(arr))
		}
		current = arr[seg.index]
	}

	switch v := current.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: value at %q is not a string or number", ErrJSONPathNotFound, p.Path)
}

// pathSegment is either a field name or, when field is empty, an array index
type pathSegment struct {
	field string
	index int
}

func parseJSONPath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidJSONPath)
	}

	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		name, rest, hasIndex := strings.Cut(part, "[")
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name in %q", ErrInvalidJSONPath, path)
		}
		if hasIndex && rest == "" {
			return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidJSONPath, path)
		}
		segments = append(segments, pathSegment{field: name})

		for rest != "" {
			idx, after, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidJSONPath, path)
			}
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: invalid array index %q", ErrInvalidJSONPath, idx)
			}
			segments = append(segments, pathSegment{index: n})

			if after == "" {
				break
			}
			if !strings.HasPrefix(after, "[") {
				return nil, fmt.Errorf("%w: unexpected %q after index", ErrInvalidJSONPath, after)
			}
			rest = after[1:]
		}
	}
	return segments, nil
}

// RegexParser returns the first capture group of the first match
type RegexParser struct {
	re *regexp.Regexp
}

func (p *RegexParser) Parse(content []byte) (string, error) {
	m := p.re.FindSubmatch(content)
	if m == nil {
		return "", ErrRegexNoMatch
	}
	if len(m[1]) == 0 {
		return "", fmt.Errorf("%w: capture group matched empty string", ErrRegexNoMatch)
	}
	return string(m[1]), nil
}

// HTMLParser reads the text of the first element matching a CSS selector
// (goquery) or, when no selector is set, an XPath expression (htmlquery).
// An optional regex narrows the text down to its first capture group.
type HTMLParser struct {
	Selector string
	XPath    string
	re       *regexp.Regexp
}

// NewHTMLParser validates the selector/xpath pair and compiles regex
func NewHTMLParser(selector, xpath, regex string) (*HTMLParser, error) {
	if selector == "" && xpath == "" {
		return nil, ErrNoSelectorOrXPath
	}
	p := &HTMLParser{Selector: selector, XPath: xpath}
	if regex != "" {
		re, err := regexp.Compile(regex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
		p.re = re
	}
	return p, nil
}

func (p *HTMLParser) Parse(content []byte) (string, error) {
	var text string
	var err error
	if p.Selector != "" {
		text, err = p.selectCSS(content)
	} else {
		text, err = p.selectXPath(content)
	}
	if err != nil {
		return "", err
	}

	if p.re != nil {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			return "", fmt.Errorf("%w: %q", ErrRegexNoMatch, p.re.String())
		}
		text = m[0]
		if len(m) > 1 && m[1] != "" {
			text = m[1]
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyExtractedText
	}
	return text, nil
}

func (p *HTMLParser) selectCSS(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	sel := doc.Find(p.Selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElementFound, p.Selector)
	}
	return sel.First().Text(), nil
}

func (p *HTMLParser) selectXPath(content []byte) (string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, p.XPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidXPath, err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElementFound, p.XPath)
	}
	return htmlquery.InnerText(nodes[0]), nil
}
