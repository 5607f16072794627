// internal/pyliteral/literal.go

// Package pyliteral evaluates Python literal expressions without executing
// any code. It understands the subset that addon manifests are written in:
// dicts, lists, tuples, strings (including implicit concatenation of
// adjacent literals), numbers, True/False/None and '#' comments. Anything
// else, a name or a call in particular, is a parse error.
package pyliteral

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse evaluates src as a single Python literal expression.
// Dicts become map[string]any, lists and tuples []any, strings string,
// integers int64, floats float64, True/False bool and None nil.
func Parse(src []byte) (any, error) {
	p := &parser{src: string(src)}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing content")
	}
	return v, nil
}

// ParseDict evaluates src and requires the top-level value to be a dict.
func ParseDict(src []byte) (map[string]any, error) {
	v, err := Parse(src)
	if err != nil {
		return nil, err
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("line 1: top-level value is %T, expected a dict", v)
	}
	return d, nil
}

type parser struct {
	src  string
	pos  int
	line int // zero-based, reported one-based
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.line+1, fmt.Sprintf(format, args...))
}

// skipSpace advances past whitespace and '#' comments.
func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\n':
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			p.pos++
		case c == '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of input")
	}
	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"' || p.hasStringPrefix():
		return p.stringConcat()
	case c == '-' || c == '+' || (c >= '0' && c <= '9') || c == '.':
		return p.number()
	default:
		return p.keyword()
	}
}

// hasStringPrefix reports whether the input starts with a string literal
// prefix like r'...', u"..." or the two-character forms rb'...' / Rb"...".
func (p *parser) hasStringPrefix() bool {
	i := p.pos
	for i < len(p.src) {
		switch p.src[i] {
		case 'r', 'R', 'u', 'U', 'b', 'B', 'f', 'F':
			if i-p.pos == 2 {
				return false
			}
			i++
		case '\'', '"':
			return i > p.pos
		default:
			return false
		}
	}
	return false
}

func (p *parser) dict() (any, error) {
	p.pos++ // '{'
	p.skipSpace()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return map[string]any{}, nil
	}
	d := map[string]any{}
	for {
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, p.errorf("unexpected end of input in dict")
		}
		if c != ':' {
			// No colon after the first element would make this a set
			// literal; manifests have no use for sets of pairs.
			return nil, p.errorf("expected ':' in dict, got %q", c)
		}
		ks, ok := key.(string)
		if !ok {
			return nil, p.errorf("dict key is %T, only string keys are supported", key)
		}
		p.pos++
		p.skipSpace()
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		d[ks] = val
		p.skipSpace()
		c, ok = p.peek()
		if !ok {
			return nil, p.errorf("unexpected end of input in dict")
		}
		switch c {
		case ',':
			p.pos++
			p.skipSpace()
			if c, ok := p.peek(); ok && c == '}' {
				p.pos++
				return d, nil
			}
		case '}':
			p.pos++
			return d, nil
		default:
			return nil, p.errorf("expected ',' or '}' in dict, got %q", c)
		}
	}
}

func (p *parser) sequence(open, close byte) (any, error) {
	p.pos++ // open
	p.skipSpace()
	s := []any{}
	if c, ok := p.peek(); ok && c == close {
		p.pos++
		return s, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		s = append(s, v)
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, p.errorf("unexpected end of input in sequence")
		}
		switch c {
		case ',':
			p.pos++
			p.skipSpace()
			if c, ok := p.peek(); ok && c == close {
				p.pos++
				return s, nil
			}
		case close:
			p.pos++
			return s, nil
		default:
			return nil, p.errorf("expected ',' or %q in sequence, got %q", close, c)
		}
	}
}

// stringConcat parses one string literal and then keeps consuming adjacent
// ones, returning their concatenation, matching Python's implicit literal
// concatenation ('a' 'b' == 'ab').
func (p *parser) stringConcat() (any, error) {
	var b strings.Builder
	for {
		s, err := p.stringLit()
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
		p.skipSpace()
		if c, ok := p.peek(); !ok || (c != '\'' && c != '"' && !p.hasStringPrefix()) {
			return b.String(), nil
		}
	}
}

func (p *parser) stringLit() (string, error) {
	raw := false
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case 'r', 'R':
			raw = true
			p.pos++
			continue
		case 'u', 'U', 'b', 'B', 'f', 'F':
			p.pos++
			continue
		}
		break
	}
	c, ok := p.peek()
	if !ok || (c != '\'' && c != '"') {
		return "", p.errorf("expected string literal")
	}
	quote := c
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string literal")
		}
		ch := p.src[p.pos]
		if ch == quote {
			if !triple {
				p.pos++
				return b.String(), nil
			}
			if strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)) {
				p.pos += 3
				return b.String(), nil
			}
			b.WriteByte(ch)
			p.pos++
			continue
		}
		if ch == '\n' {
			if !triple {
				return "", p.errorf("newline in single-quoted string")
			}
			p.line++
			b.WriteByte(ch)
			p.pos++
			continue
		}
		if ch == '\\' && !raw {
			esc, err := p.escape()
			if err != nil {
				return "", err
			}
			b.WriteString(esc)
			continue
		}
		b.WriteByte(ch)
		p.pos++
	}
}

func (p *parser) escape() (string, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return "", p.errorf("unterminated escape sequence")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		return "\n", nil
	case 't':
		return "\t", nil
	case 'r':
		return "\r", nil
	case '0':
		return "\x00", nil
	case '\\', '\'', '"':
		return string(c), nil
	case '\n':
		p.line++
		return "", nil // line continuation
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+width > len(p.src) {
			return "", p.errorf("truncated \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil {
			return "", p.errorf("invalid \\%c escape", c)
		}
		p.pos += width
		if !utf8.ValidRune(rune(n)) {
			return "", p.errorf("invalid code point in \\%c escape", c)
		}
		return string(rune(n)), nil
	default:
		// Python leaves unknown escapes alone.
		return "\\" + string(c), nil
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c, _ := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9' || c == '_':
			p.pos++
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
			p.pos++
			if c != '.' && p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
				p.pos++
			}
		default:
			goto done
		}
	}
done:
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if text == "" || text == "-" || text == "+" {
		return nil, p.errorf("invalid number")
	}
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("invalid float %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid integer %q", text)
	}
	return n, nil
}

func (p *parser) keyword() (any, error) {
	rest := p.src[p.pos:]
	for kw, v := range map[string]any{"True": true, "False": false, "None": nil} {
		if strings.HasPrefix(rest, kw) {
			p.pos += len(kw)
			if c, ok := p.peek(); ok && isIdentChar(c) {
				return nil, p.errorf("unexpected identifier")
			}
			return v, nil
		}
	}
	return nil, p.errorf("unexpected character %q", rest[0])
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
