package jdl

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseError reports the position at which a description could not be parsed.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid job description at offset %d: %s", e.Offset, e.Message)
}

// Parse reads a job description. The outer brackets are optional.
func Parse(text string) (*ClassAd, error) {
	p := &parser{src: []rune(NormalizeBrackets(text))}
	ad, err := p.parseAd()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing content")
	}
	return ad, nil
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

// skipSpace skips whitespace and // or # line comments.
func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.peek()
		switch {
		case unicode.IsSpace(c):
			p.pos++
		case c == '#' || (c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/'):
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) expect(c rune) error {
	p.skipSpace()
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, found end of input", c)
		}
		return p.errorf("expected %q, found %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseAd() (*ClassAd, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	ad := New()
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return ad, nil
		}
		if p.eof() {
			return nil, p.errorf("unterminated description, missing ']'")
		}
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		value, err := p.parseValue(";]")
		if err != nil {
			return nil, err
		}
		if ad.Has(name) {
			return nil, p.errorf("attribute %s defined twice", name)
		}
		ad.Set(name, value)
		p.skipSpace()
		switch p.peek() {
		case ';':
			p.pos++
		case ']':
		default:
			return nil, p.errorf("expected ';' after attribute %s", name)
		}
	}
}

func (p *parser) parseName() (string, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '_' || c == '.' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return "", p.errorf("expected attribute name")
	}
	name := string(p.src[start:p.pos])
	if unicode.IsDigit([]rune(name)[0]) {
		p.pos = start
		return "", p.errorf("attribute name %s starts with a digit", name)
	}
	return name, nil
}

// parseValue reads one value; an expression extends up to the first unnested rune in stop.
func (p *parser) parseValue(stop string) (Value, error) {
	p.skipSpace()
	switch p.peek() {
	case '"':
		start := p.pos
		s, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		p.skipSpace()
		if !p.eof() && !strings.ContainsRune(stop, p.peek()) {
			// A string that is only the start of an expression, e.g. "a" + "b"
			return p.parseExpressionFrom(start, stop)
		}
		return String(s), nil
	case '{':
		return p.parseList()
	case '[':
		start := p.pos
		if err := p.skipBalanced('[', ']'); err != nil {
			return Value{}, err
		}
		return Value{Kind: AdValue, Raw: string(p.src[start:p.pos])}, nil
	default:
		return p.parseExpressionFrom(p.pos, stop)
	}
}

func (p *parser) parseString() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated string")
			}
			sb.WriteRune(p.peek())
			p.pos++
		case '"':
			return sb.String(), nil
		default:
			sb.WriteRune(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) parseList() (Value, error) {
	if err := p.expect('{'); err != nil {
		return Value{}, err
	}
	list := Value{Kind: ListValue, List: []Value{}}
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return list, nil
	}
	for {
		item, err := p.parseValue(",}")
		if err != nil {
			return Value{}, err
		}
		list.List = append(list.List, item)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return list, nil
		default:
			return Value{}, p.errorf("expected ',' or '}' in list")
		}
	}
}

func (p *parser) parseExpressionFrom(start int, stop string) (Value, error) {
	p.pos = start
	depth := 0
	for !p.eof() {
		c := p.peek()
		if depth == 0 && strings.ContainsRune(stop, c) {
			break
		}
		switch c {
		case '"':
			if _, err := p.parseString(); err != nil {
				return Value{}, err
			}
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return Value{}, p.errorf("unbalanced %q", c)
			}
		}
		p.pos++
	}
	if depth != 0 {
		return Value{}, p.errorf("unbalanced expression")
	}
	raw := strings.TrimSpace(string(p.src[start:p.pos]))
	if raw == "" {
		return Value{}, p.errorf("missing value")
	}
	return Expression(raw), nil
}

func (p *parser) skipBalanced(open, close rune) error {
	depth := 0
	for !p.eof() {
		c := p.peek()
		switch c {
		case '"':
			if _, err := p.parseString(); err != nil {
				return err
			}
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.pos++
				return nil
			}
		}
		p.pos++
	}
	return p.errorf("unterminated nested %q", open)
}
