package lcmtype

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrParse wraps all type-definition syntax errors.
var ErrParse = errors.New("lcmtype: parse error")

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
}

type scanner struct {
	name string
	src  []byte
	pos  int
	line int
}

func (s *scanner) errf(line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s:%d: %s", ErrParse, s.name, line, fmt.Sprintf(format, args...))
}

func (s *scanner) next() (token, error) {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.line++
			s.pos++
		case c == ' ' || c == '\t' || c == '\r':
			s.pos++
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			start := s.line
			s.pos += 2
			for {
				if s.pos+1 >= len(s.src) {
					return token{}, s.errf(start, "unterminated block comment")
				}
				if s.src[s.pos] == '*' && s.src[s.pos+1] == '/' {
					s.pos += 2
					break
				}
				if s.src[s.pos] == '\n' {
					s.line++
				}
				s.pos++
			}
		default:
			return s.scanToken()
		}
	}
	return token{kind: tokEOF, line: s.line}, nil
}

func (s *scanner) scanToken() (token, error) {
	c := s.src[s.pos]
	start := s.pos
	switch {
	case isLetter(c):
		for s.pos < len(s.src) && isIdentByte(s.src[s.pos]) {
			s.pos++
		}
		return token{kind: tokIdent, text: string(s.src[start:s.pos]), line: s.line}, nil
	case isDigit(c):
		return s.scanNumber()
	case c == '{' || c == '}' || c == '[' || c == ']' || c == ';' || c == ',' || c == '=' || c == '.' || c == '-':
		s.pos++
		return token{kind: tokPunct, text: string(c), line: s.line}, nil
	default:
		return token{}, s.errf(s.line, "unexpected character %q", c)
	}
}

func (s *scanner) scanNumber() (token, error) {
	start := s.pos
	if s.src[s.pos] == '0' && s.pos+1 < len(s.src) && (s.src[s.pos+1] == 'x' || s.src[s.pos+1] == 'X') {
		s.pos += 2
		for s.pos < len(s.src) && isHexDigit(s.src[s.pos]) {
			s.pos++
		}
		return token{kind: tokNumber, text: string(s.src[start:s.pos]), line: s.line}, nil
	}

	for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
		s.pos++
	}
	if s.pos < len(s.src) && s.src[s.pos] == '.' {
		s.pos++
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.src) && (s.src[s.pos] == 'e' || s.src[s.pos] == 'E') {
		s.pos++
		if s.pos < len(s.src) && (s.src[s.pos] == '+' || s.src[s.pos] == '-') {
			s.pos++
		}
		if s.pos >= len(s.src) || !isDigit(s.src[s.pos]) {
			return token{}, s.errf(s.line, "malformed exponent in number")
		}
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	}
	return token{kind: tokNumber, text: string(s.src[start:s.pos]), line: s.line}, nil
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func isIdentByte(c byte) bool { return isLetter(c) || isDigit(c) }

type parser struct {
	sc  *scanner
	tok token
}

// ParseFile parses the LCM type definitions in the file at path.
func ParseFile(path string) ([]*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lcmtype: %w", err)
	}
	return Parse(path, src)
}

// Parse parses LCM type definitions from src. A source may declare at most
// one package and any number of structs; name is used in error positions.
func Parse(name string, src []byte) ([]*Schema, error) {
	p := &parser{sc: &scanner{name: name, src: src, line: 1}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var pkg string
	var schemas []*Schema
	for p.tok.kind != tokEOF {
		switch {
		case p.ident("package"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.dottedIdent()
			if err != nil {
				return nil, err
			}
			if err := p.punct(";"); err != nil {
				return nil, err
			}
			pkg = name
		case p.ident("struct"):
			s, err := p.parseStruct()
			if err != nil {
				return nil, err
			}
			s.Package = pkg
			schemas = append(schemas, s)
		case p.ident("enum"):
			return nil, p.errf("legacy enum declarations are not supported")
		default:
			return nil, p.errf("expected package or struct declaration, got %q", p.tok.text)
		}
	}
	return schemas, nil
}

func (p *parser) advance() error {
	t, err := p.sc.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return p.sc.errf(p.tok.line, format, args...)
}

func (p *parser) ident(text string) bool {
	return p.tok.kind == tokIdent && p.tok.text == text
}

// punct consumes the expected punctuation token.
func (p *parser) punct(text string) error {
	if p.tok.kind != tokPunct || p.tok.text != text {
		return p.errf("expected %q, got %q", text, p.tok.text)
	}
	return p.advance()
}

func (p *parser) identText() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errf("expected identifier, got %q", p.tok.text)
	}
	text := p.tok.text
	return text, p.advance()
}

func (p *parser) dottedIdent() (string, error) {
	name, err := p.identText()
	if err != nil {
		return "", err
	}
	for p.tok.kind == tokPunct && p.tok.text == "." {
		if err := p.advance(); err != nil {
			return "", err
		}
		part, err := p.identText()
		if err != nil {
			return "", err
		}
		name += "." + part
	}
	return name, nil
}

func (p *parser) parseStruct() (*Schema, error) {
	if err := p.advance(); err != nil { // consume "struct"
		return nil, err
	}
	name, err := p.identText()
	if err != nil {
		return nil, err
	}
	s := &Schema{Name: name}
	if err := p.punct("{"); err != nil {
		return nil, err
	}

	for !(p.tok.kind == tokPunct && p.tok.text == "}") {
		if p.tok.kind == tokEOF {
			return nil, p.errf("unexpected end of file in struct %s", s.Name)
		}
		if p.ident("const") {
			if err := p.parseConst(s); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.parseField(s); err != nil {
			return nil, err
		}
	}
	if err := p.advance(); err != nil { // consume "}"
		return nil, err
	}

	if len(s.Fields) == 0 {
		return nil, p.errf("struct %s has no members", s.Name)
	}
	return s, nil
}

func (p *parser) parseField(s *Schema) error {
	typeName, err := p.dottedIdent()
	if err != nil {
		return err
	}
	fieldName, err := p.identText()
	if err != nil {
		return err
	}
	if s.field(fieldName) != nil || s.constant(fieldName) != nil {
		return p.errf("struct %s: duplicate member %s", s.Name, fieldName)
	}

	f := &Field{Name: fieldName}
	if kind, ok := kindNames[typeName]; ok {
		f.Kind = kind
	} else {
		f.Kind = KindStruct
		f.TypeName = typeName
	}

	for p.tok.kind == tokPunct && p.tok.text == "[" {
		if err := p.advance(); err != nil {
			return err
		}
		dim, err := p.parseDim(s)
		if err != nil {
			return err
		}
		f.Dims = append(f.Dims, dim)
		if err := p.punct("]"); err != nil {
			return err
		}
	}
	if err := p.punct(";"); err != nil {
		return err
	}

	s.Fields = append(s.Fields, f)
	return nil
}

// parseDim parses one array dimension: a positive integer literal, the name
// of a previously declared scalar integral member, or the name of an integral
// constant (folded to its value).
func (p *parser) parseDim(s *Schema) (Dim, error) {
	switch p.tok.kind {
	case tokNumber:
		n, err := strconv.ParseInt(p.tok.text, 0, 32)
		if err != nil || n < 1 {
			return Dim{}, p.errf("array dimension %q must be a positive integer", p.tok.text)
		}
		return Dim{Size: int(n)}, p.advance()
	case tokIdent:
		name := p.tok.text
		if f := s.field(name); f != nil {
			if !f.Kind.integral() || f.IsArray() {
				return Dim{}, p.errf("array dimension %s must be a scalar integer member", name)
			}
			return Dim{Var: name}, p.advance()
		}
		if c := s.constant(name); c != nil {
			if !c.Kind.integral() || c.Int < 1 {
				return Dim{}, p.errf("array dimension constant %s must be a positive integer", name)
			}
			return Dim{Size: int(c.Int)}, p.advance()
		}
		return Dim{}, p.errf("array dimension %s must name a previously declared member or constant", name)
	default:
		return Dim{}, p.errf("expected array dimension, got %q", p.tok.text)
	}
}

func (p *parser) parseConst(s *Schema) error {
	if err := p.advance(); err != nil { // consume "const"
		return err
	}
	typeName, err := p.identText()
	if err != nil {
		return err
	}
	kind, ok := kindNames[typeName]
	if !ok || !(kind.integral() || kind == KindFloat || kind == KindDouble) {
		return p.errf("const type %q must be a numeric primitive", typeName)
	}

	for {
		name, err := p.identText()
		if err != nil {
			return err
		}
		if s.field(name) != nil || s.constant(name) != nil {
			return p.errf("struct %s: duplicate member %s", s.Name, name)
		}
		if err := p.punct("="); err != nil {
			return err
		}
		c := &Const{Name: name, Kind: kind}
		if err := p.parseConstValue(c); err != nil {
			return err
		}
		s.Consts = append(s.Consts, c)

		if p.tok.kind == tokPunct && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		return p.punct(";")
	}
}

func (p *parser) parseConstValue(c *Const) error {
	neg := false
	if p.tok.kind == tokPunct && p.tok.text == "-" {
		neg = true
		if err := p.advance(); err != nil {
			return err
		}
	}
	if p.tok.kind != tokNumber {
		return p.errf("expected numeric constant, got %q", p.tok.text)
	}
	text := p.tok.text

	if c.Kind == KindFloat || c.Kind == KindDouble {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return p.errf("malformed %s constant %q", c.Kind, text)
		}
		if neg {
			v = -v
		}
		c.Float = v
		return p.advance()
	}

	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return p.errf("malformed %s constant %q", c.Kind, text)
	}
	if neg {
		v = -v
	}
	if !intFits(c.Kind, v) {
		return p.errf("constant %s overflows %s", text, c.Kind)
	}
	c.Int = v
	return p.advance()
}

func intFits(k Kind, v int64) bool {
	switch k {
	case KindInt8:
		return v >= -1<<7 && v < 1<<7
	case KindInt16:
		return v >= -1<<15 && v < 1<<15
	case KindInt32:
		return v >= -1<<31 && v < 1<<31
	default:
		return true
	}
}
