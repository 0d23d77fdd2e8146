// Package jsvm is a small, hand-written tree-walking interpreter for the
// restricted scripting grammar CodeSandbox executes (skill bodies, dynamic
// reflex actions). No JavaScript engine exists anywhere in the corpus this
// module was grown from (the closest analog, wasmerio/wasmer-go, runs
// compiled WASM rather than source-level scripts); see DESIGN.md for the
// stdlib-only justification. The grammar supported is intentionally a
// strict subset of JS: numbers, strings, booleans, arrays, objects,
// functions, if/else, while/do-while/for/for-in/for-of, and a whitelisted
// global surface — exactly what skill and reflex bodies need.
package jsvm

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
	tokKeyword
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

var keywords = map[string]bool{
	"let": true, "const": true, "var": true, "function": true,
	"if": true, "else": true, "while": true, "do": true, "for": true,
	"in": true, "of": true, "return": true, "true": true, "false": true,
	"null": true, "undefined": true, "new": true, "break": true, "continue": true,
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipTrivia()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}
		c := l.src[l.pos]
		switch {
		case isDigit(c):
			l.lexNumber()
		case c == '"' || c == '\'':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		case isIdentStart(c):
			l.lexIdent()
		default:
			if err := l.lexPunct(); err != nil {
				return nil, err
			}
		}
	}
}

func (l *lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '*':
			l.pos += 2
			for l.pos+1 < len(l.src) && !(l.src[l.pos] == '*' && l.src[l.pos+1] == '/') {
				l.pos++
			}
			l.pos += 2
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	text := l.src[start:l.pos]
	var f float64
	fmt.Sscanf(text, "%g", &f)
	l.toks = append(l.toks, token{kind: tokNumber, text: text, num: f, pos: start})
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(l.src[l.pos])
			}
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	if l.pos >= len(l.src) {
		return fmt.Errorf("unterminated string literal at %d", start)
	}
	l.pos++ // closing quote
	l.toks = append(l.toks, token{kind: tokString, text: sb.String(), pos: start})
	return nil
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	kind := tokIdent
	if keywords[text] {
		kind = tokKeyword
	}
	l.toks = append(l.toks, token{kind: kind, text: text, pos: start})
}

var multiCharPuncts = []string{
	"===", "!==", "**=", ">>>",
	"==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=", "=>", "++", "--",
}

func (l *lexer) lexPunct() error {
	rest := l.src[l.pos:]
	for _, p := range multiCharPuncts {
		if strings.HasPrefix(rest, p) {
			l.toks = append(l.toks, token{kind: tokPunct, text: p, pos: l.pos})
			l.pos += len(p)
			return nil
		}
	}
	c := l.src[l.pos]
	switch c {
	case '+', '-', '*', '/', '%', '(', ')', '{', '}', '[', ']', ',', ';', ':', '.', '<', '>', '=', '!', '&', '|', '?':
		l.toks = append(l.toks, token{kind: tokPunct, text: string(c), pos: l.pos})
		l.pos++
		return nil
	default:
		return fmt.Errorf("unexpected character %q at %d", c, l.pos)
	}
}
