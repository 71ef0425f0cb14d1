package expr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkNumber
	tkString
	tkIdent
	tkOp
	tkLParen
	tkRParen
	tkComma
)

type token struct {
	kind tokenKind
	text string
	val  any
	pos  int
}

// keywords that exist in general-purpose languages but never in a routing condition.
var forbiddenKeywords = map[string]string{
	"lambda": "lambda expressions are not allowed",
	"if":     "conditional expressions are not allowed",
	"else":   "conditional expressions are not allowed",
	"for":    "comprehensions are not allowed",
	"in":     "membership tests are not allowed",
	"is":     "identity tests are not allowed",
	"import": "imports are not allowed",
	"yield":  "generators are not allowed",
	"await":  "coroutines are not allowed",
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.tokens = append(lx.tokens, tok)
		if tok.kind == tkEOF {
			return lx.tokens, nil
		}
	}
}

func (lx *lexer) fail(pos int, msg string) error {
	return &SyntaxError{Expr: lx.src, Pos: pos, Msg: msg}
}

func (lx *lexer) peekByte(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) && unicode.IsSpace(rune(lx.src[lx.pos])) {
		lx.pos++
	}
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tkEOF, pos: start}, nil
	}

	c := lx.src[lx.pos]
	switch {
	case isDigit(c) || (c == '.' && isDigit(lx.peekByte(1))):
		return lx.number()
	case c == '\'' || c == '"':
		return lx.str()
	case isIdentStart(c):
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		word := lx.src[start:lx.pos]
		if msg, bad := forbiddenKeywords[word]; bad {
			return token{}, lx.fail(start, msg)
		}
		if lx.pos < len(lx.src) && lx.src[lx.pos] == '.' {
			return token{}, lx.fail(lx.pos, "attribute access is not allowed")
		}
		return token{kind: tkIdent, text: word, pos: start}, nil
	}

	two := ""
	if lx.pos+1 < len(lx.src) {
		two = lx.src[lx.pos : lx.pos+2]
	}
	switch two {
	case "<=", ">=", "==", "!=":
		lx.pos += 2
		return token{kind: tkOp, text: two, pos: start}, nil
	case "**":
		return token{}, lx.fail(start, "exponentiation is not allowed")
	case "//":
		return token{}, lx.fail(start, "floor division is not allowed")
	case "<<", ">>":
		return token{}, lx.fail(start, "bitwise operators are not allowed")
	case "&&", "||":
		return token{}, lx.fail(start, "use 'and' / 'or' for boolean logic")
	}

	lx.pos++
	switch c {
	case '+', '-', '*', '/', '%', '<', '>':
		return token{kind: tkOp, text: string(c), pos: start}, nil
	case '(':
		return token{kind: tkLParen, text: "(", pos: start}, nil
	case ')':
		if lx.pos < len(lx.src) && lx.src[lx.pos] == '.' {
			return token{}, lx.fail(lx.pos, "attribute access is not allowed")
		}
		return token{kind: tkRParen, text: ")", pos: start}, nil
	case ',':
		return token{kind: tkComma, text: ",", pos: start}, nil
	case '&', '|', '^', '~':
		return token{}, lx.fail(start, "bitwise operators are not allowed")
	case '.':
		return token{}, lx.fail(start, "attribute access is not allowed")
	case '[', ']':
		return token{}, lx.fail(start, "subscripts are not allowed")
	case '=':
		return token{}, lx.fail(start, "assignment is not allowed")
	case '!':
		return token{}, lx.fail(start, "use 'not' for negation")
	}
	return token{}, lx.fail(start, "unexpected character "+strconv.QuoteRune(rune(c)))
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	isFloat := false
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.pos++
	}
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '.' {
		isFloat = true
		lx.pos++
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
	}
	if lx.pos < len(lx.src) && (lx.src[lx.pos] == 'e' || lx.src[lx.pos] == 'E') {
		isFloat = true
		lx.pos++
		if lx.pos < len(lx.src) && (lx.src[lx.pos] == '+' || lx.src[lx.pos] == '-') {
			lx.pos++
		}
		digits := lx.pos
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
		if digits == lx.pos {
			return token{}, lx.fail(start, "malformed number")
		}
	}
	if lx.pos < len(lx.src) && isIdentStart(lx.src[lx.pos]) {
		return token{}, lx.fail(lx.pos, "malformed number")
	}
	text := lx.src[start:lx.pos]
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return token{kind: tkNumber, text: text, val: n, pos: start}, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, lx.fail(start, "malformed number")
	}
	return token{kind: tkNumber, text: text, val: f, pos: start}, nil
}

func (lx *lexer) str() (token, error) {
	start := lx.pos
	quote := lx.src[lx.pos]
	lx.pos++
	var b strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == quote:
			lx.pos++
			return token{kind: tkString, text: lx.src[start:lx.pos], val: b.String(), pos: start}, nil
		case c == '\\' && lx.pos+1 < len(lx.src):
			lx.pos++
			switch esc := lx.src[lx.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(esc)
			}
			lx.pos++
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
	return token{}, lx.fail(start, "unterminated string literal")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
