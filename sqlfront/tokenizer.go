// Package sqlfront implements the SQL front-end: tokenize, parse, optimize,
// canonicalize and extract features from a single SELECT statement. The
// pipeline shape (parse -> optimize -> to_sql) is grounded on
// original_source/src/irouter/engine.py's QueryEngine.execute; the concrete
// clause-splitting this replaces is a generalization of the teacher's
// regex-based querier.QueryClient.ParseQuery into a real tokenizer and AST.
package sqlfront

import (
	"strings"
	"unicode"

	"github.com/irouter/qrouter/core"
)

// TokenKind tags a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokNumber
	TokString
	TokPunct
	TokKeyword
)

// Token is one lexical unit produced by the Tokenizer, with the byte offset
// it started at (used for ParseError.Pos).
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "GROUP": true, "BY": true, "HAVING": true, "ORDER": true,
	"LIMIT": true, "AS": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "FULL": true, "ON": true, "IN": true, "IS": true,
	"NULL": true, "BETWEEN": true, "DISTINCT": true, "ASC": true, "DESC": true,
	"TRUE": true, "FALSE": true, "OVER": true, "PARTITION": true,
}

// Tokenizer lexes a SQL string into a token stream. Only what a single
// SELECT statement needs is supported: identifiers, dotted qualifiers,
// numeric/string/boolean literals, comparison and arithmetic operators, and
// parens/commas.
type Tokenizer struct {
	src  string
	pos  int
	toks []Token
}

func NewTokenizer(src string) *Tokenizer {
	return &Tokenizer{src: src}
}

// Tokenize lexes the whole input and returns the token stream, terminated by
// a TokEOF token. Returns a *core.Error{Kind: ErrParse} on invalid input
// (e.g. an unterminated string literal).
func Tokenize(src string) ([]Token, error) {
	t := NewTokenizer(src)
	for {
		tok, err := t.next()
		if err != nil {
			return nil, err
		}
		t.toks = append(t.toks, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return t.toks, nil
}

func (t *Tokenizer) peekRune() (rune, int) {
	if t.pos >= len(t.src) {
		return 0, 0
	}
	r := rune(t.src[t.pos])
	return r, 1
}

func (t *Tokenizer) skipSpace() {
	for t.pos < len(t.src) && unicode.IsSpace(rune(t.src[t.pos])) {
		t.pos++
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (t *Tokenizer) next() (Token, error) {
	t.skipSpace()
	start := t.pos
	if t.pos >= len(t.src) {
		return Token{Kind: TokEOF, Pos: start}, nil
	}

	r, _ := t.peekRune()

	switch {
	case isIdentStart(r):
		for t.pos < len(t.src) && isIdentPart(rune(t.src[t.pos])) {
			t.pos++
		}
		text := t.src[start:t.pos]
		if keywords[strings.ToUpper(text)] {
			return Token{Kind: TokKeyword, Text: strings.ToUpper(text), Pos: start}, nil
		}
		return Token{Kind: TokIdent, Text: text, Pos: start}, nil

	case unicode.IsDigit(r):
		for t.pos < len(t.src) && (unicode.IsDigit(rune(t.src[t.pos])) || t.src[t.pos] == '.') {
			t.pos++
		}
		return Token{Kind: TokNumber, Text: t.src[start:t.pos], Pos: start}, nil

	case r == '\'':
		t.pos++
		var b strings.Builder
		for {
			if t.pos >= len(t.src) {
				return Token{}, core.NewParseError(start, "unterminated string literal")
			}
			if t.src[t.pos] == '\'' {
				if t.pos+1 < len(t.src) && t.src[t.pos+1] == '\'' {
					b.WriteByte('\'')
					t.pos += 2
					continue
				}
				t.pos++
				break
			}
			b.WriteByte(t.src[t.pos])
			t.pos++
		}
		return Token{Kind: TokString, Text: b.String(), Pos: start}, nil

	case r == '<' || r == '>' || r == '!' || r == '=':
		t.pos++
		if t.pos < len(t.src) && (t.src[t.pos] == '=' || (r == '<' && t.src[t.pos] == '>')) {
			t.pos++
		}
		return Token{Kind: TokPunct, Text: t.src[start:t.pos], Pos: start}, nil

	case strings.ContainsRune("(),.*+-/|;", r):
		t.pos++
		if r == '|' && t.pos < len(t.src) && t.src[t.pos] == '|' {
			t.pos++
		}
		return Token{Kind: TokPunct, Text: t.src[start:t.pos], Pos: start}, nil

	default:
		return Token{}, core.NewParseError(start, "unexpected character "+string(r))
	}
}
