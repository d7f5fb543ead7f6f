package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokWord:
		return "word"
	case tokQuoted:
		return "quoted string"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int

	// glued is set when no whitespace separates the token from the previous one.
	glued bool
}

// keyword reports whether the token is the bare word kw, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

// lex splits input into words, quoted strings and parentheses. A word is a run
// of characters other than whitespace, parentheses and double quotes.
func lex(input string) ([]token, error) {
	var tokens []token
	glued := false

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])

		switch {
		case unicode.IsSpace(r):
			glued = false
			i += size
			continue

		case r == '(' || r == ')':
			kind := tokLParen
			if r == ')' {
				kind = tokRParen
			}
			// glued is left as is: parentheses are transparent, so "a:(b)"
			// still reads as a:b once they are flattened
			tokens = append(tokens, token{kind: kind, text: string(r), pos: i, glued: glued})
			i += size
			continue

		case r == '"':
			end := strings.IndexByte(input[i+1:], '"')
			if end < 0 {
				return nil, &ParseError{Pos: i, Msg: "unterminated quoted string"}
			}
			tokens = append(tokens, token{kind: tokQuoted, text: input[i+1 : i+1+end], pos: i, glued: glued})
			i += end + 2
			glued = true
			continue
		}

		start := i
		for i < len(input) {
			r, size = utf8.DecodeRuneInString(input[i:])
			if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
				break
			}
			i += size
		}
		tokens = append(tokens, token{kind: tokWord, text: input[start:i], pos: start, glued: glued})
		glued = true
	}

	return tokens, nil
}
