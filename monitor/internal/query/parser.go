// Package query implements the advanced search language of the exception
// list: a flat sequence of field:value terms joined by AND and OR, each
// optionally negated with NOT. Parsed queries render into a condition tree
// that can be executed as SQL against exception_records or evaluated in
// memory against a record.
package query

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed query.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query parse error at position %d: %s", e.Pos, e.Msg)
}

// ParsedQuery is the flat form of a query: terms in source order and the
// connective between each adjacent pair.
type ParsedQuery struct {
	Terms     []Term     `json:"terms"`
	Operators []Operator `json:"operators"`

	// Groups indexes the terms by namespace.
	Groups map[Namespace][]Term `json:"groups,omitempty"`
}

// Empty reports whether the query has no terms.
func (q *ParsedQuery) Empty() bool {
	return q == nil || len(q.Terms) == 0
}

// String renders the query back into query syntax.
func (q *ParsedQuery) String() string {
	if q.Empty() {
		return ""
	}
	var b strings.Builder
	for i, t := range q.Terms {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(string(q.Operators[i-1]))
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	return b.String()
}

func (q *ParsedQuery) add(t Term) {
	q.Terms = append(q.Terms, t)
	if q.Groups == nil {
		q.Groups = make(map[Namespace][]Term)
	}
	q.Groups[t.Namespace] = append(q.Groups[t.Namespace], t)
}

// Parse parses input. Blank input yields an empty query. Parentheses are
// accepted and ignored.
func Parse(input string) (*ParsedQuery, error) {
	all, err := lex(input)
	if err != nil {
		return nil, err
	}

	tokens := all[:0:0]
	for _, t := range all {
		if t.kind == tokLParen || t.kind == tokRParen {
			continue
		}
		tokens = append(tokens, t)
	}

	p := &parser{input: input, tokens: tokens}
	return p.parse()
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func isOperator(t token) (Operator, bool) {
	switch {
	case t.keyword("AND"):
		return OpAnd, true
	case t.keyword("OR"):
		return OpOr, true
	}
	return "", false
}

func (p *parser) parse() (*ParsedQuery, error) {
	q := &ParsedQuery{}
	if len(p.tokens) == 0 {
		return q, nil
	}

	for {
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		q.add(t)

		tok, ok := p.next()
		if !ok {
			return q, nil
		}
		op, isOp := isOperator(tok)
		if !isOp {
			return nil, p.errorf(tok.pos, "expected AND or OR before %q", tok.text)
		}
		if _, more := p.peek(); !more {
			return nil, p.errorf(tok.pos, "%s is not followed by a term", op)
		}
		q.Operators = append(q.Operators, op)
	}
}

func (p *parser) term() (Term, error) {
	negated := false
	notPos := -1

	for {
		tok, ok := p.next()
		if !ok {
			if notPos >= 0 {
				return Term{}, p.errorf(notPos, "NOT is not followed by a term")
			}
			return Term{}, p.errorf(len(p.input), "expected a term")
		}

		if tok.keyword("NOT") {
			negated = !negated
			notPos = tok.pos
			continue
		}
		if op, isOp := isOperator(tok); isOp {
			return Term{}, p.errorf(tok.pos, "%s has no left-hand term", op)
		}
		if tok.kind != tokWord {
			return Term{}, p.errorf(tok.pos, "expected field:value, found %s", tok.kind)
		}
		return p.fieldValue(p.joinGlued(tok), negated)
	}
}

// joinGlued appends to tok the words that followed it with only parentheses
// in between, so that a:(b) and (a):b read as a:b. Operator keywords are never
// joined.
func (p *parser) joinGlued(tok token) token {
	for {
		next, ok := p.peek()
		if !ok || next.kind != tokWord || !next.glued {
			return tok
		}
		if _, isOp := isOperator(next); isOp || next.keyword("NOT") {
			return tok
		}
		tok.text += next.text
		p.pos++
	}
}

func (p *parser) fieldValue(tok token, negated bool) (Term, error) {
	idx := strings.IndexByte(tok.text, ':')
	if idx < 0 {
		return Term{}, p.errorf(tok.pos, "missing ':' in %q", tok.text)
	}

	field, value := tok.text[:idx], tok.text[idx+1:]
	if !fieldPattern.MatchString(field) {
		return Term{}, p.errorf(tok.pos, "invalid field name %q", field)
	}

	switch {
	case strings.HasPrefix(value, ":"):
		return Term{}, p.errorf(tok.pos+idx+1, "unexpected ':' in value of %s", field)

	case value == "":
		quoted, ok := p.peek()
		if !ok || quoted.kind != tokQuoted || !quoted.glued {
			return Term{}, p.errorf(tok.pos+idx, "missing value for %s", field)
		}
		p.pos++
		if quoted.text == "" {
			return Term{}, p.errorf(quoted.pos, "empty value for %s", field)
		}
		value = quoted.text
	}

	return newTerm(field, value, negated), nil
}
