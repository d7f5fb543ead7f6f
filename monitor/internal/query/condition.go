package query

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

// Row is what a condition is evaluated against in memory. *models.Record
// implements it.
type Row interface {
	Value(c models.Column) (string, bool)
	Time() time.Time
}

// Expr is a node of a WHERE condition over exception_records.
//
// Match follows SQL semantics for the conditions built here: a comparison
// against a NULL column is false, and Not treats an unknown operand as false
// before negating, which is what NOT COALESCE((x), FALSE) does.
type Expr interface {
	Match(r Row) bool
	render(b *sqlBuilder)
}

// Render returns the SQL text of e with $1-based placeholders and the
// matching arguments.
func Render(e Expr) (string, []any) {
	return RenderFrom(e, 1)
}

// RenderFrom is Render with placeholders numbered from first.
func RenderFrom(e Expr, first int) (string, []any) {
	b := &sqlBuilder{next: first}
	e.render(b)
	return b.sb.String(), b.args
}

type sqlBuilder struct {
	sb   strings.Builder
	args []any
	next int
}

func (b *sqlBuilder) write(s string) {
	b.sb.WriteString(s)
}

func (b *sqlBuilder) column(c models.Column) {
	b.sb.WriteString(pgx.Identifier{string(c)}.Sanitize())
}

func (b *sqlBuilder) bind(v any) {
	b.args = append(b.args, v)
	b.sb.WriteByte('$')
	b.sb.WriteString(strconv.Itoa(b.next))
	b.next++
}

// True matches every row.
type True struct{}

func (True) Match(Row) bool       { return true }
func (True) render(b *sqlBuilder) { b.write("TRUE") }

// Cmp is column = value.
type Cmp struct {
	Column models.Column
	Value  string
}

func (c Cmp) Match(r Row) bool {
	v, ok := r.Value(c.Column)
	return ok && v == c.Value
}

func (c Cmp) render(b *sqlBuilder) {
	b.column(c.Column)
	b.write(" = ")
	b.bind(c.Value)
}

// Like is column LIKE pattern with backslash as the escape character.
type Like struct {
	Column  models.Column
	Pattern string
}

func (l Like) Match(r Row) bool {
	v, ok := r.Value(l.Column)
	return ok && MatchLike(v, l.Pattern)
}

func (l Like) render(b *sqlBuilder) {
	b.column(l.Column)
	b.write(" LIKE ")
	b.bind(l.Pattern)
	b.write(` ESCAPE '\'`)
}

// NotNull is column IS NOT NULL.
type NotNull struct {
	Column models.Column
}

func (n NotNull) Match(r Row) bool {
	_, ok := r.Value(n.Column)
	return ok
}

func (n NotNull) render(b *sqlBuilder) {
	b.column(n.Column)
	b.write(" IS NOT NULL")
}

// TimeCmp bounds the event timestamp. Both directions are inclusive.
type TimeCmp struct {
	After bool
	At    time.Time
}

// Since is timestamp >= t.
func Since(t time.Time) TimeCmp { return TimeCmp{After: true, At: t.UTC()} }

// Until is timestamp <= t.
func Until(t time.Time) TimeCmp { return TimeCmp{After: false, At: t.UTC()} }

func (c TimeCmp) Match(r Row) bool {
	t := r.Time()
	if t.IsZero() {
		return false
	}
	if c.After {
		return !t.Before(c.At)
	}
	return !t.After(c.At)
}

func (c TimeCmp) render(b *sqlBuilder) {
	b.column(models.ColumnTimestamp)
	if c.After {
		b.write(" >= ")
	} else {
		b.write(" <= ")
	}
	b.bind(c.At)
}

// And is the conjunction of two conditions.
type And struct {
	L, R Expr
}

func (a And) Match(r Row) bool { return a.L.Match(r) && a.R.Match(r) }

func (a And) render(b *sqlBuilder) {
	b.write("(")
	a.L.render(b)
	b.write(" AND ")
	a.R.render(b)
	b.write(")")
}

// Or is the disjunction of two conditions.
type Or struct {
	L, R Expr
}

func (o Or) Match(r Row) bool { return o.L.Match(r) || o.R.Match(r) }

func (o Or) render(b *sqlBuilder) {
	b.write("(")
	o.L.render(b)
	b.write(" OR ")
	o.R.render(b)
	b.write(")")
}

// Not negates a condition, treating NULL as false first.
type Not struct {
	X Expr
}

func (n Not) Match(r Row) bool { return !n.X.Match(r) }

func (n Not) render(b *sqlBuilder) {
	b.write("NOT COALESCE((")
	n.X.render(b)
	b.write("), FALSE)")
}

// Conjoin ANDs the given conditions left to right, skipping nil and True.
// It returns True when nothing is left.
func Conjoin(exprs ...Expr) Expr {
	var acc Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if _, ok := e.(True); ok {
			continue
		}
		if acc == nil {
			acc = e
			continue
		}
		acc = And{L: acc, R: e}
	}
	if acc == nil {
		return True{}
	}
	return acc
}

func anyOf(exprs ...Expr) Expr {
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = Or{L: acc, R: e}
	}
	return acc
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE metacharacters of s.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type likeOp int

const (
	likeLiteral likeOp = iota
	likeOne
	likeAny
)

type likeTok struct {
	op likeOp
	r  rune
}

func compileLike(pattern string) []likeTok {
	var toks []likeTok
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			toks = append(toks, likeTok{op: likeLiteral, r: r})
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			if n := len(toks); n > 0 && toks[n-1].op == likeAny {
				continue
			}
			toks = append(toks, likeTok{op: likeAny})
		case r == '_':
			toks = append(toks, likeTok{op: likeOne})
		default:
			toks = append(toks, likeTok{op: likeLiteral, r: r})
		}
	}
	if escaped {
		toks = append(toks, likeTok{op: likeLiteral, r: '\\'})
	}
	return toks
}

// MatchLike reports whether s matches the LIKE pattern, case-sensitively,
// with backslash escapes.
func MatchLike(s, pattern string) bool {
	toks := compileLike(pattern)
	text := make([]rune, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		text = append(text, r)
	}

	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(text) {
		if pi < len(toks) {
			switch tok := toks[pi]; tok.op {
			case likeAny:
				star, mark = pi, ti
				pi++
				continue
			case likeOne:
				ti++
				pi++
				continue
			case likeLiteral:
				if tok.r == text[ti] {
					ti++
					pi++
					continue
				}
			}
		}
		if star < 0 {
			return false
		}
		pi = star + 1
		mark++
		ti = mark
	}
	for pi < len(toks) && toks[pi].op == likeAny {
		pi++
	}
	return pi == len(toks)
}
