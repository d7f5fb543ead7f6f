package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

const (
	sectionHeaders = "httpHeaders"
	sectionParams  = "requestParameters"
)

// Dropped is a term that produced no condition.
type Dropped struct {
	Term   Term
	Reason string
}

// Condition renders the query into a condition tree. Terms are folded left to
// right with their connectives. A dropped term takes its preceding connective
// with it. The result is True when no term survives.
func (q *ParsedQuery) Condition() (Expr, []Dropped) {
	if q.Empty() {
		return True{}, nil
	}

	var (
		acc     Expr
		dropped []Dropped
	)
	for i, t := range q.Terms {
		e, err := TermCondition(t)
		if err != nil {
			dropped = append(dropped, Dropped{Term: t, Reason: err.Error()})
			continue
		}
		if acc == nil {
			acc = e
			continue
		}
		if q.Operators[i-1] == OpOr {
			acc = Or{L: acc, R: e}
		} else {
			acc = And{L: acc, R: e}
		}
	}
	if acc == nil {
		return True{}, dropped
	}
	return acc, dropped
}

// TermCondition renders a single term, including its negation.
func TermCondition(t Term) (Expr, error) {
	if reason := unsafeValue(t.Value); reason != "" {
		return nil, fmt.Errorf("value of %s %s", t.Field, reason)
	}

	var (
		e   Expr
		err error
	)
	switch t.Namespace {
	case NamespaceHeaders:
		e = sectionCondition(sectionHeaders, t, false)
	case NamespaceParams:
		e = sectionCondition(sectionParams, t, true)
	case NamespaceAdditionalData:
		e = additionalDataCondition(t)
	default:
		e, err = standardCondition(t)
	}
	if err != nil {
		return nil, err
	}
	if t.Negated {
		e = Not{X: e}
	}
	return e, nil
}

func unsafeValue(v string) string {
	if !utf8.ValidString(v) {
		return "is not valid UTF-8"
	}
	for _, r := range v {
		switch {
		case r == '"':
			return "contains a double quote"
		case r == '\\':
			return "contains a backslash"
		case unicode.IsControl(r):
			return "contains a control character"
		}
	}
	return ""
}

func standardCondition(t Term) (Expr, error) {
	col, ok := standardColumns[t.Key]
	if !ok {
		return nil, fmt.Errorf("unknown field %s", t.Field)
	}
	v := EscapeLike(t.Value)
	switch t.Kind {
	case KindExists:
		return NotNull{Column: col}, nil
	case KindPrefix:
		return Like{Column: col, Pattern: v + "%"}, nil
	case KindSuffix:
		return Like{Column: col, Pattern: "%" + v}, nil
	case KindContains:
		return Like{Column: col, Pattern: "%" + v + "%"}, nil
	default:
		return Cmp{Column: col, Value: t.Value}, nil
	}
}

func jsonLike(pattern string) Expr {
	return Like{Column: models.ColumnAdditionalData, Pattern: pattern}
}

// sectionCondition matches inside the httpHeaders or requestParameters
// object. Parameters may be stored as a list of values, so for them each
// value shape also matches the list form.
//
// The patterns are substring matches over the stored text, not JSON paths.
// A contains, prefix or suffix value may be found in a later key of the same
// or a following object, so headers.X-Trace:*abc* also matches a record whose
// X-Trace is "def" when another header after it contains "abc".
func sectionCondition(section string, t Term, lists bool) Expr {
	base := `%"` + section + `":{`
	v := EscapeLike(t.Value)

	if t.Key == "*" {
		if t.Kind == KindExists {
			return jsonLike(base + `"%`)
		}
		return jsonLike(base + "%" + v + "%")
	}

	keyed := base + `%"` + EscapeLike(t.Key) + `":`
	var scalar, list string
	switch t.Kind {
	case KindExists:
		return jsonLike(keyed + "%")
	case KindPrefix:
		scalar, list = `"`+v+`%"%`, `[%"`+v+`%`
	case KindSuffix:
		scalar, list = `"%`+v+`"%`, `[%`+v+`"%`
	case KindContains:
		scalar, list = `"%`+v+`%"%`, `[%`+v+`%`
	default:
		scalar, list = `"`+v+`"%`, `[%"`+v+`"%`
	}
	if !lists {
		return jsonLike(keyed + scalar)
	}
	return anyOf(jsonLike(keyed+scalar), jsonLike(keyed+list))
}

// additionalDataCondition matches a top-level or nested key anywhere in the
// stored JSON, as a string value or as a bare number, boolean or null.
func additionalDataCondition(t Term) Expr {
	v := EscapeLike(t.Value)

	if t.Key == "*" {
		return jsonLike("%" + v + "%")
	}

	keyed := `%"` + EscapeLike(t.Key) + `":`
	switch t.Kind {
	case KindExists:
		return jsonLike(keyed + "%")
	case KindContains:
		return jsonLike(keyed + "%" + v + "%")
	case KindPrefix:
		return anyOf(jsonLike(keyed+`"`+v+"%"), jsonLike(keyed+v+"%"))
	case KindSuffix:
		return anyOf(jsonLike(keyed+"%"+v+`"%`), jsonLike(keyed+"%"+v+",%"), jsonLike(keyed+"%"+v+"}%"))
	default:
		return anyOf(jsonLike(keyed+`"`+v+`"%`), jsonLike(keyed+v+",%"), jsonLike(keyed+v+"}%"))
	}
}

// Fallback is the condition used when input does not parse: a substring
// match of the raw input over additional_data.
func Fallback(input string) Expr {
	needle := strings.ReplaceAll(input, "\x00", "")
	needle = strings.ToValidUTF8(needle, "�")
	return jsonLike("%" + EscapeLike(needle) + "%")
}
