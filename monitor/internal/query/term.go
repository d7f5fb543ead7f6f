package query

import (
	"regexp"
	"strings"

	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

// Namespace groups terms by the part of the record they address.
type Namespace string

const (
	NamespaceStandard       Namespace = "standard"
	NamespaceHeaders        Namespace = "headers"
	NamespaceParams         Namespace = "params"
	NamespaceAdditionalData Namespace = "additionalData"
)

// Kind is the wildcard shape of a term value.
type Kind int

const (
	KindExact Kind = iota
	KindPrefix
	KindSuffix
	KindContains
	KindExists
)

func (k Kind) String() string {
	switch k {
	case KindPrefix:
		return "prefix"
	case KindSuffix:
		return "suffix"
	case KindContains:
		return "contains"
	case KindExists:
		return "exists"
	default:
		return "exact"
	}
}

// Operator joins two adjacent terms.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// Term is one field:value unit of a query.
type Term struct {
	// Field is the field as typed, e.g. "headers.X-Trace".
	Field     string    `json:"field"`
	Namespace Namespace `json:"namespace"`
	// Key is the header, parameter or additional-data key, or the bare
	// field name for standard terms.
	Key string `json:"key"`
	// Value has its wildcard stars removed.
	Value   string `json:"value"`
	Kind    Kind   `json:"kind"`
	Negated bool   `json:"negated"`
}

// String renders the term back into query syntax.
func (t Term) String() string {
	var b strings.Builder
	if t.Negated {
		b.WriteString("NOT ")
	}
	b.WriteString(t.Field)
	b.WriteByte(':')

	v := t.Value
	switch t.Kind {
	case KindExists:
		v = "*"
	case KindPrefix:
		v += "*"
	case KindSuffix:
		v = "*" + v
	case KindContains:
		v = "*" + v + "*"
	}
	if strings.ContainsAny(v, " \t\n()") {
		b.WriteString(`"` + v + `"`)
	} else {
		b.WriteString(v)
	}
	return b.String()
}

// fieldPattern is a dotted identifier. Segments after the first may contain
// '-' (header names) and '*' (any key).
var fieldPattern = regexp.MustCompile(`^[A-Za-z_]\w*(\.[\w*-]+)*$`)

// standardColumns maps bare field names to record columns.
var standardColumns = map[string]models.Column{
	"exceptionType": models.ColumnExceptionType,
	"message":       models.ColumnMessage,
	"environment":   models.ColumnEnvironment,
	"projectName":   models.ColumnProjectName,
	"componentName": models.ColumnComponentName,
	"serviceName":   models.ColumnServiceName,
	"method":        models.ColumnMethod,
	"podName":       models.ColumnPodName,
	"podIp":         models.ColumnPodIP,
}

// StandardFields returns the bare field names the language understands.
func StandardFields() []string {
	return []string{"exceptionType", "message", "environment", "projectName", "componentName", "serviceName", "method", "podName", "podIp"}
}

func splitNamespace(field string) (Namespace, string) {
	for _, ns := range []Namespace{NamespaceHeaders, NamespaceParams, NamespaceAdditionalData} {
		prefix := string(ns) + "."
		if strings.HasPrefix(field, prefix) {
			return ns, field[len(prefix):]
		}
	}
	return NamespaceStandard, field
}

// classify strips wildcard stars from a raw value.
func classify(raw string) (Kind, string) {
	switch {
	case raw == "*":
		return KindExists, ""
	case len(raw) >= 2 && strings.HasPrefix(raw, "*") && strings.HasSuffix(raw, "*"):
		return KindContains, raw[1 : len(raw)-1]
	case strings.HasPrefix(raw, "*"):
		return KindSuffix, raw[1:]
	case strings.HasSuffix(raw, "*"):
		return KindPrefix, raw[:len(raw)-1]
	default:
		return KindExact, raw
	}
}

func newTerm(field, rawValue string, negated bool) Term {
	ns, key := splitNamespace(field)
	kind, value := classify(rawValue)
	return Term{
		Field:     field,
		Namespace: ns,
		Key:       key,
		Value:     value,
		Kind:      kind,
		Negated:   negated,
	}
}
