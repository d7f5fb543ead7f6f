package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

func mustCondition(t *testing.T, input string) Expr {
	t.Helper()
	q, err := Parse(input)
	require.NoError(t, err)
	cond, dropped := q.Condition()
	require.Empty(t, dropped)
	return cond
}

func TestCondition_SQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		sql   string
		args  []any
	}{
		{
			name:  "exact",
			input: "exceptionType:Runtime",
			sql:   `"exception_type" = $1`,
			args:  []any{"Runtime"},
		},
		{
			name:  "and",
			input: "exceptionType:Runtime AND environment:PROD",
			sql:   `("exception_type" = $1 AND "environment" = $2)`,
			args:  []any{"Runtime", "PROD"},
		},
		{
			name:  "left associative",
			input: "exceptionType:A OR exceptionType:B AND environment:PROD",
			sql:   `(("exception_type" = $1 OR "exception_type" = $2) AND "environment" = $3)`,
			args:  []any{"A", "B", "PROD"},
		},
		{
			name:  "not",
			input: "NOT exceptionType:Runtime",
			sql:   `NOT COALESCE(("exception_type" = $1), FALSE)`,
			args:  []any{"Runtime"},
		},
		{
			name:  "exists",
			input: "podIp:*",
			sql:   `"pod_ip" IS NOT NULL`,
		},
		{
			name:  "prefix escapes metacharacters",
			input: "message:50%_off*",
			sql:   `"message" LIKE $1 ESCAPE '\'`,
			args:  []any{`50\%\_off%`},
		},
		{
			name:  "suffix",
			input: "serviceName:*Service",
			sql:   `"service_name" LIKE $1 ESCAPE '\'`,
			args:  []any{`%Service`},
		},
		{
			name:  "contains header",
			input: "headers.X-Trace:*abc*",
			sql:   `"additional_data" LIKE $1 ESCAPE '\'`,
			args:  []any{`%"httpHeaders":{%"X-Trace":"%abc%"%`},
		},
		{
			name:  "header exists",
			input: "headers.Authorization:*",
			sql:   `"additional_data" LIKE $1 ESCAPE '\'`,
			args:  []any{`%"httpHeaders":{%"Authorization":%`},
		},
		{
			name:  "any header",
			input: "headers.*:gzip",
			sql:   `"additional_data" LIKE $1 ESCAPE '\'`,
			args:  []any{`%"httpHeaders":{%gzip%`},
		},
		{
			name:  "param matches scalar and list",
			input: "params.q:shoes",
			sql:   `("additional_data" LIKE $1 ESCAPE '\' OR "additional_data" LIKE $2 ESCAPE '\')`,
			args:  []any{`%"requestParameters":{%"q":"shoes"%`, `%"requestParameters":{%"q":[%"shoes"%`},
		},
		{
			name:  "additional data exact",
			input: "additionalData.user_id:42",
			sql:   `(("additional_data" LIKE $1 ESCAPE '\' OR "additional_data" LIKE $2 ESCAPE '\') OR "additional_data" LIKE $3 ESCAPE '\')`,
			args:  []any{`%"user\_id":"42"%`, `%"user\_id":42,%`, `%"user\_id":42}%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := Render(mustCondition(t, tt.input))
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCondition_DropsUnsafeAndUnknown(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		sql     string
		dropped int
	}{
		{"unknown field", "colour:red OR exceptionType:X", `"exception_type" = $1`, 1},
		{"backslash", `message:a\b AND exceptionType:X`, `"exception_type" = $1`, 1},
		{"middle term takes its connective", "exceptionType:A OR colour:x AND environment:P", `("exception_type" = $1 AND "environment" = $2)`, 1},
		{"everything dropped", "colour:red", "TRUE", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)

			cond, dropped := q.Condition()
			assert.Len(t, dropped, tt.dropped)
			sql, _ := Render(cond)
			assert.Equal(t, tt.sql, sql)
		})
	}
}

func TestTermCondition_ControlCharacter(t *testing.T) {
	_, err := TermCondition(Term{Field: "message", Namespace: NamespaceStandard, Key: "message", Value: "a\x01b"})
	assert.Error(t, err)
}

func TestRenderFrom_Numbering(t *testing.T) {
	cond := Conjoin(Cmp{Column: models.ColumnProjectName, Value: "P"}, mustCondition(t, "exceptionType:Runtime"))
	sql, args := RenderFrom(cond, 3)
	assert.Equal(t, `("project_name" = $3 AND "exception_type" = $4)`, sql)
	assert.Equal(t, []any{"P", "Runtime"}, args)
}

func TestFallback(t *testing.T) {
	sql, args := Render(Fallback("exceptionType::::"))
	assert.Equal(t, `"additional_data" LIKE $1 ESCAPE '\'`, sql)
	assert.Equal(t, []any{`%exceptionType::::%`}, args)

	_, args = Render(Fallback("a\x00b_\xff"))
	assert.Equal(t, []any{`%ab\_` + "�" + `%`}, args)
}

func record(additional string) *models.Record {
	return &models.Record{
		ID:             "r",
		ExceptionType:  "Runtime",
		Timestamp:      events.NewLocalDateTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		AdditionalData: additional,
	}
}

func TestCondition_MatchAdditionalData(t *testing.T) {
	headers := record(`{"httpHeaders":{"Accept":"text/html","X-Trace":"xx-abc-yy"},"remoteAddress":"10.0.0.1"}`)
	other := record(`{"httpHeaders":{"X-Trace":"def"}}`)
	crossKey := record(`{"httpHeaders":{"X-Trace":"def","X-User":"abc"}}`)
	params := record(`{"requestParameters":{"q":["foo","bar"],"page":"2"}}`)
	extra := record(`{"userId":42,"tier":"gold","nested":{"flag":true}}`)
	empty := record("")

	tests := []struct {
		input string
		match []*models.Record
		miss  []*models.Record
	}{
		{"headers.X-Trace:*abc*", []*models.Record{headers}, []*models.Record{other, params, empty}},
		{"headers.X-Trace:def", []*models.Record{other}, []*models.Record{headers}},
		// wildcard values are substring matches and can land in a later header
		{"headers.X-Trace:*abc*", []*models.Record{crossKey}, nil},
		{"headers.X-Trace:abc", nil, []*models.Record{crossKey}},
		{"headers.X-Trace:xx-*", []*models.Record{headers}, []*models.Record{other}},
		{"headers.X-Trace:*-yy", []*models.Record{headers}, []*models.Record{other}},
		{"headers.X-Trace:*", []*models.Record{headers, other}, []*models.Record{params, empty}},
		{"headers.*:*html*", []*models.Record{headers}, []*models.Record{other}},
		{"headers.*:*", []*models.Record{headers, other}, []*models.Record{params, extra}},
		{"params.q:foo", []*models.Record{params}, []*models.Record{headers}},
		{"params.q:bar", []*models.Record{params}, nil},
		{"params.q:ba*", []*models.Record{params}, nil},
		{"params.q:baz", nil, []*models.Record{params}},
		{"params.page:2", []*models.Record{params}, nil},
		{"params.*:bar", []*models.Record{params}, []*models.Record{headers}},
		{"additionalData.userId:42", []*models.Record{extra}, []*models.Record{params}},
		{"additionalData.userId:4", nil, []*models.Record{extra}},
		{"additionalData.tier:gold", []*models.Record{extra}, nil},
		{"additionalData.tier:gol*", []*models.Record{extra}, nil},
		{"additionalData.tier:*old", []*models.Record{extra}, nil},
		{"additionalData.flag:true", []*models.Record{extra}, nil},
		{"additionalData.remoteAddress:*", []*models.Record{headers}, []*models.Record{extra}},
		{"additionalData.missing:*", nil, []*models.Record{headers, extra, empty}},
		{"NOT headers.X-Trace:*", []*models.Record{params, extra, empty}, []*models.Record{headers, other}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cond := mustCondition(t, tt.input)
			for _, r := range tt.match {
				assert.True(t, cond.Match(r), "expected %s to match %q", tt.input, r.AdditionalData)
			}
			for _, r := range tt.miss {
				assert.False(t, cond.Match(r), "expected %s not to match %q", tt.input, r.AdditionalData)
			}
		})
	}
}

func TestCondition_MatchStandard(t *testing.T) {
	runtime := &models.Record{ID: "1", ExceptionType: "Runtime", Environment: "PROD", Message: "50% off"}
	illegal := &models.Record{ID: "2", ExceptionType: "IllegalArgument", Environment: "UAT", Message: "500 off"}
	bare := &models.Record{ID: "3"}

	tests := []struct {
		input string
		want  []string
	}{
		{"exceptionType:Runtime AND environment:PROD", []string{"1"}},
		{"NOT exceptionType:Runtime", []string{"2", "3"}},
		{"NOT NOT exceptionType:Runtime", []string{"1"}},
		{"environment:*", []string{"1", "2"}},
		{"NOT environment:*", []string{"3"}},
		{"message:50%*", []string{"1"}},
		{"message:*off", []string{"1", "2"}},
		{"exceptionType:runtime", nil},
		{"exceptionType:Illegal* OR environment:PROD", []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cond := mustCondition(t, tt.input)
			var got []string
			for _, r := range []*models.Record{runtime, illegal, bare} {
				if cond.Match(r) {
					got = append(got, r.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
