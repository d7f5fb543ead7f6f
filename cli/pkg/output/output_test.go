package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func newPrinter(format string) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut, format), &out, &errOut
}

func TestMessages(t *testing.T) {
	p, out, errOut := newPrinter("table")

	p.Success("Created %d items", 5)
	p.Info("plain")
	p.Warn("careful")
	p.Error("failed: %s", "boom")

	assert.Equal(t, "✓ Created 5 items\nplain\n⚠ careful\n", out.String())
	assert.Equal(t, "✗ failed: boom\n", errOut.String())
}

type sample struct {
	ExceptionType string `json:"exceptionType"`
	Count         int64  `json:"count"`
}

func TestData(t *testing.T) {
	v := []sample{{"NullPointerException", 3}}

	p, out, _ := newPrinter("JSON")
	handled, err := p.Data(v)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, p.Structured())
	assert.JSONEq(t, `[{"exceptionType":"NullPointerException","count":3}]`, out.String())

	p, out, _ = newPrinter("yaml")
	handled, err = p.Data(v)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "- exceptionType: NullPointerException\n  count: 3\n", out.String())

	p, out, _ = newPrinter("table")
	handled, err = p.Data(v)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.False(t, p.Structured())
	assert.Empty(t, out.String())
}

func TestTable(t *testing.T) {
	tbl := NewTable("TYPE", "COUNT")
	tbl.AddRow("IllegalStateException", "12")
	tbl.AddRow("IOError", "3")
	assert.Equal(t, 2, tbl.Len())

	var buf bytes.Buffer
	tbl.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "TYPE                   COUNT  ", lines[0])
	assert.Equal(t, "---------------------  -----  ", lines[1])
	assert.Equal(t, "IllegalStateException  12     ", lines[2])
	assert.Equal(t, "IOError                3      ", lines[3])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "a b c", Truncate("a\n  b\tc", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "(none)", OrNone(""))
	assert.Equal(t, "x", OrNone("x"))
}
