package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatJSON)
	assert.True(t, p.JSON())

	require.NoError(t, p.Data(map[string]int{"count": 2}))
	assert.Equal(t, "{\n  \"count\": 2\n}\n", buf.String())

	buf.Reset()
	p.Table([]string{"ID", "TITLE"}, [][]string{{"abc", "first"}, {"defghi", "second"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "TITLE"), strings.Index(lines[1], "first"))

	buf.Reset()
	p.Warning("%d overdue", 2)
	assert.Contains(t, buf.String(), "Warning: 2 overdue")
}
