package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capturingT records failures instead of failing the test.
type capturingT struct {
	failures []string
}

func (c *capturingT) Helper() {}

func (c *capturingT) Errorf(format string, args ...any) {
	c.failures = append(c.failures, fmt.Sprintf(format, args...))
}

func TestAssertTextCollapsesTableColumns(t *testing.T) {
	ct := &capturingT{}
	ok := AssertText(ct, "NAME    ADDRESS\nbuds    11:22:33:44:55:66  \n", "NAME ADDRESS\nbuds 11:22:33:44:55:66", WithCollapsedSpaces())
	assert.True(t, ok)
	assert.Empty(t, ct.failures)
}

func TestAssertTextReportsUnifiedDiff(t *testing.T) {
	ct := &capturingT{}
	ok := AssertText(ct, "ble  goble\nse  stub", "ble  goble\nse  absent")
	assert.False(t, ok)
	assert.Len(t, ct.failures, 1)
	assert.Contains(t, ct.failures[0], "-se  absent")
	assert.Contains(t, ct.failures[0], "+se  stub")
}

func TestTextDiffColors(t *testing.T) {
	diff := TextDiff("a b", "a c", TextAssertOptions{EnableColors: true})
	assert.Contains(t, diff, "\x1b[")
	assert.Contains(t, diff, "a·b")
}

func TestAssertJSON(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []JSONOption
		match    bool
	}{
		{"equal", `{"target":"embedded"}`, `{"target":"embedded"}`, nil, true},
		{"extra keys ignored", `{"target":"embedded","bindings":{}}`, `{"target":"embedded"}`, nil, true},
		{"extra keys compared", `{"target":"embedded","bindings":{}}`, `{"target":"embedded"}`, []JSONOption{WithExtraKeys()}, false},
		{"presence", `{"address":"11:22:33:44:55:66","rssi":-40}`, `{"address":"<<PRESENCE>>","rssi":-40}`, nil, true},
		{"presence of missing key", `{"rssi":-40}`, `{"address":"<<PRESENCE>>","rssi":-40}`, nil, false},
		{"ignored field", `[{"name":"a","rssi":-40}]`, `[{"name":"a","rssi":-90}]`, []JSONOption{WithIgnoredFields("rssi")}, true},
		{"array mismatch", `[{"name":"a"}]`, `[{"name":"b"}]`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := &capturingT{}
			assert.Equal(t, tt.match, AssertJSON(ct, tt.actual, tt.expected, tt.opts...))
		})
	}
}

func TestJSONDiffRejectsInvalidInput(t *testing.T) {
	assert.Contains(t, JSONDiff("{", "{}", JSONAssertOptions{}), "invalid actual JSON")
	assert.Contains(t, JSONDiff("{}", "[", JSONAssertOptions{}), "invalid expected JSON")
}
