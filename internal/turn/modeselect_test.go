package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Mode
	}{
		{"short imperative", "fix the failing test", ModeDirect},
		{"short non-imperative still direct under threshold", "the login page looks broken", ModeDirect},
		{"long open-ended request", "Please design and implement an entirely new subsystem end to end, including API routes, persistence, and tests", ModeScoutPlan},
		{"explicit plan prefix", "/plan add OAuth support", ModeScoutPlan},
		{"explicit direct prefix on a long request", "/direct Please design and implement an entirely new subsystem end to end", ModeDirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := SelectMode(tt.text)
			assert.Equal(t, tt.want, got, "SelectMode(%q)", tt.text)
		})
	}
}

func TestSelectModeStripsPrefix(t *testing.T) {
	_, stripped := SelectMode("/plan   add OAuth support")
	assert.Equal(t, "add OAuth support", stripped, "expected prefix and whitespace stripped")
}
