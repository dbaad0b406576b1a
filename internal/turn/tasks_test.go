package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanProposal(t *testing.T) {
	raw := `{"tasks":[{"content":"Add route","description":"wire POST /widgets in routes.go"},{"content":"Add tests","description":"cover the happy path and a 400"}]}`
	steps, planText, err := parsePlanProposal(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"Add route", "Add tests"}, steps)
	assert.NotEmpty(t, planText, "expected non-empty plan text")
}

func TestParsePlanProposalRejectsEmpty(t *testing.T) {
	_, _, err := parsePlanProposal(`{"tasks":[]}`)
	assert.Error(t, err, "expected an error for an empty task list")
}

func TestParsePlanProposalRejectsInvalidJSON(t *testing.T) {
	_, _, err := parsePlanProposal(`not json`)
	assert.Error(t, err, "expected an error for invalid JSON")
}
