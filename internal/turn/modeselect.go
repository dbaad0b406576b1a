package turn

import "strings"

// Mode is the path the Turn Engine takes for one turn (spec.md §4.D).
type Mode int

const (
	ModeDirect Mode = iota
	ModeScoutPlan
)

// directImperatives are verbs that usually signal a narrow, already-scoped
// instruction better served by DIRECT than by a scout-and-plan detour.
var directImperatives = []string{
	"fix ", "rename ", "add a test", "run ", "print ", "show ", "what ", "why ",
	"explain ", "format ", "revert", "undo", "delete ", "remove ",
}

// directLengthThreshold: requests shorter than this are assumed to be a
// single focused instruction rather than a multi-file feature request.
const directLengthThreshold = 80

// SelectMode chooses DIRECT vs SCOUT+PLAN for a user message. The policy is
// deterministic given the input: an explicit `/plan` or `/direct` prefix
// always wins; otherwise short, imperative-led requests go DIRECT and
// longer, open-ended ones go SCOUT+PLAN (spec.md §4.D "Mode selection").
func SelectMode(userText string) (mode Mode, stripped string) {
	trimmed := strings.TrimSpace(userText)
	switch {
	case strings.HasPrefix(trimmed, "/plan "):
		return ModeScoutPlan, strings.TrimSpace(strings.TrimPrefix(trimmed, "/plan "))
	case trimmed == "/plan":
		return ModeScoutPlan, ""
	case strings.HasPrefix(trimmed, "/direct "):
		return ModeDirect, strings.TrimSpace(strings.TrimPrefix(trimmed, "/direct "))
	case trimmed == "/direct":
		return ModeDirect, ""
	}

	if len(trimmed) <= directLengthThreshold {
		lower := strings.ToLower(trimmed)
		for _, imp := range directImperatives {
			if strings.HasPrefix(lower, imp) {
				return ModeDirect, trimmed
			}
		}
	}

	if len(trimmed) <= directLengthThreshold {
		return ModeDirect, trimmed
	}
	return ModeScoutPlan, trimmed
}
