package workspace

import (
	"context"
	"fmt"
	"regexp"
)

// symbolKinds are the cross-language declaration keywords FindSymbol looks
// for; a heuristic grep, not a real parser (spec.md §4.B lists find_symbol
// among the built-in tools, with no language server behind it).
var symbolKinds = []string{"func", "function", "def", "class", "struct", "interface", "type", "const", "var", "let"}

// FindSymbol greps for a declaration of name — any of symbolKinds followed
// by the identifier — across the workspace, shared by the find_symbol tool
// and the /api/find-symbol facade endpoint so both search the same way.
func (w *Workspace) FindSymbol(ctx context.Context, name, include string) ([]GrepMatch, int, error) {
	pattern := fmt.Sprintf(`\b(%s)\s+\*?%s\b`, joinAlternatives(symbolKinds), regexp.QuoteMeta(name))
	return w.Grep(ctx, pattern, "", include)
}

func joinAlternatives(kinds []string) string {
	out := kinds[0]
	for _, k := range kinds[1:] {
		out += "|" + k
	}
	return out
}
