package token

import "strings"

// Heuristic is a best-effort estimator for models without a known encoding:
// tokens ~= len(text)/4, clamped to at least 1 for non-empty text. Stable and
// cross-model, but never exact.
type Heuristic struct{}

func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Count(text, model string) (int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, nil
	}
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n, nil
}
