package guardrails

import "strings"

// IsRefusal reports whether reply text reads as a refusal: a
// case-insensitive substring match against the policy refusal markers.
// Model output is trusted, so no de-obfuscation is applied. When the policy
// is unavailable every reply counts as a refusal.
func (e *Engine) IsRefusal(text string) bool {
	pol, err := e.store.Policy()
	if err != nil {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	return containsAny(lower, pol.RefusalMarkers)
}
