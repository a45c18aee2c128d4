package guardrails

import "strings"

const harmfulMaxDistance = 2

// ClassifyTopicScope decides whether text falls inside the approved topic
// scope. Stages run as a strict precedence chain: the harmful-content check
// first, then blocked broad categories in policy order, then allowed-topic
// matching. A harmful or blocked hit is never overridden by an incidental
// topic match. When the policy is unavailable the text is out of scope.
func (e *Engine) ClassifyTopicScope(text string) ScopeDecision {
	pol, err := e.store.Policy()
	if err != nil {
		return ScopeDecision{
			BlockedCategory: policyRequiredCategory,
			MatchedTopics:   []string{},
		}
	}
	nt := NormalizeAndTokenize(text)
	if harmful(pol, nt) {
		return ScopeDecision{
			BlockedCategory: HarmfulCategory,
			MatchedTopics:   []string{},
		}
	}
	if cat := blockedCategory(pol, nt.Text); cat != "" {
		return ScopeDecision{
			BlockedCategory: cat,
			MatchedTopics:   []string{},
		}
	}
	topics := matchedTopics(pol, nt.Text)
	return ScopeDecision{
		IsInScope:     len(topics) > 0,
		MatchedTopics: topics,
	}
}

// DetectHarmfulContent reports whether text matches a harmful canonical term
// or carries a misuse signature. Policy unavailable counts as harmful.
func (e *Engine) DetectHarmfulContent(text string) bool {
	pol, err := e.store.Policy()
	if err != nil {
		return true
	}
	return harmful(pol, NormalizeAndTokenize(text))
}

func harmful(pol *Policy, nt NormalizedText) bool {
	if tokenNearTerms(nt.Tokens, pol.HarmfulCanonicalTerms, harmfulMaxDistance) {
		return true
	}
	return misuseSignature(pol, nt)
}

// misuseSignature holds when an intent phrase and a misuse target appear
// together without any safety-context framing.
func misuseSignature(pol *Policy, nt NormalizedText) bool {
	if !pol.MisuseIntentPatterns.AnyMatch(nt.Text) {
		return false
	}
	target := pol.MisuseTargetPatterns.AnyMatch(nt.Text) ||
		tokenNearTerms(nt.Tokens, pol.MisuseTargetTerms, harmfulMaxDistance)
	if !target {
		return false
	}
	for _, hint := range pol.SafetyContextHints {
		if strings.Contains(nt.Text, hint) {
			return false
		}
	}
	return true
}

func blockedCategory(pol *Policy, text string) string {
	for _, cat := range pol.BlockedCategories {
		if cat.Patterns.AnyMatch(text) {
			return cat.Name
		}
	}
	return ""
}

func matchedTopics(pol *Policy, text string) []string {
	matched := make([]string, 0, len(pol.Topics))
	for _, topic := range pol.Topics {
		if containsAny(text, topic.Keywords) || topic.Patterns.AnyMatch(text) {
			matched = append(matched, topic.Name)
		}
	}
	return matched
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
