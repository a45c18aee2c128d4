package guardrails

import "math"

// DetectInjectionRisk screens text for prompt-injection attempts. Every
// attack pattern is evaluated unconditionally so PatternHits is complete;
// RiskScore is the fraction of configured patterns that matched, rounded to
// three decimals. When the policy is unavailable the input is treated as an
// attack with full risk.
func (e *Engine) DetectInjectionRisk(text string) RiskAssessment {
	pol, err := e.store.Policy()
	if err != nil {
		return RiskAssessment{
			IsAttack:    true,
			RiskScore:   1.0,
			PatternHits: []string{policyNotLoadedMarker},
		}
	}
	normalized := normalizeText(text)
	hits := pol.AttackPatterns.Matches(normalized)
	total := pol.AttackPatterns.Len()
	if total < 1 {
		total = 1
	}
	return RiskAssessment{
		IsAttack:    len(hits) > 0,
		RiskScore:   round3(float64(len(hits)) / float64(total)),
		PatternHits: hits,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
