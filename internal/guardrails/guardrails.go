// Package guardrails classifies chat text against a fail-closed safety
// policy. It screens user input for prompt-injection attempts, decides
// whether a request falls inside the approved topic scope, and detects
// refusals in model output. The policy document is loaded once per process
// and cached; while it is unavailable every decision degrades to the most
// restrictive answer instead of failing open.
package guardrails

// Refusal messages served when a request is blocked before reaching the
// model.
const (
	SafeRefusal = "I can't help with that request. I can help with safe PromptOps tasks."

	OutOfScopeRefusal = "I can only help with approved PromptOps topics. " +
		"Please rephrase your request within that scope."

	HarmfulContentRefusal = "I can't help with harmful or extremist content. " +
		"If your goal is safety, I can help with defensive prompting and misuse prevention."
)

// HarmfulCategory is the blocked category reported for extremist content and
// misuse-signature hits.
const HarmfulCategory = "Harmful/extremist content"

const (
	policyRequiredCategory = "Policy configuration required"
	policyNotLoadedMarker  = "policy_not_loaded"
)

// RiskAssessment is the outcome of prompt-injection screening for one input.
type RiskAssessment struct {
	IsAttack    bool     `json:"is_attack"`
	RiskScore   float64  `json:"risk_score"`
	PatternHits []string `json:"pattern_hits"`
}

// ScopeDecision is the outcome of topic-scope classification for one input.
type ScopeDecision struct {
	IsInScope       bool     `json:"is_in_scope"`
	BlockedCategory string   `json:"blocked_category,omitempty"`
	MatchedTopics   []string `json:"matched_topics"`
}

// Engine evaluates text against the policy held by its Store. Engines are
// cheap and safe for concurrent use; all state lives in the Store.
type Engine struct {
	store *Store
}

// NewEngine returns an Engine backed by store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// EnsureReady forces the one-time policy load and reports its outcome. Call
// it at startup so configuration errors surface before the first request.
func (e *Engine) EnsureReady() error {
	return e.store.EnsureReady()
}
