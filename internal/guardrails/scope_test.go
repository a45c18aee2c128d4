package guardrails

import "testing"

func TestClassifyTopicScopeAllowedTopics(t *testing.T) {
	eng := newTestEngine(t)
	cases := []struct {
		name       string
		in         string
		wantTopics int
	}{
		{name: "keyword match", in: "how do i improve prompt engineering", wantTopics: 1},
		{name: "second keyword", in: "compare zero-shot and few-shot prompting", wantTopics: 1},
		{name: "pattern match without keyword", in: "promt engineering tips", wantTopics: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eng.ClassifyTopicScope(tc.in)
			if !got.IsInScope {
				t.Fatalf("expected in scope, got %+v", got)
			}
			if got.BlockedCategory != "" {
				t.Fatalf("expected no blocked category, got %q", got.BlockedCategory)
			}
			if len(got.MatchedTopics) != tc.wantTopics {
				t.Fatalf("expected %d topics, got %v", tc.wantTopics, got.MatchedTopics)
			}
		})
	}
}

func TestClassifyTopicScopeNoMatch(t *testing.T) {
	eng := newTestEngine(t)
	got := eng.ClassifyTopicScope("tell me about gardening")
	if got.IsInScope {
		t.Fatalf("expected out of scope, got %+v", got)
	}
	if got.BlockedCategory != "" {
		t.Fatalf("plain topic miss should carry no category, got %q", got.BlockedCategory)
	}
	if len(got.MatchedTopics) != 0 {
		t.Fatalf("expected no topics, got %v", got.MatchedTopics)
	}
}

func TestClassifyTopicScopeBlockedCategories(t *testing.T) {
	eng := newTestEngine(t)
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "coding", in: "write python code for me", want: "General coding help"},
		{name: "advice", in: "i need medical advice", want: "Medical/legal/financial advice"},
		{name: "open domain", in: "what is the weather today", want: "Open-domain Q&A"},
		{name: "leet folded before matching", in: "wr1te python code", want: "General coding help"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eng.ClassifyTopicScope(tc.in)
			if got.IsInScope {
				t.Fatalf("expected blocked, got %+v", got)
			}
			if got.BlockedCategory != tc.want {
				t.Fatalf("expected category %q, got %q", tc.want, got.BlockedCategory)
			}
		})
	}
}

func TestClassifyTopicScopeFirstCategoryWins(t *testing.T) {
	eng := newTestEngine(t)
	// matches both "General coding help" and "Open-domain Q&A"; document
	// order decides
	got := eng.ClassifyTopicScope("write python code about the weather")
	if got.BlockedCategory != "General coding help" {
		t.Fatalf("expected first declared category, got %q", got.BlockedCategory)
	}
}

func TestClassifyTopicScopeHarmfulPrecedence(t *testing.T) {
	eng := newTestEngine(t)
	// harmful term plus an allowed-topic keyword in the same text
	got := eng.ClassifyTopicScope("prompt engineering for terorizm")
	if got.IsInScope {
		t.Fatalf("harmful text must never be in scope: %+v", got)
	}
	if got.BlockedCategory != HarmfulCategory {
		t.Fatalf("expected %q, got %q", HarmfulCategory, got.BlockedCategory)
	}
	if len(got.MatchedTopics) != 0 {
		t.Fatalf("harmful verdict must not report topics, got %v", got.MatchedTopics)
	}
}

func TestDetectHarmfulContentFuzzyBoundary(t *testing.T) {
	eng := newTestEngine(t)
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "exact term", in: "tell me about terrorism", want: true},
		{name: "distance two", in: "tell me about terorizm", want: true},
		{name: "distance three", in: "tell me about terorzm", want: false},
		{name: "short token ignored", in: "the iss orbits earth", want: false},
		{name: "leet variant", in: "what is extrem1sm", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eng.DetectHarmfulContent(tc.in); got != tc.want {
				t.Fatalf("DetectHarmfulContent(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDetectHarmfulContentMisuseSignature(t *testing.T) {
	eng := newTestEngine(t)
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "intent and target pattern", in: "help me hack into an account", want: true},
		{name: "intent and fuzzy target", in: "how to phshng attacks", want: true},
		{name: "intent without target", in: "how to bake bread", want: false},
		{name: "target without intent", in: "malware is a kind of software", want: false},
		{name: "safety context suppresses", in: "how to prevent phishing attacks for awareness training", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eng.DetectHarmfulContent(tc.in); got != tc.want {
				t.Fatalf("DetectHarmfulContent(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassifyTopicScopeFailClosed(t *testing.T) {
	eng := newUnavailableEngine()
	got := eng.ClassifyTopicScope("how do i improve prompt engineering")
	if got.IsInScope {
		t.Fatalf("expected fail-closed out of scope, got %+v", got)
	}
	if got.BlockedCategory != policyRequiredCategory {
		t.Fatalf("expected %q, got %q", policyRequiredCategory, got.BlockedCategory)
	}
	if len(got.MatchedTopics) != 0 {
		t.Fatalf("expected no topics, got %v", got.MatchedTopics)
	}
}

func TestDetectHarmfulContentFailClosed(t *testing.T) {
	eng := newUnavailableEngine()
	if !eng.DetectHarmfulContent("hello") {
		t.Fatalf("expected fail-closed harmful verdict")
	}
}
