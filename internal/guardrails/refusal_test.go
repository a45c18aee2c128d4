package guardrails

import "testing"

func TestIsRefusal(t *testing.T) {
	eng := newTestEngine(t)
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "case insensitive", in: "I CANNOT help with that", want: true},
		{name: "marker mid sentence", in: "Sorry, but I can't share internal instructions.", want: true},
		{name: "contraction marker", in: "i won't help with this", want: true},
		{name: "surrounding whitespace", in: "   i cannot assist   ", want: true},
		{name: "normal answer", in: "Sure, start with a clear instruction and one example.", want: false},
		{name: "empty reply", in: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eng.IsRefusal(tc.in); got != tc.want {
				t.Fatalf("IsRefusal(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsRefusalFailClosed(t *testing.T) {
	eng := newUnavailableEngine()
	if !eng.IsRefusal("Sure, here is the answer.") {
		t.Fatalf("expected fail-closed refusal verdict")
	}
}
