package guardrails

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizedText is the canonical matchable form of one input: the expanded
// lowercase text plus its letters-only tokens. Derived deterministically
// from the raw input; downstream matchers never re-run normalization.
type NormalizedText struct {
	Text   string
	Tokens []string
}

var (
	zeroWidthRE  = regexp.MustCompile("[\u200B-\u200F\u2060\uFEFF]")
	encodedRunRE = regexp.MustCompile(`[A-Za-z0-9+/=]{12,}|[0-9a-fA-F]{12,}`)
	base64BodyRE = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	hexBodyRE    = regexp.MustCompile(`^[0-9a-f]+$`)
	spacedRunRE  = regexp.MustCompile(`\b(?:[a-z]\s+){2,}[a-z]\b`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	rawTokenRE   = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]*`)
)

// leetFold maps common symbol and digit look-alikes back to their letter
// equivalents.
var leetFold = map[rune]rune{
	'@': 'a',
	'$': 's',
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'!': 'i',
	'|': 'i',
}

// NormalizeAndTokenize canonicalizes raw input for matching. It is a pure
// function of its input and always succeeds with at least the literal text.
func NormalizeAndTokenize(raw string) NormalizedText {
	text := normalizeText(raw)
	return NormalizedText{Text: text, Tokens: tokenize(text)}
}

// normalizeText runs the de-obfuscation pipeline: NFKC normalization,
// zero-width stripping, encoded-run expansion, leet folding, lowercasing,
// and spaced-letter compaction. Expansion runs before leet folding, which
// would otherwise corrupt digits inside base64 and hex runs.
func normalizeText(raw string) string {
	t := strings.TrimSpace(raw)
	t = norm.NFKC.String(t)
	t = zeroWidthRE.ReplaceAllString(t, "")
	t = expandEncodedRuns(t)
	t = foldLeet(t)
	t = strings.ToLower(t)
	t = spacedRunRE.ReplaceAllStringFunc(t, func(m string) string {
		return whitespaceRE.ReplaceAllString(m, "")
	})
	return t
}

func foldLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if mapped, ok := leetFold[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenize extracts maximal alphabetic runs, keeping internal apostrophes
// and hyphens in the scan, then strips each token to letters only and drops
// empty results.
func tokenize(text string) []string {
	raw := rawTokenRE.FindAllString(text, -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if t := alphaOnly(tok); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func alphaOnly(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	for _, r := range strings.ToLower(tok) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
