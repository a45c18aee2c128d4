package guardrails

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// requiredPolicyKeys are the top-level keys every policy document must
// carry. Absence of any key is a configuration error, not a soft default.
var requiredPolicyKeys = []string{
	"attack_patterns",
	"refusal_markers",
	"allowed_topic_keywords",
	"allowed_topic_patterns",
	"blocked_broad_patterns",
	"harmful_canonical_terms",
	"misuse_intent_patterns",
	"misuse_target_patterns",
	"misuse_target_terms",
	"safety_context_hints",
}

// Policy is the immutable ruleset behind every classification decision. All
// patterns are compiled during parsing, so matching at request time never
// compiles and never fails.
type Policy struct {
	AttackPatterns        PatternList
	RefusalMarkers        []string
	Topics                []Topic
	BlockedCategories     []BlockedCategory
	HarmfulCanonicalTerms []string
	MisuseIntentPatterns  PatternList
	MisuseTargetPatterns  PatternList
	MisuseTargetTerms     []string
	SafetyContextHints    []string
}

// Topic is one allowed topic with its keyword substrings and optional
// patterns. Topics keep the document order of allowed_topic_keywords.
type Topic struct {
	Name     string
	Keywords []string
	Patterns PatternList
}

// BlockedCategory is one blocked broad category. Categories keep document
// order; the first matching category wins.
type BlockedCategory struct {
	Name     string
	Patterns PatternList
}

// PatternList is a fixed set of regular expressions compiled at load time.
type PatternList struct {
	entries []patternEntry
}

type patternEntry struct {
	source string
	re     *regexp.Regexp
}

// Len returns the number of configured patterns.
func (l PatternList) Len() int { return len(l.entries) }

// AnyMatch reports whether at least one pattern matches text.
func (l PatternList) AnyMatch(text string) bool {
	for _, e := range l.entries {
		if e.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Matches returns the source strings of every matching pattern in declared
// order. All patterns are evaluated; there is no short-circuit.
func (l PatternList) Matches(text string) []string {
	hits := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		if e.re.MatchString(text) {
			hits = append(hits, e.source)
		}
	}
	return hits
}

func compilePatternList(field string, sources []string) (PatternList, error) {
	entries := make([]patternEntry, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return PatternList{}, fmt.Errorf("compile %s pattern %q: %w", field, src, err)
		}
		entries = append(entries, patternEntry{source: src, re: re})
	}
	return PatternList{entries: entries}, nil
}

// rawPolicy holds the order-insensitive fields of a policy document.
type rawPolicy struct {
	AttackPatterns        []string            `json:"attack_patterns"`
	RefusalMarkers        []string            `json:"refusal_markers"`
	AllowedTopicPatterns  map[string][]string `json:"allowed_topic_patterns"`
	HarmfulCanonicalTerms []string            `json:"harmful_canonical_terms"`
	MisuseIntentPatterns  []string            `json:"misuse_intent_patterns"`
	MisuseTargetPatterns  []string            `json:"misuse_target_patterns"`
	MisuseTargetTerms     []string            `json:"misuse_target_terms"`
	SafetyContextHints    []string            `json:"safety_context_hints"`
}

// namedList is one entry of a JSON object of string lists. encoding/json
// maps lose key order, so ordered fields are walked token by token instead.
type namedList struct {
	name   string
	values []string
}

// ParsePolicy decodes, validates, and compiles a policy document. Topic and
// blocked-category order follows the document. A leading UTF-8 byte order
// mark is tolerated. Missing keys and invalid patterns are configuration
// errors.
func ParsePolicy(data []byte) (*Policy, error) {
	data = bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	var missing []string
	for _, key := range requiredPolicyKeys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("invalid policy: missing keys: %s", strings.Join(missing, ", "))
	}

	var raw rawPolicy
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	topics, err := decodeOrderedLists("allowed_topic_keywords", doc["allowed_topic_keywords"])
	if err != nil {
		return nil, err
	}
	blocked, err := decodeOrderedLists("blocked_broad_patterns", doc["blocked_broad_patterns"])
	if err != nil {
		return nil, err
	}
	return buildPolicy(raw, topics, blocked)
}

func decodeOrderedLists(field string, raw json.RawMessage) ([]namedList, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse %s: expected a JSON object", field)
	}
	var entries []namedList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", field, err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("parse %s: expected a string key", field)
		}
		var values []string
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("parse %s[%q]: %w", field, name, err)
		}
		entries = append(entries, namedList{name: name, values: values})
	}
	return entries, nil
}

func buildPolicy(raw rawPolicy, topics, blocked []namedList) (*Policy, error) {
	pol := &Policy{
		RefusalMarkers:        raw.RefusalMarkers,
		HarmfulCanonicalTerms: raw.HarmfulCanonicalTerms,
		MisuseTargetTerms:     raw.MisuseTargetTerms,
		SafetyContextHints:    raw.SafetyContextHints,
	}
	var err error
	if pol.AttackPatterns, err = compilePatternList("attack_patterns", raw.AttackPatterns); err != nil {
		return nil, err
	}
	if pol.MisuseIntentPatterns, err = compilePatternList("misuse_intent_patterns", raw.MisuseIntentPatterns); err != nil {
		return nil, err
	}
	if pol.MisuseTargetPatterns, err = compilePatternList("misuse_target_patterns", raw.MisuseTargetPatterns); err != nil {
		return nil, err
	}
	for _, entry := range topics {
		patterns, err := compilePatternList("allowed_topic_patterns", raw.AllowedTopicPatterns[entry.name])
		if err != nil {
			return nil, err
		}
		pol.Topics = append(pol.Topics, Topic{Name: entry.name, Keywords: entry.values, Patterns: patterns})
	}
	for _, entry := range blocked {
		patterns, err := compilePatternList("blocked_broad_patterns", entry.values)
		if err != nil {
			return nil, err
		}
		pol.BlockedCategories = append(pol.BlockedCategories, BlockedCategory{Name: entry.name, Patterns: patterns})
	}
	return pol, nil
}
