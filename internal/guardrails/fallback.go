package guardrails

// fallbackPolicy builds the built-in minimal policy used when strict mode is
// off and no policy file is configured. It is intentionally generic;
// production deployments supply a private policy document.
func fallbackPolicy() (*Policy, error) {
	raw := rawPolicy{
		AttackPatterns: []string{
			`\bignore\s+previous\s+instructions\b`,
			`\breveal\s+(the\s+)?system\s+prompt\b`,
			`\bdeveloper\s+mode\b`,
			`\bjail\w*break\w*\b`,
			`\bprompt\s+injection\b`,
		},
		RefusalMarkers: []string{
			"i can't",
			"i cannot",
			"cannot assist",
			"won't help",
			"not able to",
			"cannot provide",
			"can't share internal instructions",
		},
		AllowedTopicPatterns: map[string][]string{
			"Prompt engineering": {`\bprom\w*\s+engin\w*\b`},
		},
		HarmfulCanonicalTerms: []string{
			"alqaeda",
			"qaeda",
			"isis",
			"daesh",
			"terrorism",
			"terrorist",
			"extremism",
			"extremist",
		},
		MisuseIntentPatterns: []string{
			`\bhow\s+to\b`,
			`\bsteps?\s+to\b`,
			`\bhelp\s+me\b`,
			`\bbypass\b`,
		},
		MisuseTargetPatterns: []string{
			`\bhack\w*\b`,
			`\bphish\w*\b`,
			`\bmalware\b`,
			`\bexploit\w*\b`,
		},
		MisuseTargetTerms: []string{
			"hack",
			"phishing",
			"malware",
			"exploit",
			"credential",
			"password",
			"account",
		},
		SafetyContextHints: []string{
			"defensive",
			"prevention",
			"mitigation",
			"awareness",
			"education",
			"safety",
		},
	}
	topics := []namedList{
		{
			name: "Prompt engineering",
			values: []string{
				"prompt engineering",
				"prompting",
				"zero-shot",
				"few-shot",
				"prompt evaluation",
				"guardrails",
				"rag",
				"agents",
			},
		},
	}
	blocked := []namedList{
		{
			name:   "General coding help",
			values: []string{`\bwrite\s+(python|java|javascript|c\+\+|code)\b`},
		},
		{
			name: "Medical/legal/financial advice",
			values: []string{
				`\bmedical\s+advice\b`,
				`\blegal\s+advice\b`,
				`\bfinancial\s+advice\b`,
			},
		},
		{
			name:   "Open-domain Q&A",
			values: []string{`\bweather\b`, `\bnews\b`, `\bwho\s+is\b`},
		},
	}
	return buildPolicy(raw, topics, blocked)
}
