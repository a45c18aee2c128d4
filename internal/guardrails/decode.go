package guardrails

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// Bounds on encoded-run expansion. Runs shorter than minEncodedLen are never
// decoded, which keeps short incidental base64-shaped words from producing
// false positives.
const (
	minEncodedLen   = 12
	maxEncodedLen   = 512
	minDecodedChars = 6
)

// expandEncodedRuns appends the plaintext of every base64 or hex run found
// in text, so attack phrases smuggled as encoded blobs stay matchable. A
// failed decode is discarded, never an error.
func expandEncodedRuns(text string) string {
	runs := encodedRunRE.FindAllString(text, -1)
	if len(runs) == 0 {
		return text
	}
	var decoded []string
	for _, run := range runs {
		if out := tryDecodeBase64(run); out != "" {
			decoded = append(decoded, out)
		}
		if out := tryDecodeHex(run); out != "" {
			decoded = append(decoded, out)
		}
	}
	if len(decoded) == 0 {
		return text
	}
	return text + "\n" + strings.Join(decoded, "\n")
}

// tryDecodeBase64 returns the decoded text when token is plausible base64
// carrying at least minDecodedChars non-whitespace characters, or "".
func tryDecodeBase64(token string) string {
	t := strings.TrimSpace(token)
	if len(t) < minEncodedLen || len(t) > maxEncodedLen {
		return ""
	}
	if !base64BodyRE.MatchString(t) {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(t)
	if err != nil {
		return ""
	}
	return keepDecoded(raw)
}

// tryDecodeHex returns the decoded text when token is plausible hex carrying
// at least minDecodedChars non-whitespace characters, or "".
func tryDecodeHex(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if len(t) < minEncodedLen || len(t) > maxEncodedLen || len(t)%2 != 0 {
		return ""
	}
	if !hexBodyRE.MatchString(t) {
		return ""
	}
	raw, err := hex.DecodeString(t)
	if err != nil {
		return ""
	}
	return keepDecoded(raw)
}

// keepDecoded converts raw to UTF-8 with invalid bytes dropped and rejects
// payloads too short to carry a phrase.
func keepDecoded(raw []byte) string {
	out := strings.ToValidUTF8(string(raw), "")
	if utf8.RuneCountInString(strings.TrimSpace(out)) < minDecodedChars {
		return ""
	}
	return out
}
