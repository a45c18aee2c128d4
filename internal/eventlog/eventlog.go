// Package eventlog buffers chat turn outcomes and delivers them to metric
// sinks (JSONL files, webhooks) off the request path.
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/promptcraft-lab/promptops/internal/redact"
)

// Event is one chat turn outcome as written to metric sinks. It carries
// sizes and guardrail verdicts, never the user text itself; the chat title
// is included only when title logging is switched on.
type Event struct {
	TimestampUTC    time.Time `json:"ts_utc"`
	ChatID          string    `json:"chat_id"`
	Model           string    `json:"model"`
	Action          string    `json:"action"`
	IsInScope       bool      `json:"is_in_scope"`
	MatchedTopics   []string  `json:"matched_topics"`
	BlockedCategory string    `json:"blocked_category,omitempty"`
	IsAttack        bool      `json:"is_attack"`
	AttackHitCount  int       `json:"attack_hit_count"`
	LatencyMS       float64   `json:"latency_ms"`
	UserTextLen     int       `json:"user_text_len"`
	Error           bool      `json:"error"`
	ChatTitle       string    `json:"chat_title,omitempty"`
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("eventlog: failed to marshal event: %v", err)
		return
	}
	redact.Logf("eventlog: %s", string(data))
}
