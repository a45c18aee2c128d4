// Package chat runs guarded conversations against a model provider.
//
// Every turn goes through the same pipeline: classify the user text,
// block attacks and out-of-scope requests before the model is called,
// recover in-scope over-refusals with one retry, then record the
// outcome in the session stats, the event log and telemetry.
package chat

import (
	"context"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/promptcraft-lab/promptops/internal/eventlog"
	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/inference"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
	"github.com/promptcraft-lab/promptops/internal/telemetry"
)

// Action labels recorded for each processed turn.
const (
	ActionServed              = "served"
	ActionServedAfterRecovery = "served_after_recovery"
	ActionBlockedAttack       = "blocked_attack_precheck"
	ActionBlockedOutOfScope   = "blocked_out_of_scope"
	ActionServiceError        = "service_error"
)

// Environment toggles for operator-facing behavior.
const (
	EnvAdminMode     = "PROMPTOPS_ADMIN_MODE"
	EnvLogChatTitles = "PROMPTOPS_LOG_CHAT_TITLES"
)

const serviceUnavailableReply = "Service temporarily unavailable. Please try again after verifying Ollama is running."

// recoveryNote is appended as a follow-up user message when the model
// refuses an in-scope, non-attack request.
const recoveryNote = "The previous answer was an over-refusal. The user request is in approved PromptOps scope. Provide a safe, concise educational answer focused on defensive prompt engineering."

// Config carries the model and prompt settings for a chat service.
type Config struct {
	Model        string
	Temperature  float64
	HistoryPairs int
	SystemPrompt string
	FewShot      []prompts.Example
	LogTitles    bool
}

// Service processes chat turns. Safe for concurrent use; turns within
// one session are serialized.
type Service struct {
	engine   *guardrails.Engine
	provider provider.Provider
	emitter  *eventlog.Emitter
	cfg      Config
}

// NewService wires a guardrails engine, a provider and an optional
// event emitter into a chat service.
func NewService(engine *guardrails.Engine, p provider.Provider, emitter *eventlog.Emitter, cfg Config) *Service {
	if cfg.HistoryPairs <= 0 {
		cfg.HistoryPairs = 8
	}
	return &Service{engine: engine, provider: p, emitter: emitter, cfg: cfg}
}

// Result is the outcome of one processed turn.
type Result struct {
	Reply     string
	Action    string
	LatencyMS float64
	Scope     guardrails.ScopeDecision
	Risk      guardrails.RiskAssessment
}

// ProcessTurn classifies the user text, produces a reply and updates the
// session. Provider failures surface as a service-error reply, never as
// an error.
func (s *Service) ProcessTurn(ctx context.Context, sess *Session, userText string) *Result {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	scope := s.engine.ClassifyTopicScope(userText)
	risk := s.engine.DetectInjectionRisk(userText)

	sess.Stats.TotalTurns++
	if risk.IsAttack {
		sess.Stats.AttackAttempts++
	}

	reply, latencyMS, action := s.runTurn(ctx, sess, userText, scope, risk)

	sess.Stats.observeLatency(latencyMS)
	persistTurn(sess, userText, reply, latencyMS, scope, risk)
	s.emit(sess, action, scope, risk, latencyMS, userText)

	return &Result{
		Reply:     reply,
		Action:    action,
		LatencyMS: latencyMS,
		Scope:     scope,
		Risk:      risk,
	}
}

func (s *Service) runTurn(ctx context.Context, sess *Session, userText string, scope guardrails.ScopeDecision, risk guardrails.RiskAssessment) (string, float64, string) {
	if risk.IsAttack {
		sess.Stats.BlockedPrecheck++
		return guardrails.SafeRefusal, 0, ActionBlockedAttack
	}
	if !scope.IsInScope {
		sess.Stats.OutOfScopeBlocked++
		if scope.BlockedCategory == guardrails.HarmfulCategory {
			return guardrails.HarmfulContentRefusal, 0, ActionBlockedOutOfScope
		}
		return guardrails.OutOfScopeRefusal, 0, ActionBlockedOutOfScope
	}

	history := sess.Turns
	reply, latencyMS, action := s.queryModel(ctx, history, userText)

	if recovered, ok := s.recoverOverRefusal(ctx, history, userText, reply, scope, risk); ok {
		reply = recovered
		action = ActionServedAfterRecovery
	}

	// Post-check: an attack that reached the model should at least be
	// refused by it.
	if risk.IsAttack {
		if s.engine.IsRefusal(reply) {
			sess.Stats.RefusedPostcheck++
		} else {
			sess.Stats.UnsafePasses++
		}
	}
	return reply, latencyMS, action
}

func (s *Service) queryModel(ctx context.Context, history []Turn, userText string) (string, float64, string) {
	req := s.buildRequest(history, userText)
	start := time.Now()
	resp, err := s.provider.ChatCompletion(ctx, req)
	if err != nil {
		return serviceUnavailableReply, 0, ActionServiceError
	}
	latencyMS := round2(float64(time.Since(start)) / float64(time.Millisecond))
	return resp.Content, latencyMS, ActionServed
}

// recoverOverRefusal retries once when the model refused an in-scope,
// non-attack request. The original reply is kept unless the retry
// produces a non-empty, non-refusal answer.
func (s *Service) recoverOverRefusal(ctx context.Context, history []Turn, userText, reply string, scope guardrails.ScopeDecision, risk guardrails.RiskAssessment) (string, bool) {
	if !scope.IsInScope || risk.IsAttack || !s.engine.IsRefusal(reply) {
		return reply, false
	}

	req := s.buildRequest(history, userText)
	req.Messages = append(req.Messages,
		inference.Message{Role: inference.RoleAssistant, Content: reply},
		inference.Message{Role: inference.RoleUser, Content: recoveryNote},
	)
	resp, err := s.provider.ChatCompletion(ctx, req)
	if err != nil {
		return reply, false
	}
	if resp.Content != "" && !s.engine.IsRefusal(resp.Content) {
		return resp.Content, true
	}
	return reply, false
}

// buildRequest assembles system prompt, few-shot examples, the most
// recent history pairs and the current user text.
func (s *Service) buildRequest(history []Turn, userText string) *inference.Request {
	msgs := make([]inference.Message, 0, 2*(len(s.cfg.FewShot)+s.cfg.HistoryPairs)+2)
	msgs = append(msgs, inference.Message{Role: inference.RoleSystem, Content: s.cfg.SystemPrompt})
	for _, ex := range s.cfg.FewShot {
		msgs = append(msgs,
			inference.Message{Role: inference.RoleUser, Content: ex.User},
			inference.Message{Role: inference.RoleAssistant, Content: ex.Assistant},
		)
	}
	start := len(history) - s.cfg.HistoryPairs
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		msgs = append(msgs,
			inference.Message{Role: inference.RoleUser, Content: turn.User},
			inference.Message{Role: inference.RoleAssistant, Content: turn.Assistant},
		)
	}
	msgs = append(msgs, inference.Message{Role: inference.RoleUser, Content: userText})

	return &inference.Request{
		Model:       s.cfg.Model,
		Messages:    msgs,
		Temperature: s.cfg.Temperature,
	}
}

func persistTurn(sess *Session, userText, reply string, latencyMS float64, scope guardrails.ScopeDecision, risk guardrails.RiskAssessment) {
	if len(sess.Turns) == 0 {
		if title := firstWords(userText, 5); title != "" {
			sess.Title = title
		}
	}
	sess.Turns = append(sess.Turns, Turn{
		User:      userText,
		Assistant: reply,
		LatencyMS: latencyMS,
		IsInScope: scope.IsInScope,
		IsAttack:  risk.IsAttack,
		RiskScore: risk.RiskScore,
	})
	sess.UpdatedAt = time.Now().UTC()
}

func (s *Service) emit(sess *Session, action string, scope guardrails.ScopeDecision, risk guardrails.RiskAssessment, latencyMS float64, userText string) {
	ev := &eventlog.Event{
		TimestampUTC:    time.Now().UTC(),
		ChatID:          sess.ID,
		Model:           s.cfg.Model,
		Action:          action,
		IsInScope:       scope.IsInScope,
		MatchedTopics:   scope.MatchedTopics,
		BlockedCategory: scope.BlockedCategory,
		IsAttack:        risk.IsAttack,
		AttackHitCount:  len(risk.PatternHits),
		LatencyMS:       latencyMS,
		UserTextLen:     utf8.RuneCountInString(userText),
		Error:           action == ActionServiceError,
	}
	if s.cfg.LogTitles {
		ev.ChatTitle = sess.Title
	}
	s.emitter.Emit(context.Background(), ev)

	telemetry.RecordEvent(telemetry.Event{
		Model:           s.cfg.Model,
		Action:          action,
		IsInScope:       scope.IsInScope,
		IsAttack:        risk.IsAttack,
		BlockedCategory: scope.BlockedCategory,
		LatencyMS:       latencyMS,
		Error:           action == ActionServiceError,
	})
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AdminMode reports whether the operator enabled admin displays.
func AdminMode() bool {
	return boolEnv(EnvAdminMode)
}

// LogChatTitles reports whether chat titles may be written to metric
// events. Off by default since titles derive from user text.
func LogChatTitles() bool {
	return boolEnv(EnvLogChatTitles)
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}
