package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stats tracks guardrail outcomes for one chat session.
type Stats struct {
	TotalTurns        int     `json:"total_turns"`
	AttackAttempts    int     `json:"attack_attempts"`
	BlockedPrecheck   int     `json:"blocked_precheck"`
	OutOfScopeBlocked int     `json:"out_of_scope_blocked"`
	RefusedPostcheck  int     `json:"refused_postcheck"`
	UnsafePasses      int     `json:"unsafe_passes"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
}

// DefenseRate is the share of attack attempts that were stopped either
// before the model or by a post-check refusal. With no attempts it is 1.
func (s Stats) DefenseRate() float64 {
	if s.AttackAttempts == 0 {
		return 1.0
	}
	defended := s.BlockedPrecheck + s.RefusedPostcheck
	return float64(defended) / float64(s.AttackAttempts)
}

func (s *Stats) observeLatency(latencyMS float64) {
	n := s.TotalTurns
	prev := s.AvgLatencyMS
	den := float64(n)
	if den < 1 {
		den = 1
	}
	s.AvgLatencyMS = round2((prev*float64(n-1) + latencyMS) / den)
}

// Turn is one completed user/assistant exchange.
type Turn struct {
	User      string  `json:"user"`
	Assistant string  `json:"assistant"`
	LatencyMS float64 `json:"latency_ms"`
	IsInScope bool    `json:"is_in_scope"`
	IsAttack  bool    `json:"is_attack"`
	RiskScore float64 `json:"risk_score"`
}

// Session is one conversation with its rolling stats. The title is taken
// from the first user message, so treat it as user content for logging
// purposes. JSON output goes through MarshalJSON.
type Session struct {
	ID        string
	Title     string
	Turns     []Turn
	Stats     Stats
	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.Mutex
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UpdatedAt  time.Time `json:"updated_at"`
	TotalTurns int       `json:"total_turns"`
}

// MarshalJSON serializes a consistent view of the session even while a
// turn is being processed.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type sessionJSON struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Turns     []Turn    `json:"turns"`
		Stats     Stats     `json:"stats"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	turns := s.Turns
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(sessionJSON{s.ID, s.Title, turns, s.Stats, s.CreatedAt, s.UpdatedAt})
}

// Snapshot returns the fields a session listing needs.
func (s *Session) Snapshot() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSummary{
		ID:         s.ID,
		Title:      s.Title,
		UpdatedAt:  s.UpdatedAt,
		TotalTurns: s.Stats.TotalTurns,
	}
}

// StatsSnapshot returns a copy of the rolling stats.
func (s *Session) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stats
}

// NewSession creates an empty session with a placeholder title.
func NewSession(index int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        "chat-" + uuid.NewString(),
		Title:     fmt.Sprintf("New Chat %d", index),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clear drops the transcript and stats but keeps the session and title.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = nil
	s.Stats = Stats{}
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(strings.ToLower(s.Title), q) {
		return true
	}
	for _, turn := range s.Turns {
		if strings.Contains(strings.ToLower(turn.User), q) ||
			strings.Contains(strings.ToLower(turn.Assistant), q) {
			return true
		}
	}
	return false
}

func (s *Session) updatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UpdatedAt
}

// Store keeps sessions by ID for the HTTP surface.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	index    int
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create adds a new empty session.
func (st *Store) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.index++
	sess := NewSession(st.index)
	st.sessions[sess.ID] = sess
	return sess
}

// Get returns the session with the given ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// GetOrCreate resolves an existing session or creates one when id is empty
// or unknown.
func (st *Store) GetOrCreate(id string) *Session {
	if id != "" {
		if sess, ok := st.Get(id); ok {
			return sess
		}
	}
	return st.Create()
}

// List returns sessions matching the query, most recently updated first.
// An empty query matches everything.
func (st *Store) List(query string) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		if sess.matches(query) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].updatedAt().After(out[j].updatedAt())
	})
	return out
}
