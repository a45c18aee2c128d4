package guardrails

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Environment variables controlling policy resolution.
const (
	// EnvPolicyPath names an explicit policy JSON file.
	EnvPolicyPath = "PROMPTOPS_POLICY_PATH"
	// EnvStrictMode controls strict policy resolution. Strict mode is on by
	// default; when the variable is set, any value other than "true"
	// (case-insensitive) turns it off.
	EnvStrictMode = "PROMPTOPS_STRICT_GUARDRAILS"
)

// ErrPolicyUnavailable reports that no policy could be loaded for this
// process. Every classification fails closed while this condition holds.
var ErrPolicyUnavailable = errors.New("guardrails policy unavailable")

// Store resolves the policy once and caches the outcome, success or
// failure, for the process lifetime. A failed load is not retried; it fails
// fast on every later call. Reads after the first load are lock-free.
type Store struct {
	load func() (*Policy, error)

	once sync.Once
	pol  *Policy
	err  error
}

// NewStore returns a Store that resolves its policy from the environment.
// PROMPTOPS_POLICY_PATH wins when set; otherwise strict mode demands an
// explicit policy source, and only non-strict mode falls back to the
// built-in policy.
func NewStore() *Store {
	return &Store{load: loadFromEnv}
}

// NewFileStore returns a Store bound to one policy file, bypassing the
// environment.
func NewFileStore(path string) *Store {
	return &Store{load: func() (*Policy, error) { return loadPolicyFile(path) }}
}

// NewStaticStore returns a Store that always serves pol. Intended for tests
// and tooling.
func NewStaticStore(pol *Policy) *Store {
	return &Store{load: func() (*Policy, error) { return pol, nil }}
}

// EnsureReady performs the one-time load and returns the cached outcome.
func (s *Store) EnsureReady() error {
	_, err := s.Policy()
	return err
}

// Policy returns the cached policy, or an error matching
// ErrPolicyUnavailable when the load failed.
func (s *Store) Policy() (*Policy, error) {
	s.once.Do(func() {
		pol, err := s.load()
		if err != nil {
			s.err = fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
			return
		}
		s.pol = pol
	})
	return s.pol, s.err
}

func loadFromEnv() (*Policy, error) {
	if path := strings.TrimSpace(os.Getenv(EnvPolicyPath)); path != "" {
		return loadPolicyFile(path)
	}
	if strictMode() {
		return nil, errors.New("strict guardrails enabled but " + EnvPolicyPath +
			" is not set; provide a private policy JSON file")
	}
	return fallbackPolicy()
}

func strictMode() bool {
	v, ok := os.LookupEnv(EnvStrictMode)
	if !ok {
		return true
	}
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}

func loadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	pol, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pol, nil
}
