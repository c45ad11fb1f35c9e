package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// StateStore manages CSRF state parameters and PKCE verifiers (simple in-memory)
type StateStore struct {
	states sync.Map // map[state]StateData
	now    func() time.Time
}

// StateData stores state-related data
type StateData struct {
	Expiry       time.Time
	CodeVerifier string // For PKCE
}

// NewStateStore creates a new state store
func NewStateStore() *StateStore {
	return &StateStore{now: time.Now}
}

// SaveWithVerifier stores a state with expiry and code verifier (for PKCE)
func (s *StateStore) SaveWithVerifier(state string, duration time.Duration, codeVerifier string) {
	s.sweep()
	s.states.Store(state, StateData{
		Expiry:       s.now().Add(duration),
		CodeVerifier: codeVerifier,
	})
}

// VerifyAndGetVerifier checks and consumes a state, returning the code verifier
func (s *StateStore) VerifyAndGetVerifier(state string) (string, bool) {
	val, ok := s.states.LoadAndDelete(state) // One-time use
	if !ok {
		return "", false
	}

	data := val.(StateData)
	if s.now().After(data.Expiry) {
		return "", false
	}
	return data.CodeVerifier, true
}

// sweep drops expired entries; it runs on every save.
func (s *StateStore) sweep() {
	now := s.now()
	s.states.Range(func(key, value any) bool {
		if now.After(value.(StateData).Expiry) {
			s.states.Delete(key)
		}
		return true
	})
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
