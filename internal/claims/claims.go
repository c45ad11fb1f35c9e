// Package claims holds the currently known identity and its role and
// permission claims. It is the only state the authorization and visibility
// layers read; the session gate is its only writer.
package claims

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Identity is the provider-issued user profile.
type Identity struct {
	SubjectID   string `json:"sub"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	PictureURL  string `json:"picture"`
}

// Set is an immutable string set.
type Set map[string]struct{}

// NewSet builds a Set from a list, dropping empty entries.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		if item != "" {
			s[item] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// ClaimsSet is the roles and permissions derived from provider claims.
type ClaimsSet struct {
	Roles       Set
	Permissions Set
}

// State is one immutable snapshot of the store. The zero value is anonymous.
type State struct {
	identity *Identity
	claims   ClaimsSet
}

// Authenticated reports whether the snapshot carries an identity.
func (s State) Authenticated() bool {
	return s.identity != nil
}

// Identity returns the identity, or false when anonymous.
func (s State) Identity() (Identity, bool) {
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Claims returns the claims set. Empty when anonymous.
func (s State) Claims() ClaimsSet {
	return s.claims
}

// Anonymous is the unauthenticated state.
var Anonymous = State{}

// Authenticated builds an authenticated state. Mostly useful in tests.
func Authenticated(id Identity, cs ClaimsSet) State {
	return State{identity: &id, claims: normalize(cs)}
}

// Listener is called synchronously after every store mutation.
type Listener func(State)

// Store holds the current State. Snapshots are swapped atomically so readers
// never observe an identity paired with another identity's claims.
type Store struct {
	current atomic.Pointer[State]

	mu        sync.Mutex
	listeners []Listener
}

// NewStore creates an anonymous store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&State{})
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	return *s.current.Load()
}

// Set replaces identity and claims in one step, then notifies listeners.
func (s *Store) Set(id Identity, cs ClaimsSet) {
	next := Authenticated(id, cs)
	s.current.Store(&next)
	s.notify(next)
}

// Clear resets the store to anonymous, then notifies listeners.
func (s *Store) Clear() {
	s.current.Store(&State{})
	s.notify(Anonymous)
}

// Subscribe registers a listener for every subsequent mutation.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) notify(state State) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func normalize(cs ClaimsSet) ClaimsSet {
	if cs.Roles == nil {
		cs.Roles = Set{}
	}
	if cs.Permissions == nil {
		cs.Permissions = Set{}
	}
	return cs
}
