// Package authz evaluates protection rules against a claims snapshot.
package authz

import (
	"fmt"

	"portfolio-backend/internal/claims"
)

// Kind enumerates protection rule variants.
type Kind int

const (
	None Kind = iota
	RequiresAuth
	RequiresRole
	RequiresPermission
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case RequiresAuth:
		return "requires-auth"
	case RequiresRole:
		return "requires-role"
	case RequiresPermission:
		return "requires-permission"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule is a declarative visibility requirement attached to a UI region.
type Rule struct {
	Kind Kind
	Name string // role or permission name
}

func (r Rule) String() string {
	if r.Name == "" {
		return r.Kind.String()
	}
	return r.Kind.String() + "(" + r.Name + ")"
}

// Public is the rule for ungated regions.
func Public() Rule { return Rule{Kind: None} }

// Auth requires any authenticated identity.
func Auth() Rule { return Rule{Kind: RequiresAuth} }

// Role requires the named role.
func Role(name string) Rule { return Rule{Kind: RequiresRole, Name: name} }

// Permission requires the named permission.
func Permission(name string) Rule { return Rule{Kind: RequiresPermission, Name: name} }

// HasRole reports whether an authenticated state carries the role.
func HasRole(s claims.State, name string) bool {
	return s.Authenticated() && s.Claims().Roles.Has(name)
}

// HasPermission reports whether an authenticated state carries the permission.
func HasPermission(s claims.State, name string) bool {
	return s.Authenticated() && s.Claims().Permissions.Has(name)
}

// Evaluate decides whether a region with rule r is visible in state s.
// It has no side effects.
func Evaluate(r Rule, s claims.State) bool {
	switch r.Kind {
	case None:
		return true
	case RequiresAuth:
		return s.Authenticated()
	case RequiresRole:
		return HasRole(s, r.Name)
	case RequiresPermission:
		return HasPermission(s, r.Name)
	default:
		// unknown rules stay hidden
		return false
	}
}

// Evaluator binds the checks to a live store.
type Evaluator struct {
	store *claims.Store
}

// NewEvaluator creates an Evaluator over store.
func NewEvaluator(store *claims.Store) *Evaluator {
	return &Evaluator{store: store}
}

func (e *Evaluator) HasRole(name string) bool {
	return HasRole(e.store.Snapshot(), name)
}

func (e *Evaluator) HasPermission(name string) bool {
	return HasPermission(e.store.Snapshot(), name)
}

func (e *Evaluator) Evaluate(r Rule) bool {
	return Evaluate(r, e.store.Snapshot())
}
