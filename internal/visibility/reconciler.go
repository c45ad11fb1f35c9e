// Package visibility keeps protected UI regions in sync with the current
// claims snapshot.
package visibility

import (
	"sync"

	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/claims"

	"go.uber.org/zap"
)

// Region is a UI element whose display state the reconciler controls.
type Region interface {
	// Attached reports whether the region is still part of its document.
	Attached() bool
	SetVisible(visible bool)
}

// Binding pairs a region with its protection rule.
type Binding struct {
	Region Region
	Rule   authz.Rule
}

// Source yields bindings. It is re-scanned on every pass because regions may
// be added after the first reconcile.
type Source interface {
	Bindings() []Binding
}

// Reconciler owns the region bindings and applies rule evaluation to them.
type Reconciler struct {
	store  *claims.Store
	logger *zap.Logger

	mu       sync.Mutex
	bindings []Binding
	sources  []Source
}

// NewReconciler creates a Reconciler over store and subscribes it, so every
// store mutation triggers a pass before the mutator returns.
func NewReconciler(store *claims.Store, logger *zap.Logger) *Reconciler {
	r := &Reconciler{store: store, logger: logger}
	store.Subscribe(func(claims.State) { r.Reconcile() })
	return r
}

// Register adds an explicit binding.
func (r *Reconciler) Register(region Region, rule authz.Rule) {
	r.mu.Lock()
	r.bindings = append(r.bindings, Binding{Region: region, Rule: rule})
	r.mu.Unlock()
}

// AddSource adds a binding source scanned on every pass.
func (r *Reconciler) AddSource(src Source) {
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
}

// Reconcile sets every attached region's visibility from the current state
// and returns the number of regions it updated. Detached regions are skipped,
// and explicit bindings to them are dropped.
func (r *Reconciler) Reconcile() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.store.Snapshot()
	updated, skipped := 0, 0
	apply := func(b Binding) {
		if b.Region == nil || !b.Region.Attached() {
			skipped++
			return
		}
		b.Region.SetVisible(authz.Evaluate(b.Rule, state))
		updated++
	}

	kept := r.bindings[:0]
	for _, b := range r.bindings {
		if b.Region != nil && b.Region.Attached() {
			kept = append(kept, b)
		}
		apply(b)
	}
	clear(r.bindings[len(kept):])
	r.bindings = kept

	for _, src := range r.sources {
		for _, b := range src.Bindings() {
			apply(b)
		}
	}

	r.logger.Debug("reconciled protected regions",
		zap.Bool("authenticated", state.Authenticated()),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped))
	return updated
}
