package backend

import (
	"context"
	"fmt"

	"github.com/arvelex/veriplan/pkg/model"
)

// Router selects the capability for each step. Route is pure selection;
// Acquire opens capabilities lazily, at most one per target kind, and the
// run that owns the router releases them all when it ends.
type Router struct {
	factories map[model.TargetKind]Factory
	open      map[model.TargetKind]Capability
}

// NewRouter builds a router over the given per-kind factories.
func NewRouter(factories map[model.TargetKind]Factory) *Router {
	return &Router{
		factories: factories,
		open:      make(map[model.TargetKind]Capability),
	}
}

// Route classifies a step and checks a backend exists for it. It selects,
// never executes, and has no side effects.
func (r *Router) Route(step model.Step) (model.TargetKind, error) {
	kind := step.Target
	if kind == "" {
		kind = model.TargetUnknown
	}
	if kind == model.TargetUnknown {
		return kind, &RoutingError{StepIndex: step.Index, Kind: kind}
	}
	if _, ok := r.factories[kind]; !ok {
		return kind, &RoutingError{StepIndex: step.Index, Kind: kind}
	}
	return kind, nil
}

// Acquire returns the run's capability for a kind, opening it on first use.
func (r *Router) Acquire(ctx context.Context, kind model.TargetKind) (Capability, error) {
	if cap, ok := r.open[kind]; ok {
		return cap, nil
	}
	factory, ok := r.factories[kind]
	if !ok {
		return nil, &RoutingError{Kind: kind}
	}
	cap, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", kind, err)
	}
	r.open[kind] = cap
	return cap, nil
}

// Open returns the already-open capability for a kind, if any. It never
// opens one itself.
func (r *Router) Open(kind model.TargetKind) (Capability, bool) {
	cap, ok := r.open[kind]
	return cap, ok
}

// ReleaseAll closes every capability the run opened. Called on every exit
// path, including abort and cancellation. Returns the first release error
// after attempting all of them.
func (r *Router) ReleaseAll() error {
	var first error
	for kind, cap := range r.open {
		if err := cap.Release(); err != nil && first == nil {
			first = fmt.Errorf("release %s backend: %w", kind, err)
		}
		delete(r.open, kind)
	}
	return first
}
