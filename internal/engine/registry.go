package engine

import (
	"context"
	"fmt"
	"sync"
)

// Registry guarantees at most one live cycle per (exchange, symbol) pair.
// Spawning the same pair while a cycle is in flight is refused, not queued.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]struct{}{}}
}

func key(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// Running reports whether a cycle for the pair is currently live.
func (r *Registry) Running(exchange, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key(exchange, symbol)]
	return ok
}

// Run executes one cycle under the registry. The slot is claimed before the
// executor starts and released whatever way it ends.
func (r *Registry) Run(ctx context.Context, e *Executor) (Outcome, error) {
	k := key(e.order.Exchange, e.order.Symbol)

	r.mu.Lock()
	if _, busy := r.tasks[k]; busy {
		r.mu.Unlock()
		return OutcomeAborted, fmt.Errorf("cycle already running for %s", k)
	}
	r.tasks[k] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.tasks, k)
		r.mu.Unlock()
	}()

	return e.Run(ctx)
}
