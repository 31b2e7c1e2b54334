package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value and its fallbacks, tried in
// registration order.
type FallbackGroup[T any] struct {
	cfg CircuitBreakerConfig

	mu      sync.RWMutex
	entries []entry[T]
}

// NewFallbackGroup creates a group with primary as its first entry. cfg is the
// template for every entry's breaker; its Name is replaced by the entry name.
func NewFallbackGroup[T any](primary T, primaryName string, cfg CircuitBreakerConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a fallback after the existing entries.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, entry[T]{name: name, value: value, breaker: NewCircuitBreaker(cfg)})
}

// Names returns the entry names in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the breaker guarding the named entry, or nil.
func (g *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute runs fn against each entry until one succeeds and returns that
// entry's result. The error wraps [ErrAllFailed] and the last failure when no
// entry succeeds. It is a function rather than a method because methods cannot
// declare type parameters.
func Execute[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	g.mu.RLock()
	entries := append([]entry[T](nil), g.entries...)
	g.mu.RUnlock()

	var (
		zero    R
		lastErr error
	)
	for _, e := range entries {
		var res R
		err := e.breaker.Execute(func() error {
			var err error
			res, err = fn(e.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
