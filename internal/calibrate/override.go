package calibrate

import "context"

// Override temporarily replaces a shared value and puts the original back.
//
// Acquire records the value in effect, Set applies a replacement, and Restore
// re-applies the recorded value if Set changed anything. Restore is
// idempotent, so every exit path may call it unconditionally.
//
// An Override is not safe for concurrent use; the [Machine] guards its
// overrides with its own mutex.
type Override[T comparable] struct {
	apply   func(context.Context, T) error
	saved   T
	held    bool
	changed bool
}

// NewOverride returns an Override that writes values through apply.
func NewOverride[T comparable](apply func(context.Context, T) error) *Override[T] {
	return &Override[T]{apply: apply}
}

// Acquire records current as the value to restore. Any earlier acquisition is
// forgotten without being restored.
func (o *Override[T]) Acquire(current T) {
	o.saved = current
	o.held = true
	o.changed = false
}

// Set applies v. It is a no-op before Acquire and when v equals the recorded
// value that is still in effect. On error nothing is marked as changed.
func (o *Override[T]) Set(ctx context.Context, v T) error {
	if !o.held || (!o.changed && v == o.saved) {
		return nil
	}
	if err := o.apply(ctx, v); err != nil {
		return err
	}
	o.changed = true
	return nil
}

// Restore re-applies the recorded value if Set changed it, then releases the
// override. A failed restore still releases it.
func (o *Override[T]) Restore(ctx context.Context) error {
	if !o.held {
		return nil
	}
	o.held = false
	if !o.changed {
		return nil
	}
	o.changed = false
	return o.apply(ctx, o.saved)
}

// Saved returns the recorded value and whether the override is held.
func (o *Override[T]) Saved() (T, bool) {
	return o.saved, o.held
}

// Active reports whether Set has changed the value since Acquire.
func (o *Override[T]) Active() bool {
	return o.held && o.changed
}
