// Package guard provides a per-capability reentrancy lock.
//
// One entity can expose several independent capabilities (routing, auction,
// lending). Each capability gets its own enter/exit flag so re-entering a
// different capability on the same entity is allowed, while re-entry into an
// in-flight capability is rejected with an error naming the capability.
package guard

import (
	"errors"
	"fmt"
)

// ErrReentered is returned when a capability is entered while already held.
var ErrReentered = errors.New("capability reentered")

// Capability identifies one guarded role on an entity.
type Capability string

// Guard tracks enter/exit state per capability for a single entity.
// It is scoped to one serialized call chain, not to concurrent goroutines.
type Guard struct {
	entered map[Capability]bool
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{entered: make(map[Capability]bool)}
}

// Enter marks the capability as in-flight and returns a release closure.
// The closure must run on every exit path; deferring it immediately after a
// successful Enter guarantees release on both return and propagated failure.
// Release is idempotent.
func (g *Guard) Enter(cap Capability) (func(), error) {
	if g.entered[cap] {
		return nil, fmt.Errorf("%s: %w", cap, ErrReentered)
	}
	g.entered[cap] = true

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		delete(g.entered, cap)
	}
	return release, nil
}

// Held reports whether the capability is currently entered.
func (g *Guard) Held(cap Capability) bool {
	return g.entered[cap]
}
