package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestEnterRelease(t *testing.T) {
	g := New()

	release, err := g.Enter("pool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Held("pool") {
		t.Fatalf("capability should be held after enter")
	}

	release()
	if g.Held("pool") {
		t.Fatalf("capability should be free after release")
	}
}

func TestReentryRejected(t *testing.T) {
	g := New()

	release, err := g.Enter("auction")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if _, err := g.Enter("auction"); !errors.Is(err, ErrReentered) {
		t.Fatalf("expected ErrReentered, got %v", err)
	}
}

func TestReentryErrorNamesCapability(t *testing.T) {
	g := New()

	release, err := g.Enter("lending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	_, err = g.Enter("lending")
	if err == nil || !strings.Contains(err.Error(), "lending") {
		t.Fatalf("error should name the capability: %v", err)
	}
}

func TestIndependentCapabilities(t *testing.T) {
	g := New()

	releasePool, err := g.Enter("pool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer releasePool()

	releaseSwap, err := g.Enter("swap")
	if err != nil {
		t.Fatalf("entering a different capability should succeed: %v", err)
	}
	releaseSwap()

	if g.Held("swap") {
		t.Fatalf("swap should be free after release")
	}
	if !g.Held("pool") {
		t.Fatalf("pool should still be held")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	g := New()

	release, err := g.Enter("pool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	again, err := g.Enter("pool")
	if err != nil {
		t.Fatalf("re-enter after release should succeed: %v", err)
	}

	// The stale release must not free the new acquisition.
	release()
	if !g.Held("pool") {
		t.Fatalf("stale release freed the capability")
	}
	again()
}
