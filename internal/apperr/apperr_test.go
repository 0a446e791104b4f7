package apperr_test

import (
	"errors"
	"testing"

	"github.com/kickai/kickai/internal/apperr"
)

func TestNewAndAs(t *testing.T) {
	err := apperr.New(apperr.NotFound, "player not found")
	kind, msg := apperr.As(err)
	if kind != apperr.NotFound {
		t.Fatalf("kind = %s, want NotFound", kind)
	}
	if msg != "player not found" {
		t.Fatalf("message = %q, want %q", msg, "player not found")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("sqlite: busy")
	err := apperr.Wrap(apperr.DependencyUnavailable, "storage unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("Wrap should preserve the underlying cause for errors.Is")
	}
	if !apperr.Is(err, apperr.DependencyUnavailable) {
		t.Fatalf("Is should recognize the wrapped kind")
	}
}

func TestAsOpaqueErrorDefaultsToDependencyUnavailable(t *testing.T) {
	kind, _ := apperr.As(errors.New("boom"))
	if kind != apperr.DependencyUnavailable {
		t.Fatalf("opaque error should classify as DependencyUnavailable, got %s", kind)
	}
}

func TestSystemCriticalNotRecoverable(t *testing.T) {
	if apperr.SystemCritical.Recoverable() {
		t.Fatalf("SystemCritical must never be recoverable")
	}
	if !apperr.NotFound.Recoverable() {
		t.Fatalf("NotFound should be recoverable")
	}
}
