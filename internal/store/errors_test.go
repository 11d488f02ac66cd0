package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewInvalidState("job %s is not reserved", "1"))
	if !IsInvalidState(wrapped) {
		t.Error("IsInvalidState should see through wrapping")
	}
	if IsInvalidArgument(wrapped) || IsNotFound(wrapped) {
		t.Error("wrong predicate matched")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain error should have no code")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error should have no code")
	}
}

func TestTransportUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewTransportUnavailable("redis unreachable", cause)
	if !IsTransportUnavailable(err) {
		t.Fatal("expected TransportUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable with errors.Is")
	}
}
