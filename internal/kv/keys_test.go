package kv

import (
	"bytes"
	"testing"
)

func TestJobKeyRoundTrip(t *testing.T) {
	k := JobKey(42)
	if !bytes.HasPrefix(k, []byte(PrefixJob)) {
		t.Fatal("missing prefix")
	}
	if len(k) != len(PrefixJob)+8 {
		t.Fatalf("key length = %d, want %d", len(k), len(PrefixJob)+8)
	}
	if id := GetUint64BE(k[len(PrefixJob):]); id != 42 {
		t.Errorf("job id: got %d, want 42", id)
	}
}

func TestReadyKeySortOrder(t *testing.T) {
	// Lower priority value sorts first.
	k1 := ReadyKey("default", 1, 9)
	k2 := ReadyKey("default", 5, 2)
	if bytes.Compare(k1, k2) >= 0 {
		t.Error("priority 1 should sort before priority 5")
	}

	// Same priority: lower id (older) sorts first, including across byte widths.
	k3 := ReadyKey("default", 5, 9)
	k4 := ReadyKey("default", 5, 10)
	if bytes.Compare(k3, k4) >= 0 {
		t.Error("id 9 should sort before id 10")
	}

	// Negative priorities sort before zero.
	k5 := ReadyKey("default", -3, 100)
	k6 := ReadyKey("default", 0, 1)
	if bytes.Compare(k5, k6) >= 0 {
		t.Error("priority -3 should sort before priority 0")
	}
}

func TestDelayedKeySortOrder(t *testing.T) {
	k1 := DelayedKey("q", 1000, 7)
	k2 := DelayedKey("q", 2000, 3)
	if bytes.Compare(k1, k2) >= 0 {
		t.Error("earlier ready_at should sort first")
	}
}

func TestReservedKeySortOrder(t *testing.T) {
	k1 := ReservedKey("q", 1000, 7)
	k2 := ReservedKey("q", 1001, 3)
	if bytes.Compare(k1, k2) >= 0 {
		t.Error("earlier deadline should sort first")
	}
}

func TestBuriedKeySortOrder(t *testing.T) {
	k1 := BuriedKey("q", 1, 50)
	k2 := BuriedKey("q", 2, 10)
	if bytes.Compare(k1, k2) >= 0 {
		t.Error("earlier bury sequence should sort first")
	}
}

func TestQueuePrefixIsolation(t *testing.T) {
	prefix := ReadyPrefix("emails")
	key := ReadyKey("emails", 2, 99)
	if !bytes.HasPrefix(key, prefix) {
		t.Error("ready key should start with queue prefix")
	}

	// A queue whose name extends another must not match its prefix.
	otherKey := ReadyKey("emails2", 2, 99)
	if bytes.HasPrefix(otherKey, prefix) {
		t.Error("different queue should not match")
	}
}

func TestDecodeIndexKey(t *testing.T) {
	prefix := DelayedPrefix("q")
	e, ok := DecodeIndexKey(prefix, DelayedKey("q", -250, 77))
	if !ok {
		t.Fatal("DecodeIndexKey failed")
	}
	if e.JobID != 77 {
		t.Errorf("job id: got %d, want 77", e.JobID)
	}
	if e.SortInt64() != -250 {
		t.Errorf("sort: got %d, want -250", e.SortInt64())
	}
	if _, ok := DecodeIndexKey(ReadyPrefix("q"), DelayedKey("q", 1, 1)); ok {
		t.Error("key under a different prefix should not decode")
	}
}

func TestQueueNameKey(t *testing.T) {
	k := QueueNameKey("emails")
	if string(k) != "qn|emails" {
		t.Errorf("got %q", string(k))
	}
}

func TestPrefixUpperBound(t *testing.T) {
	if got := PrefixUpperBound([]byte("r|")); string(got) != "r}" {
		t.Errorf("got %q, want %q", got, "r}")
	}
	if got := PrefixUpperBound([]byte{'a', 0xFF}); !bytes.Equal(got, []byte{'b'}) {
		t.Errorf("got %v, want [98]", got)
	}
	if got := PrefixUpperBound([]byte{0xFF, 0xFF}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
