package store

import (
	"strings"
	"testing"
	"time"
)

func TestValidateEnqueue(t *testing.T) {
	cfg := DefaultConfig()
	valid := EnqueueOp{Queue: "q", Payload: []byte("p"), Priority: 5, TTRMs: 10, DelayMs: 0, NowMs: 1}
	if err := cfg.ValidateEnqueue(valid); err != nil {
		t.Fatalf("valid op rejected: %v", err)
	}

	tests := []struct {
		name string
		mod  func(*EnqueueOp)
	}{
		{"zero ttr", func(o *EnqueueOp) { o.TTRMs = 0 }},
		{"negative ttr", func(o *EnqueueOp) { o.TTRMs = -1 }},
		{"ttr too large", func(o *EnqueueOp) { o.TTRMs = (25 * time.Hour).Milliseconds() }},
		{"negative delay", func(o *EnqueueOp) { o.DelayMs = -1 }},
		{"delay too large", func(o *EnqueueOp) { o.DelayMs = (366 * 24 * time.Hour).Milliseconds() }},
		{"priority below bound", func(o *EnqueueOp) { o.Priority = -1 }},
		{"priority above bound", func(o *EnqueueOp) { o.Priority = 1 << 32 }},
		{"empty queue", func(o *EnqueueOp) { o.Queue = "" }},
		{"negative now", func(o *EnqueueOp) { o.NowMs = -1 }},
		{"now past year 9999", func(o *EnqueueOp) { o.NowMs = MaxNowMs + 1 }},
		{"queue with NUL", func(o *EnqueueOp) { o.Queue = "a\x00b" }},
		{"long queue", func(o *EnqueueOp) { o.Queue = strings.Repeat("q", 201) }},
		{"large payload", func(o *EnqueueOp) { o.Payload = make([]byte, 256<<10+1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := valid
			tt.mod(&op)
			err := cfg.ValidateEnqueue(op)
			if !IsInvalidArgument(err) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestValidatePriorityBounds(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidatePriority(0); err != nil {
		t.Errorf("min priority rejected: %v", err)
	}
	if err := cfg.ValidatePriority(1<<32 - 1); err != nil {
		t.Errorf("max priority rejected: %v", err)
	}
}

func TestValidateKickAndWipe(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateKick(KickOp{Queue: "q", N: 0}); err != nil {
		t.Errorf("kick n=0 rejected: %v", err)
	}
	if err := cfg.ValidateKick(KickOp{Queue: "q", N: -1}); !IsInvalidArgument(err) {
		t.Errorf("kick n=-1: expected InvalidArgument, got %v", err)
	}
	if err := cfg.ValidateWipe(WipeOp{}); !IsInvalidArgument(err) {
		t.Errorf("zero scope: expected InvalidArgument, got %v", err)
	}
	if err := cfg.ValidateWipe(WipeOp{Scope: WipeAll()}); err != nil {
		t.Errorf("wipe all rejected: %v", err)
	}
	if err := cfg.ValidateWipe(WipeOp{Scope: WipeQueue("q")}); err != nil {
		t.Errorf("wipe queue rejected: %v", err)
	}
}

func TestMillisDuration(t *testing.T) {
	d, err := MillisDuration("ttr", 1500)
	if err != nil || d != 1500*time.Millisecond {
		t.Fatalf("MillisDuration(1500) = %s, %v", d, err)
	}
	if _, err := MillisDuration("ttr", MaxDurationMs); err != nil {
		t.Fatalf("MillisDuration(max): %v", err)
	}
	for _, ms := range []int64{MaxDurationMs + 1, 18446744083709, -MaxDurationMs - 1} {
		if _, err := MillisDuration("delay", ms); !IsInvalidArgument(err) {
			t.Errorf("MillisDuration(%d): expected InvalidArgument, got %v", ms, err)
		}
	}
}

func TestValidateReleaseNow(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateRelease(ReleaseOp{JobID: "1", NowMs: MaxNowMs}); err != nil {
		t.Fatalf("release at MaxNowMs rejected: %v", err)
	}
	if err := cfg.ValidateRelease(ReleaseOp{JobID: "1", NowMs: MaxNowMs + 1}); !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
