package engine

import (
	"bytes"
	"testing"

	"github.com/user/sqeleton/internal/kv"
	"github.com/user/sqeleton/internal/store"
)

func TestJobRecordRoundTrip(t *testing.T) {
	in := &jobRecord{
		ID:                42,
		Queue:             "emails",
		Payload:           []byte{0, 1, 2, 0xff},
		Priority:          -7,
		TTRMs:             10_000,
		CreatedAtMs:       1_700_000_000_000,
		ReadyAtMs:         1_700_000_000_500,
		State:             store.StateReserved,
		ReserveDeadlineMs: 1_700_000_010_500,
		ReserveCount:      3,
	}
	data, err := encodeJobRecord(in)
	if err != nil {
		t.Fatalf("encodeJobRecord: %v", err)
	}
	if !bytes.HasPrefix(data, jobProtoPrefix) {
		t.Fatal("missing codec prefix")
	}
	out, err := decodeJobRecord(data)
	if err != nil {
		t.Fatalf("decodeJobRecord: %v", err)
	}
	if out.ID != in.ID || out.Queue != in.Queue || out.Priority != in.Priority ||
		out.TTRMs != in.TTRMs || out.ReadyAtMs != in.ReadyAtMs ||
		out.ReserveDeadlineMs != in.ReserveDeadlineMs || out.ReserveCount != in.ReserveCount ||
		out.State != in.State || !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestEncodeDropsFieldsInvalidForState(t *testing.T) {
	rec := &jobRecord{ID: 1, Queue: "q", State: store.StateReady, TTRMs: 1,
		ReserveDeadlineMs: 99, BuryReason: "stale", BurySeq: 4}
	data, err := encodeJobRecord(rec)
	if err != nil {
		t.Fatalf("encodeJobRecord: %v", err)
	}
	out, err := decodeJobRecord(data)
	if err != nil {
		t.Fatalf("decodeJobRecord: %v", err)
	}
	if out.ReserveDeadlineMs != 0 || out.BuryReason != "" || out.BurySeq != 0 {
		t.Errorf("stale fields survived: %+v", out)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeJobRecord([]byte(`{"id":1}`)); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestIndexKeyFollowsState(t *testing.T) {
	rec := &jobRecord{ID: 9, Queue: "q", Priority: 2, ReadyAtMs: 100, ReserveDeadlineMs: 200, BurySeq: 3}
	cases := map[store.State][]byte{
		store.StateReady:    kv.ReadyKey("q", 2, 9),
		store.StateDelayed:  kv.DelayedKey("q", 100, 9),
		store.StateReserved: kv.ReservedKey("q", 200, 9),
		store.StateBuried:   kv.BuriedKey("q", 3, 9),
	}
	for state, want := range cases {
		rec.State = state
		if got := rec.indexKey(); !bytes.Equal(got, want) {
			t.Errorf("%s: index key mismatch", state)
		}
	}
}

func TestToJobOptionalFields(t *testing.T) {
	rec := &jobRecord{ID: 5, Queue: "q", State: store.StateBuried, BuryReason: "boom", BurySeq: 1, TTRMs: 1000}
	j := rec.toJob()
	if j.ID != "5" {
		t.Errorf("id = %q, want 5", j.ID)
	}
	if j.BuryReason == nil || *j.BuryReason != "boom" {
		t.Errorf("bury reason = %v", j.BuryReason)
	}
	if j.ReserveDeadline != nil {
		t.Error("reserve deadline should be nil while buried")
	}
}
