package engine

import (
	"bytes"
	"fmt"

	oldproto "github.com/golang/protobuf/proto"
	"github.com/user/sqeleton/internal/kv"
	"github.com/user/sqeleton/internal/store"
)

var jobProtoPrefix = []byte{0x53, 0x51, 0x31} // "SQ1"

// jobRecord is the stored form of a job. Times are Unix milliseconds.
// BurySeq orders the buried set and is zero unless the job is buried.
type jobRecord struct {
	ID                uint64
	Queue             string
	Payload           []byte
	Priority          int64
	TTRMs             int64
	CreatedAtMs       int64
	ReadyAtMs         int64
	State             store.State
	ReserveDeadlineMs int64
	BuryReason        string
	BurySeq           uint64
	ReserveCount      int
}

type pbJobRecord struct {
	ID                uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Queue             string `protobuf:"bytes,2,opt,name=queue,proto3" json:"queue,omitempty"`
	Payload           []byte `protobuf:"bytes,3,opt,name=payload,proto3" json:"payload,omitempty"`
	Priority          int64  `protobuf:"zigzag64,4,opt,name=priority,proto3" json:"priority,omitempty"`
	TTRMs             int64  `protobuf:"varint,5,opt,name=ttr_ms,json=ttrMs,proto3" json:"ttr_ms,omitempty"`
	CreatedAtMs       int64  `protobuf:"varint,6,opt,name=created_at_ms,json=createdAtMs,proto3" json:"created_at_ms,omitempty"`
	ReadyAtMs         int64  `protobuf:"varint,7,opt,name=ready_at_ms,json=readyAtMs,proto3" json:"ready_at_ms,omitempty"`
	State             string `protobuf:"bytes,8,opt,name=state,proto3" json:"state,omitempty"`
	ReserveDeadlineMs int64  `protobuf:"varint,9,opt,name=reserve_deadline_ms,json=reserveDeadlineMs,proto3" json:"reserve_deadline_ms,omitempty"`
	BuryReason        string `protobuf:"bytes,10,opt,name=bury_reason,json=buryReason,proto3" json:"bury_reason,omitempty"`
	BurySeq           uint64 `protobuf:"varint,11,opt,name=bury_seq,json=burySeq,proto3" json:"bury_seq,omitempty"`
	ReserveCount      int32  `protobuf:"varint,12,opt,name=reserve_count,json=reserveCount,proto3" json:"reserve_count,omitempty"`
}

func (m *pbJobRecord) Reset()         { *m = pbJobRecord{} }
func (m *pbJobRecord) String() string { return oldproto.CompactTextString(m) }
func (*pbJobRecord) ProtoMessage()    {}

func encodeJobRecord(rec *jobRecord) ([]byte, error) {
	p := &pbJobRecord{
		ID:           rec.ID,
		Queue:        rec.Queue,
		Payload:      rec.Payload,
		Priority:     rec.Priority,
		TTRMs:        rec.TTRMs,
		CreatedAtMs:  rec.CreatedAtMs,
		ReadyAtMs:    rec.ReadyAtMs,
		State:        string(rec.State),
		ReserveCount: int32(rec.ReserveCount),
	}
	switch rec.State {
	case store.StateReserved:
		p.ReserveDeadlineMs = rec.ReserveDeadlineMs
	case store.StateBuried:
		p.BuryReason = rec.BuryReason
		p.BurySeq = rec.BurySeq
	}
	wire, err := oldproto.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, jobProtoPrefix...), wire...), nil
}

func decodeJobRecord(data []byte) (*jobRecord, error) {
	if !bytes.HasPrefix(data, jobProtoPrefix) {
		return nil, fmt.Errorf("unknown job record encoding")
	}
	var p pbJobRecord
	if err := oldproto.Unmarshal(data[len(jobProtoPrefix):], &p); err != nil {
		return nil, fmt.Errorf("unmarshal protobuf job: %w", err)
	}
	rec := &jobRecord{
		ID:                p.ID,
		Queue:             p.Queue,
		Payload:           append([]byte(nil), p.Payload...),
		Priority:          p.Priority,
		TTRMs:             p.TTRMs,
		CreatedAtMs:       p.CreatedAtMs,
		ReadyAtMs:         p.ReadyAtMs,
		State:             store.State(p.State),
		ReserveDeadlineMs: p.ReserveDeadlineMs,
		BuryReason:        p.BuryReason,
		BurySeq:           p.BurySeq,
		ReserveCount:      int(p.ReserveCount),
	}
	if !rec.State.Valid() {
		return nil, fmt.Errorf("job %d has unknown state %q", rec.ID, p.State)
	}
	return rec, nil
}

// indexKey returns the key of the one index that holds the job in its
// current state.
func (r *jobRecord) indexKey() []byte {
	switch r.State {
	case store.StateDelayed:
		return kv.DelayedKey(r.Queue, r.ReadyAtMs, r.ID)
	case store.StateReserved:
		return kv.ReservedKey(r.Queue, r.ReserveDeadlineMs, r.ID)
	case store.StateBuried:
		return kv.BuriedKey(r.Queue, r.BurySeq, r.ID)
	default:
		return kv.ReadyKey(r.Queue, r.Priority, r.ID)
	}
}

// toJob converts the record to its public form.
func (r *jobRecord) toJob() *store.Job {
	j := &store.Job{
		ID:           store.FormatJobID(r.ID),
		Queue:        r.Queue,
		Payload:      append([]byte(nil), r.Payload...),
		Priority:     r.Priority,
		TTR:          msDuration(r.TTRMs),
		CreatedAt:    store.FromMillis(r.CreatedAtMs),
		ReadyAt:      store.FromMillis(r.ReadyAtMs),
		State:        r.State,
		ReserveCount: r.ReserveCount,
	}
	switch r.State {
	case store.StateReserved:
		t := store.FromMillis(r.ReserveDeadlineMs)
		j.ReserveDeadline = &t
	case store.StateBuried:
		reason := r.BuryReason
		j.BuryReason = &reason
	}
	return j
}
