package store

import "testing"

func TestFormatParseJobID(t *testing.T) {
	for _, seq := range []uint64{1, 9, 10, 12345, 1<<64 - 1} {
		id := FormatJobID(seq)
		got, ok := ParseJobID(id)
		if !ok || got != seq {
			t.Errorf("ParseJobID(%q) = %d, %v; want %d", id, got, ok, seq)
		}
	}
}

func TestParseJobIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "0", "007", "+5", "-1", "abc", "1.5", "18446744073709551616", "job_01"} {
		if _, ok := ParseJobID(id); ok {
			t.Errorf("ParseJobID(%q) should fail", id)
		}
	}
}
