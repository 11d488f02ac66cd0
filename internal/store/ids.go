package store

import "strconv"

// Job ids are assigned from a per-engine sequence starting at 1 and are
// rendered as decimal strings. Callers treat them as opaque.

// FormatJobID renders a sequence number as a job id.
func FormatJobID(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// ParseJobID parses a job id. ok is false for anything that no engine
// could have issued.
func ParseJobID(id string) (seq uint64, ok bool) {
	if id == "" || id[0] == '0' || id[0] == '+' {
		return 0, false
	}
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
