package kv

import "bytes"

// Key prefixes. Each prefix ends with '|' as a separator.
const (
	PrefixJob       = "j|"  // j|{job_id:8BE}
	PrefixReady     = "r|"  // r|{queue}\x00{priority:8BE}{job_id:8BE}
	PrefixDelayed   = "d|"  // d|{queue}\x00{ready_at_ms:8BE}{job_id:8BE}
	PrefixReserved  = "v|"  // v|{queue}\x00{deadline_ms:8BE}{job_id:8BE}
	PrefixBuried    = "b|"  // b|{queue}\x00{bury_seq:8BE}{job_id:8BE}
	PrefixQueueName = "qn|" // qn|{queue}
	KeyJobSeq       = "m|job_seq"
	KeyBurySeq      = "m|bury_seq"
)

const sep = '\x00'

// indexKeyLen is the length of the {sort:8BE}{job_id:8BE} suffix of every index key.
const indexKeyLen = 16

// JobKey returns the key for a job record: j|{job_id:8BE}
func JobKey(id uint64) []byte {
	return PutUint64BE([]byte(PrefixJob), id)
}

func queuePrefix(prefix, queue string) []byte {
	k := make([]byte, 0, len(prefix)+len(queue)+1+indexKeyLen)
	k = append(k, prefix...)
	k = append(k, queue...)
	return append(k, sep)
}

// ReadyKey returns the ready index key for a job.
// Sort order: priority ASC, then job_id ASC.
func ReadyKey(queue string, priority int64, id uint64) []byte {
	k := PutInt64BE(queuePrefix(PrefixReady, queue), priority)
	return PutUint64BE(k, id)
}

// ReadyPrefix returns the scan prefix for a queue's ready index: r|{queue}\x00
func ReadyPrefix(queue string) []byte {
	return queuePrefix(PrefixReady, queue)
}

// DelayedKey returns the delay index key for a job, sorted by ready_at then job_id.
func DelayedKey(queue string, readyAtMs int64, id uint64) []byte {
	k := PutInt64BE(queuePrefix(PrefixDelayed, queue), readyAtMs)
	return PutUint64BE(k, id)
}

// DelayedPrefix returns the scan prefix for a queue's delay index: d|{queue}\x00
func DelayedPrefix(queue string) []byte {
	return queuePrefix(PrefixDelayed, queue)
}

// ReservedKey returns the reserved index key for a job, sorted by lease deadline then job_id.
func ReservedKey(queue string, deadlineMs int64, id uint64) []byte {
	k := PutInt64BE(queuePrefix(PrefixReserved, queue), deadlineMs)
	return PutUint64BE(k, id)
}

// ReservedPrefix returns the scan prefix for a queue's reserved index: v|{queue}\x00
func ReservedPrefix(queue string) []byte {
	return queuePrefix(PrefixReserved, queue)
}

// BuriedKey returns the buried set key for a job, sorted by bury sequence.
func BuriedKey(queue string, burySeq uint64, id uint64) []byte {
	k := PutUint64BE(queuePrefix(PrefixBuried, queue), burySeq)
	return PutUint64BE(k, id)
}

// BuriedPrefix returns the scan prefix for a queue's buried set: b|{queue}\x00
func BuriedPrefix(queue string) []byte {
	return queuePrefix(PrefixBuried, queue)
}

// IndexPrefixes returns the four per-queue index prefixes.
func IndexPrefixes(queue string) [][]byte {
	return [][]byte{
		ReadyPrefix(queue),
		DelayedPrefix(queue),
		ReservedPrefix(queue),
		BuriedPrefix(queue),
	}
}

// IndexEntry is a decoded index key suffix.
type IndexEntry struct {
	Sort  uint64 // raw sort component (priority, time or sequence, still encoded)
	JobID uint64
}

// DecodeIndexKey splits an index key into its sort component and job id.
// prefix must be the queue prefix the key was scanned under.
func DecodeIndexKey(prefix, k []byte) (IndexEntry, bool) {
	if !bytes.HasPrefix(k, prefix) || len(k) != len(prefix)+indexKeyLen {
		return IndexEntry{}, false
	}
	rest := k[len(prefix):]
	return IndexEntry{Sort: GetUint64BE(rest[:8]), JobID: GetUint64BE(rest[8:])}, true
}

// SortInt64 decodes the signed sort component of an index entry.
func (e IndexEntry) SortInt64() int64 {
	return int64(e.Sort ^ (1 << 63))
}

// QueueNameKey returns the key for the queue name registry: qn|{queue}
func QueueNameKey(queue string) []byte {
	return append([]byte(PrefixQueueName), queue...)
}

// QueueNamePrefix returns the scan prefix for all registered queues.
func QueueNamePrefix() []byte {
	return []byte(PrefixQueueName)
}

// PrefixUpperBound returns the first key that is not a prefix match.
func PrefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // all 0xFF, no upper bound
}
