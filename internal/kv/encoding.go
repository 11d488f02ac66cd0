package kv

import "encoding/binary"

// PutUint64BE appends a big-endian uint64 to dst (8 bytes).
func PutUint64BE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// GetUint64BE reads a big-endian uint64 from b.
func GetUint64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// PutInt64BE appends an order-preserving encoding of a signed int64 (8 bytes).
// The sign bit is flipped so negative values sort before positive ones.
func PutInt64BE(dst []byte, v int64) []byte {
	return PutUint64BE(dst, uint64(v)^(1<<63))
}
