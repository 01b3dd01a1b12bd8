package crypto

import (
	"encoding/binary"
	"sync/atomic"
)

const (
	// NonceSize is the size of an ASCON-AEAD128 nonce.
	NonceSize = 16

	seedWindow  = 6
	seedOffsets = NonceSeedSize - seedWindow + 1
)

// Nonce is a 16-byte per-message AEAD nonce.
//
// Layout:
//
//	[seed_window:6][timestamp_ms_be:8][counter_be:2]
//
// The seed window starts at (lo(ts) ^ byte1(ts)) mod 11 inside the 16-byte seed.
// Uniqueness rests on the timestamp and counter suffix; two nonces collide only
// if 65536 messages are sealed within the same millisecond.
type Nonce [NonceSize]byte

// nonceCounter is a wrapping 16-bit message counter.
//
// The only operation is Next, a fetch-then-increment, so no caller can rewind
// or overwrite it. Production code uses the single processCounter.
type nonceCounter struct {
	n atomic.Uint32
}

// Next returns the current counter value and advances it, wrapping after 0xffff.
func (c *nonceCounter) Next() uint16 {
	return uint16(c.n.Add(1) - 1)
}

// processCounter is shared by every BuildNonce call in the process and never reset.
var processCounter nonceCounter

// BuildNonce builds a nonce from the seed and timestamp using the process-wide counter.
func BuildNonce(seed [NonceSeedSize]byte, timestampMs uint64) Nonce {
	return processCounter.BuildNonce(seed, timestampMs)
}

// BuildNonce builds a nonce from the seed and timestamp, consuming one value of c.
func (c *nonceCounter) BuildNonce(seed [NonceSeedSize]byte, timestampMs uint64) Nonce {
	var nonce Nonce

	offset := seedOffset(timestampMs)
	copy(nonce[0:seedWindow], seed[offset:offset+seedWindow])
	binary.BigEndian.PutUint64(nonce[6:14], timestampMs)
	binary.BigEndian.PutUint16(nonce[14:16], c.Next())

	return nonce
}

// seedOffset depends only on the low 16 bits of the timestamp.
func seedOffset(timestampMs uint64) int {
	selector := byte(timestampMs) ^ byte(timestampMs>>8)
	return int(selector) % seedOffsets
}
