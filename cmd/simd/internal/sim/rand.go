package sim

import (
	"encoding/binary"
	"hash/fnv"
)

// lcg is a small 64-bit linear congruential generator. Not cryptographic;
// the engine only needs cheap, reproducible noise independent of the global
// rand state.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	// Avoid the zero fixed point
	return &lcg{state: seed ^ 0x9E3779B97F4A7C15}
}

func (l *lcg) next() uint64 {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return l.state
}

func (l *lcg) Intn(n int) int {
	return int(l.next() % uint64(n))
}

func (l *lcg) Float64() float64 {
	return float64(l.next()>>11) / (1 << 53)
}

// seedFor hashes the instrument id together with the time bucket
func seedFor(coinID string, bucket int64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(coinID))

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(bucket))
	h.Write(b[:])

	return h.Sum64()
}

// DefaultRandSource is the production RandSource: an LCG keyed by
// (instrument id, time bucket).
func DefaultRandSource(coinID string, bucket int64) Rand {
	return newLCG(seedFor(coinID, bucket))
}
