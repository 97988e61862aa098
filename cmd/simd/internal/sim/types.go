package sim

import (
	"time"
)

// Clock abstracts time for deterministic testing
type Clock interface {
	Now() time.Time
}

// Rand is the pseudo-random source the engine draws jump parameters from
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// RandSource yields a Rand seeded by instrument id and a coarse time bucket,
// so repeated draws within the same bucket are stable.
type RandSource func(coinID string, bucket int64) Rand

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
