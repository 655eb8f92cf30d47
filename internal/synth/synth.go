// Package synth derives time-varying observable state from static fixture
// baselines: deterministic presence flapping, jittered throughput, and
// cumulative traffic counters. Randomness flows through a seedable Source
// and time through a Clock so tests can pin both.
package synth

import (
	"math/rand"
	"sync"
	"time"
)

// Clock is the time source used for flap phases and traffic accumulation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Source is a mutex-guarded pseudo-random source. A fixed seed reproduces
// the full synthetic telemetry stream.
type Source struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{rand: rand.New(rand.NewSource(seed))}
}

// NewTimeSource returns a Source seeded from the current time, the
// production default.
func NewTimeSource() *Source {
	return NewSource(time.Now().UnixNano())
}

// Float64 draws a uniform value in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// IntBetween draws a uniform integer in [min, max], both ends inclusive.
func (s *Source) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rand.Intn(max-min+1)
}

// Int64Between draws a uniform int64 in [min, max], for byte counters that
// exceed the int32 range on any platform.
func (s *Source) Int64Between(min, max int64) int64 {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rand.Int63n(max-min+1)
}

// Uniform draws a uniform float in [min, max).
func (s *Source) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rand.Float64()*(max-min)
}

// Jitter multiplies value by a uniform ratio in [1-spread, 1+spread]
// (lower bound clamped at 0) and floors the result. Non-positive seed
// values collapse to the floor; callers that want a fresh plausible value
// instead draw one from their profile's bounds first.
func (s *Source) Jitter(value int, spread float64, floor int) int {
	if value <= 0 {
		return floor
	}
	low := 1 - spread
	if low < 0 {
		low = 0
	}
	jittered := int(float64(value) * s.Uniform(low, 1+spread))
	if jittered < floor {
		return floor
	}
	return jittered
}

// RateStep advances a throughput reading: a zero or absent reading is
// re-seeded uniformly inside [min, max]; otherwise the current value is
// jittered by a 0.72-1.33 ratio and clamped to the same bounds.
func (s *Source) RateStep(current, min, max int) int {
	if current <= 0 {
		return s.IntBetween(min, max)
	}
	next := int(float64(current) * s.Uniform(0.72, 1.33))
	if next < min {
		return min
	}
	if next > max {
		return max
	}
	return next
}

// Elapsed clamp for traffic accumulation. Long idle gaps between polls must
// not translate into runaway counter growth.
const (
	minElapsedSeconds = 0.3
	maxElapsedSeconds = 4.0
)

// Ticker measures clamped elapsed time between synthesis passes.
type Ticker struct {
	clock Clock
	last  time.Time
}

// NewTicker starts a ticker at the clock's current time.
func NewTicker(clock Clock) *Ticker {
	return &Ticker{clock: clock, last: clock.Now()}
}

// Tick returns the seconds since the previous tick, clamped to
// [0.3s, 4.0s], and resets the reference point.
func (t *Ticker) Tick() float64 {
	now := t.clock.Now()
	elapsed := now.Sub(t.last).Seconds()
	t.last = now
	if elapsed < minElapsedSeconds {
		return minElapsedSeconds
	}
	if elapsed > maxElapsedSeconds {
		return maxElapsedSeconds
	}
	return elapsed
}

// AccumulateTraffic grows a cumulative byte counter by rateKB kilobytes per
// second over elapsed seconds. Counters only move forward.
func AccumulateTraffic(counter int64, rateKB int, elapsed float64) int64 {
	if rateKB <= 0 || elapsed <= 0 {
		return counter
	}
	return counter + int64(float64(rateKB)*1000*elapsed)
}
