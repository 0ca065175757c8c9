package supervise

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy encapsulates the delay between retry attempts.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next retry attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int) time.Duration
}

// NoDelayStrategy performs all retries immediately without waiting.
type NoDelayStrategy struct{}

// SleepDuration always returns zero, causing immediate retries.
func (NoDelayStrategy) SleepDuration(int) time.Duration {
	return 0
}

// ExponentialBackoffStrategy grows the delay by Factor each attempt, caps it
// at Max, and optionally randomizes it with full jitter.
//
// Usage example:
//
//	ExponentialBackoffStrategy{
//	    Base:   time.Second,
//	    Factor: 2,
//	    Max:    30 * time.Second,
//	    Jitter: true,
//	}
type ExponentialBackoffStrategy struct {
	// Base is the starting delay (e.g., 1s)
	Base time.Duration
	// Factor is multiplied each iteration (e.g., 2 => 1s, 2s, 4s, ...)
	Factor float64
	// Max is the maximum delay allowed (caps the exponential growth)
	Max time.Duration
	// Jitter picks a uniform random delay in [0, computed] to spread
	// simultaneous retries across the fleet.
	Jitter bool
}

// SleepDuration implements an exponential backoff with a cap at Max.
func (e ExponentialBackoffStrategy) SleepDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 2
	}
	delay := time.Duration(float64(e.Base) * math.Pow(factor, float64(attempt)))
	if e.Max > 0 && delay > e.Max {
		delay = e.Max
	}
	if e.Jitter && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
	}
	return delay
}
