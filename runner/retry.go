package runner

import (
	"math"
	"time"
)

// RetryStrategy decides how long to wait before the next attempt.
// The attempt index starts at 0 and grows after each failure.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration {
	return 0
}

// ConstantDelayStrategy waits the same amount between attempts.
type ConstantDelayStrategy struct {
	Delay time.Duration
}

func (c ConstantDelayStrategy) SleepDuration(int, error) time.Duration {
	if c.Delay < 0 {
		return 0
	}
	return c.Delay
}

// ExponentialBackoffStrategy multiplies Base by Factor per attempt, capped
// at Max when Max is positive.
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 1
	}
	delay := time.Duration(float64(e.Base) * math.Pow(factor, float64(attempt)))
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}
