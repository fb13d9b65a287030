// Package backoff computes capped exponential retry delays.
package backoff

import "time"

const (
	// DefaultBase is the delay for the first retry.
	DefaultBase = time.Second
	// DefaultCeiling caps every computed delay.
	DefaultCeiling = 30 * time.Second
)

// Policy maps a retry count to a delay of Base * 2^retryCount, clamped to Ceiling.
type Policy struct {
	Base    time.Duration
	Ceiling time.Duration
}

// Default returns the 1s base / 30s ceiling policy.
func Default() Policy {
	return Policy{Base: DefaultBase, Ceiling: DefaultCeiling}
}

func (p Policy) normalize() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Ceiling <= 0 {
		p.Ceiling = DefaultCeiling
	}
	if p.Ceiling < p.Base {
		p.Ceiling = p.Base
	}
	return p
}

// Delay returns the wait before the next attempt after retryCount prior retries.
// Negative counts are treated as zero.
func (p Policy) Delay(retryCount int) time.Duration {
	p = p.normalize()
	if retryCount <= 0 {
		return p.Base
	}

	delay := p.Base
	for idx := 0; idx < retryCount; idx++ {
		if delay >= p.Ceiling/2 {
			return p.Ceiling
		}
		delay *= 2
	}
	if delay > p.Ceiling {
		return p.Ceiling
	}
	return delay
}
