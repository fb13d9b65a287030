package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Delays never decrease as the retry count grows and never exceed the ceiling.
func TestProperty_DelayMonotonicAndCapped(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	policy := Default()

	properties.Property("delay(n) <= delay(n+1)", prop.ForAll(
		func(n int) bool {
			return policy.Delay(n) <= policy.Delay(n+1)
		},
		gen.IntRange(0, 1000),
	))

	properties.Property("delay(n) <= 30s", prop.ForAll(
		func(n int) bool {
			return policy.Delay(n) <= 30*time.Second
		},
		gen.IntRange(-10, 100000),
	))

	properties.Property("custom policies stay within [base, ceiling]", prop.ForAll(
		func(baseMs, ceilingMs, n int) bool {
			p := Policy{
				Base:    time.Duration(baseMs) * time.Millisecond,
				Ceiling: time.Duration(ceilingMs) * time.Millisecond,
			}
			normalized := p.normalize()
			delay := p.Delay(n)
			return delay >= normalized.Base && delay <= normalized.Ceiling
		},
		gen.IntRange(1, 5000),
		gen.IntRange(1, 120000),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}
