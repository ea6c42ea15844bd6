// Package retry wraps a single operation with bounded exponential backoff
// and jitter. It sits inside the circuit breaker in the composition: inner
// attempts do not count as breaker failures individually, only the final
// outcome does.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
)

// Policy describes one retry schedule.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
}

// Run invokes fn up to MaxRetries+1 times, waiting between attempts with
// exponential backoff and jitter. Validation and permanent faults stop the
// schedule immediately. The last error is propagated when all attempts fail.
func (p Policy) Run(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		switch fault.KindOf(err) {
		case fault.Validation, fault.Permanent:
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(backoff.WithContext(b, ctx), p.MaxRetries))
}
