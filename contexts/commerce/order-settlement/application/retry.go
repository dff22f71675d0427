package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

// RetryPolicy bounds both version-conflict retries and ledger call retries.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.BaseDelay
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 50 * time.Millisecond
	}
	if p.MaxDelay > 0 {
		policy.MaxInterval = p.MaxDelay
	}
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
}

// OnConflict retries op while it fails with a version conflict.
func (p RetryPolicy) OnConflict(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, domainerrors.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
}

// External retries op on any error except validation failures, which a
// repeat cannot fix. notify is called before each retry.
func (p RetryPolicy) External(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && errors.Is(err, domainerrors.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), notify)
}
