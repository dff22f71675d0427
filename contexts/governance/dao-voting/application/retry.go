package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
)

// RetryPolicy bounds read-modify-write retries after version conflicts.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return 3
	}
	return p.Attempts
}

func (p RetryPolicy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return 25 * time.Millisecond
	}
	return p.BaseDelay
}

// OnConflict runs op until it succeeds, fails with a non-conflict error, or
// the attempt budget is spent. The last conflict is returned on exhaustion.
func (p RetryPolicy) OnConflict(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.baseDelay()
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.attempts()-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, domainerrors.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, bounded)
}
