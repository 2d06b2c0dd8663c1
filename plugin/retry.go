package plugin

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LockRetryPolicy bounds the attempts made to acquire a device lock.
type LockRetryPolicy struct {
	// MaxAttempts is the total number of lock attempts, values below one are treated as one.
	MaxAttempts int
	// Wait is the fixed pause between attempts. There is no pause after the last attempt.
	Wait time.Duration
	// Notify, if set, is called after each failed attempt that will be retried.
	Notify func(attempt int, err error, wait time.Duration)

	timer backoff.Timer
}

// Acquire calls tryLock until it succeeds or the attempts are exhausted.
// Exhaustion is reported as a KindLockExhausted error wrapping the last failure.
// A closed session or a transport failure is not retried, it is returned as is.
// Cancelling ctx abandons any pending wait.
func (p LockRetryPolicy) Acquire(ctx context.Context, tryLock func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	var last error
	op := func() error {
		attempt++
		last = tryLock()
		if sessionFailure(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempt, err, wait)
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Wait), uint64(maxAttempts-1)), ctx)

	if err := backoff.RetryNotifyWithTimer(op, b, notify, p.timer); err != nil {
		if sessionFailure(last) {
			return last
		}
		if ctx.Err() != nil || last == nil {
			last = err
		}
		return NewError(KindLockExhausted, "lock", "", last)
	}
	return nil
}

// sessionFailure reports whether err leaves the session unusable for another attempt.
func sessionFailure(err error) bool {
	return IsKind(err, KindSessionClosed) || IsKind(err, KindTransportRPC)
}
