package plugin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Step is a remote operation performed by the commit protocol.
type Step int

const (
	StepLock Step = iota
	StepDiscard
	StepLoad
	StepValidate
	StepCommit
	StepUnlock
	// StepClose is only ever performed as a remediation.
	StepClose
)

var stepNames = [...]string{"lock", "discard", "load", "validate", "commit", "unlock", "close"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// State is the position of a commit attempt in the protocol.
type State int

const (
	StateIdle State = iota
	StateLocked
	StateStaged
	StateValidated
	StateCommitted
	StateUnlocked
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "locked", "staged", "validated", "committed", "unlocked", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transaction is the remote side of a commit, one method per protocol step.
// Implementations report a device refusing an operation as KindRejected and
// a failure of the session or the rpc exchange as KindTransportRPC.
type Transaction interface {
	Lock() error
	Discard() error
	Load(payload string) error
	Validate() error
	Commit() error
	Unlock() error
	Close() error
}

// CommitAttempt records the progress of one transaction.
type CommitAttempt struct {
	ID     string
	Target string
	State  State
	// Step is the step in progress, or the step that failed.
	Step      Step
	Completed []Step
	Err       error
}

// rejections maps a step refused by the device onto the failure raised for it.
var rejections = map[Step]Kind{
	StepLock:     KindLockExhausted,
	StepDiscard:  KindConfigLoad,
	StepLoad:     KindConfigLoad,
	StepValidate: KindCommit,
	StepCommit:   KindCommit,
	StepUnlock:   KindUnlock,
}

// remediations defines the best-effort clean up performed for each raised failure, in order.
var remediations = map[Kind][]Step{
	KindLockExhausted: nil,
	KindConfigLoad:    {StepDiscard, StepUnlock, StepClose},
	KindCommit:        {StepDiscard, StepUnlock, StepClose},
	KindUnlock:        {StepDiscard, StepClose},
	KindTransportRPC:  {StepClose},
	KindUnexpected:    {StepDiscard, StepUnlock, StepClose},
}

// failureKind classifies the failure of step.
func failureKind(step Step, err error) Kind {
	switch KindOf(err) {
	case KindLockExhausted:
		return KindLockExhausted
	case KindTransportRPC, KindSessionClosed:
		return KindTransportRPC
	case KindRejected:
		if kind, ok := rejections[step]; ok {
			return kind
		}
	}
	return KindUnexpected
}

// CommitProtocol drives a Transaction through lock, discard, load, validate, commit and unlock.
type CommitProtocol struct {
	Retry  LockRetryPolicy
	Logger *zap.Logger
	Target string
}

// Run applies payload through tx. On failure the device is cleaned up according to the remediation
// table and the original failure is returned; failures of the clean up itself are only logged.
func (p *CommitProtocol) Run(ctx context.Context, tx Transaction, payload string) (*CommitAttempt, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trace := ContextTrace(ctx)
	attempt := &CommitAttempt{ID: uuid.NewString(), Target: p.Target, State: StateIdle}
	logger = logger.With(zap.String("attempt", attempt.ID), zap.String("target", p.Target))
	start := time.Now()

	retry := p.Retry
	userNotify := retry.Notify
	retry.Notify = func(n int, err error, wait time.Duration) {
		logger.Warn("lock attempt failed, retrying", zap.Int("attempt", n), zap.Error(err), zap.Duration("wait", wait))
		trace.LockRetry(p.Target, n, err, wait)
		if userNotify != nil {
			userNotify(n, err, wait)
		}
	}

	steps := []struct {
		step Step
		run  func() error
		next State
	}{
		{StepLock, func() error { return retry.Acquire(ctx, tx.Lock) }, StateLocked},
		{StepDiscard, tx.Discard, StateLocked},
		{StepLoad, func() error { return tx.Load(payload) }, StateStaged},
		{StepValidate, tx.Validate, StateValidated},
		{StepCommit, tx.Commit, StateCommitted},
		{StepUnlock, tx.Unlock, StateUnlocked},
	}

	for _, s := range steps {
		attempt.Step = s.step
		trace.StepStart(attempt, s.step)
		stepStart := time.Now()
		err := s.run()
		trace.StepDone(attempt, s.step, err, time.Since(stepStart))
		if err != nil {
			kind := failureKind(s.step, err)
			raised := NewError(kind, s.step.String(), p.Target, err)
			var exhausted *Error
			if kind == KindLockExhausted && errors.As(err, &exhausted) {
				raised = NewError(kind, s.step.String(), p.Target, exhausted.Err)
			}
			logger.Error("commit protocol step failed", zap.Stringer("step", s.step), zap.Stringer("kind", kind), zap.Error(err))
			p.remediate(tx, attempt, kind, trace, logger)
			attempt.State = StateFailed
			attempt.Err = raised
			trace.TransactionDone(attempt, raised, time.Since(start))
			return attempt, raised
		}
		attempt.Completed = append(attempt.Completed, s.step)
		attempt.State = s.next
		logger.Debug("commit protocol step done", zap.Stringer("step", s.step), zap.Stringer("state", attempt.State))
	}

	attempt.State = StateDone
	trace.TransactionDone(attempt, nil, time.Since(start))
	logger.Info("configuration committed", zap.Duration("took", time.Since(start)))
	return attempt, nil
}

func (p *CommitProtocol) remediate(tx Transaction, attempt *CommitAttempt, kind Kind, trace *Trace, logger *zap.Logger) {
	for _, step := range remediations[kind] {
		var err error
		switch step {
		case StepDiscard:
			err = tx.Discard()
		case StepUnlock:
			err = tx.Unlock()
		case StepClose:
			err = tx.Close()
		}
		trace.RemediationDone(attempt, step, err)
		if err != nil {
			logger.Warn("remediation failed", zap.Stringer("step", step), zap.Error(err))
		}
	}
}
