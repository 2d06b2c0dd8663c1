package plugin

import (
	"context"
	"time"

	"github.com/imdario/mergo"
	"go.uber.org/zap"
)

// unique type to prevent assignment.
type traceContextKey struct{}

// ContextTrace returns the Trace associated with the provided context.
// Hooks that are not defined are filled in with no-op implementations.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(traceContextKey{}).(*Trace)
	if trace == nil {
		return NoOpTrace
	}
	return complete(trace)
}

func complete(trace *Trace) *Trace {
	merged := *trace
	_ = mergo.Merge(&merged, NoOpTrace)
	return &merged
}

// WithTrace returns a new context based on the provided parent ctx.
// Plugin operations made with the returned context will use the provided trace hooks.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// Trace defines a structure for handling plugin events.
type Trace struct {
	// ConnectStart is called when starting to open a session to an equipment.
	ConnectStart func(family, target string)

	// ConnectDone is called when the session attempt completes, with err indicating whether it was successful.
	ConnectDone func(family, target string, err error, d time.Duration)

	// LockRetry is called after a failed lock attempt that will be retried after wait.
	LockRetry func(target string, attempt int, err error, wait time.Duration)

	// StepStart is called before a commit protocol step is attempted.
	StepStart func(attempt *CommitAttempt, step Step)

	// StepDone is called after a commit protocol step completes.
	StepDone func(attempt *CommitAttempt, step Step, err error, d time.Duration)

	// RemediationDone is called after each remediation action, with err reporting its suppressed failure.
	RemediationDone func(attempt *CommitAttempt, step Step, err error)

	// TransactionDone is called when a commit protocol run completes.
	TransactionDone func(attempt *CommitAttempt, err error, d time.Duration)

	// CommandDone is called when a command has been executed and its output classified.
	CommandDone func(family, target string, outcome Outcome, err error, d time.Duration)
}

// NoOpTrace defines a set of hooks that do nothing.
var NoOpTrace = &Trace{
	ConnectStart:    func(family, target string) {},
	ConnectDone:     func(family, target string, err error, d time.Duration) {},
	LockRetry:       func(target string, attempt int, err error, wait time.Duration) {},
	StepStart:       func(attempt *CommitAttempt, step Step) {},
	StepDone:        func(attempt *CommitAttempt, step Step, err error, d time.Duration) {},
	RemediationDone: func(attempt *CommitAttempt, step Step, err error) {},
	TransactionDone: func(attempt *CommitAttempt, err error, d time.Duration) {},
	CommandDone:     func(family, target string, outcome Outcome, err error, d time.Duration) {},
}

// DiagnosticTrace delivers hooks that log every event at debug level.
func DiagnosticTrace(logger *zap.Logger) *Trace {
	return &Trace{
		ConnectStart: func(family, target string) {
			logger.Debug("connect start", zap.String("family", family), zap.String("target", target))
		},
		ConnectDone: func(family, target string, err error, d time.Duration) {
			logger.Debug("connect done", zap.String("family", family), zap.String("target", target),
				zap.Error(err), zap.Duration("took", d))
		},
		LockRetry: func(target string, attempt int, err error, wait time.Duration) {
			logger.Debug("lock retry", zap.String("target", target), zap.Int("attempt", attempt),
				zap.Error(err), zap.Duration("wait", wait))
		},
		StepStart: func(attempt *CommitAttempt, step Step) {
			logger.Debug("step start", zap.String("attempt", attempt.ID), zap.Stringer("step", step))
		},
		StepDone: func(attempt *CommitAttempt, step Step, err error, d time.Duration) {
			logger.Debug("step done", zap.String("attempt", attempt.ID), zap.Stringer("step", step),
				zap.Error(err), zap.Duration("took", d))
		},
		RemediationDone: func(attempt *CommitAttempt, step Step, err error) {
			logger.Debug("remediation done", zap.String("attempt", attempt.ID), zap.Stringer("step", step), zap.Error(err))
		},
		TransactionDone: func(attempt *CommitAttempt, err error, d time.Duration) {
			logger.Debug("transaction done", zap.String("attempt", attempt.ID), zap.Stringer("state", attempt.State),
				zap.Error(err), zap.Duration("took", d))
		},
		CommandDone: func(family, target string, outcome Outcome, err error, d time.Duration) {
			logger.Debug("command done", zap.String("family", family), zap.String("target", target),
				zap.Stringer("outcome", outcome), zap.Error(err), zap.Duration("took", d))
		},
	}
}

// Combine delivers hooks that call first and then second for every event.
// Hooks missing from either are treated as no-ops.
func Combine(first, second *Trace) *Trace {
	first, second = complete(first), complete(second)
	return &Trace{
		ConnectStart: func(family, target string) {
			first.ConnectStart(family, target)
			second.ConnectStart(family, target)
		},
		ConnectDone: func(family, target string, err error, d time.Duration) {
			first.ConnectDone(family, target, err, d)
			second.ConnectDone(family, target, err, d)
		},
		LockRetry: func(target string, attempt int, err error, wait time.Duration) {
			first.LockRetry(target, attempt, err, wait)
			second.LockRetry(target, attempt, err, wait)
		},
		StepStart: func(attempt *CommitAttempt, step Step) {
			first.StepStart(attempt, step)
			second.StepStart(attempt, step)
		},
		StepDone: func(attempt *CommitAttempt, step Step, err error, d time.Duration) {
			first.StepDone(attempt, step, err, d)
			second.StepDone(attempt, step, err, d)
		},
		RemediationDone: func(attempt *CommitAttempt, step Step, err error) {
			first.RemediationDone(attempt, step, err)
			second.RemediationDone(attempt, step, err)
		},
		TransactionDone: func(attempt *CommitAttempt, err error, d time.Duration) {
			first.TransactionDone(attempt, err, d)
			second.TransactionDone(attempt, err, d)
		},
		CommandDone: func(family, target string, outcome Outcome, err error, d time.Duration) {
			first.CommandDone(family, target, outcome, err, d)
			second.CommandDone(family, target, outcome, err, d)
		},
	}
}
