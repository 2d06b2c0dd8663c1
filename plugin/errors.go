package plugin

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failures raised by plugins.
type Kind int

const (
	// KindUnexpected is any failure that could not be classified.
	KindUnexpected Kind = iota
	KindConnection
	KindCredentialsNotFound
	KindLockExhausted
	KindConfigLoad
	KindCommit
	KindUnlock
	KindTransportRPC
	KindPrivilege
	KindInvalidCommand
	KindCommandError
	KindAmbiguousOutput
	KindFileNotFound
	KindIO
	KindSessionClosed
	// KindRejected marks a device that answered an operation with an error.
	// The commit protocol maps it onto the failure kind of the step that was rejected.
	KindRejected
	KindUnsupported
)

var kindNames = map[Kind]string{
	KindUnexpected:          "UnexpectedFailure",
	KindConnection:          "ConnectionError",
	KindCredentialsNotFound: "AccessCredentialsNotFound",
	KindLockExhausted:       "LockAcquisitionExhausted",
	KindConfigLoad:          "ConfigLoadFailure",
	KindCommit:              "CommitFailure",
	KindUnlock:              "UnlockFailure",
	KindTransportRPC:        "TransportRpcFailure",
	KindPrivilege:           "PrivilegeVerificationFailure",
	KindInvalidCommand:      "InvalidCommandResult",
	KindCommandError:        "CommandErrorResult",
	KindAmbiguousOutput:     "AmbiguousOutput",
	KindFileNotFound:        "FileNotFound",
	KindIO:                  "IOFailure",
	KindSessionClosed:       "SessionClosed",
	KindRejected:            "Rejected",
	KindUnsupported:         "Unsupported",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the error type returned by plugin operations.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "commit".
	Op string
	// Target identifies the equipment, typically its host.
	Target string
	// Output carries the sanitised device output for command results.
	Output string
	Err    error
}

// NewError delivers an Error of the given kind wrapping err, which may be nil.
func NewError(kind Kind, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Target != "" {
		msg += " on " + e.Target
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += fmt.Sprintf(" [%s]", e.Output)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause supports github.com/pkg/errors.Cause.
func (e *Error) Cause() error {
	return e.Err
}

// KindOf delivers the kind of the outermost plugin Error in the chain of err.
// Errors that carry no kind are KindUnexpected.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrSessionClosed is wrapped by operations attempted without an open session.
var ErrSessionClosed = errors.New("session is not open")

// SessionClosedError delivers the error returned by operations attempted without an open session.
func SessionClosedError(op, target string) error {
	return NewError(KindSessionClosed, op, target, ErrSessionClosed)
}
