// Package plugin defines the capability surface shared by every equipment family, together with the family-agnostic
// machinery used to implement it: output classification, lock retry and the transactional commit protocol.
package plugin

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Plugin drives configuration changes and commands on a single piece of equipment, over at most one open session.
// A Plugin is not safe for concurrent use.
type Plugin interface {
	// Connect resolves the equipment credential and opens the session.
	Connect(ctx context.Context) error
	// Close releases the session, if any. It is safe to call more than once.
	Close() error
	// ExecCommand sends a single command and classifies its output using patterns.
	ExecCommand(command string, patterns Patterns) (string, error)
	// CopyConfigFromFile applies the content of the file at path, as PushConfiguration would.
	CopyConfigFromFile(ctx context.Context, path string) (string, error)
	// EnsurePrivilegeLevel fails, closing the session, unless the session user holds level.
	EnsurePrivilegeLevel(ctx context.Context, level string) error
	// PushConfiguration applies payload and returns a human readable result message.
	PushConfiguration(ctx context.Context, payload string) (string, error)
}

// EquipmentID is the caller's handle for a piece of equipment.
type EquipmentID string

// AccessKind identifies the access method a credential is for.
type AccessKind string

const (
	AccessSSH     AccessKind = "ssh"
	AccessNetconf AccessKind = "netconf"
	AccessTelnet  AccessKind = "telnet"
)

// Credential holds what is needed to open a session to an equipment.
type Credential struct {
	Host     string
	Username string
	Secret   string
	// EnableSecret raises the privilege of an interactive session, where the family supports it.
	EnableSecret string
	Kind         AccessKind
}

// ErrCredentialNotFound is returned by a CredentialResolver with no credential for the request.
var ErrCredentialNotFound = errors.New("access credential not found")

// CredentialResolver looks up the credential used to access an equipment.
type CredentialResolver interface {
	Resolve(ctx context.Context, equipment EquipmentID, kind AccessKind) (*Credential, error)
}

// Config defines the knobs common to all families.
// Zero values are replaced by the family defaults.
type Config struct {
	// LockMaxAttempts is the number of attempts made to lock the candidate configuration.
	LockMaxAttempts int
	// LockRetryWait is the pause between lock attempts.
	LockRetryWait time.Duration
	// ConnectPort is the port of the primary session.
	ConnectPort int
	// ShellPort is the port of secondary interactive sessions.
	ShellPort int
	// PrivilegeCheckTimeout bounds the wait for the privilege check response.
	PrivilegeCheckTimeout time.Duration
	// OperationTimeout bounds the wait for any single remote operation.
	OperationTimeout time.Duration
	// LoadFormat is the format of pushed configuration payloads, where the family supports several.
	LoadFormat string
	// PromptPattern matches the cli prompt of interactive sessions.
	PromptPattern string
}

var DefaultConfig = Config{
	LockMaxAttempts:       3,
	LockRetryWait:         10 * time.Second,
	ConnectPort:           22,
	ShellPort:             22,
	PrivilegeCheckTimeout: 2 * time.Second,
	OperationTimeout:      10 * time.Minute,
	LoadFormat:            "set",
	PromptPattern:         `[>#$%]\s*$`,
}
