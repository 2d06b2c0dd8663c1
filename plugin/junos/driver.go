package junos

import (
	"context"

	"github.com/damianoneill/netpush/plugin"
)

// CandidateDatastore is the datastore configuration is staged in.
const CandidateDatastore = "candidate"

// Driver is a NETCONF session to a Junos device.
// Implementations report a reply carrying rpc errors as plugin.KindRejected and any other failure of the exchange as
// plugin.KindTransportRPC.
type Driver interface {
	Lock(datastore string) error
	Unlock(datastore string) error
	// Discard reverts the candidate configuration to the running configuration.
	Discard() error
	Load(format, payload string) error
	// CommitCheck validates the candidate configuration without activating it.
	CommitCheck() error
	Commit() error
	// Command executes an operational command, returning its text output.
	Command(command string) (string, error)
	Close() error
	IsAlive() bool
}

// DriverFactory opens a Driver to the host of cred.
type DriverFactory func(ctx context.Context, cred *plugin.Credential, cfg *plugin.Config) (Driver, error)
