// Package junos implements the transactional equipment family: configuration is staged in the candidate datastore of
// a Junos device over NETCONF and committed under an exclusive lock.
package junos

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netpush/cli"
	"github.com/damianoneill/netpush/plugin"
)

// Family is the registry name of this family.
const Family = "junos"

// SuperUser is the login class required to push configuration.
const SuperUser = "super-user"

// DefaultConfig holds the knobs that differ from plugin.DefaultConfig.
var DefaultConfig = plugin.Config{
	ConnectPort: 830,
}

// Plugin drives a Junos device.
type Plugin struct {
	*plugin.Base
	newDriver DriverFactory
	shells    cli.SessionFactory
	driver    Driver
}

var _ plugin.Plugin = (*Plugin)(nil)

// New delivers a Plugin for equipment that uses scrapligo for NETCONF and an ssh shell for privilege checks.
func New(equipment plugin.EquipmentID, opts ...plugin.Option) *Plugin {
	return NewWithFactories(equipment, NewScrapligoDriver, cli.NewSessionFactory(nil), opts...)
}

// NewWithFactories delivers a Plugin that opens its sessions with the supplied factories.
func NewWithFactories(equipment plugin.EquipmentID, drivers DriverFactory, shells cli.SessionFactory,
	opts ...plugin.Option,
) *Plugin {
	return &Plugin{
		Base:      plugin.NewBase(Family, equipment, DefaultConfig, opts...),
		newDriver: drivers,
		shells:    shells,
	}
}

func (p *Plugin) Connect(ctx context.Context) error {
	if p.driver != nil && p.driver.IsAlive() {
		return nil
	}
	cred, err := p.Credential(ctx)
	if err != nil {
		return err
	}

	trace := p.BindTrace(ctx)
	trace.ConnectStart(Family, cred.Host)
	start := time.Now()
	d, err := p.newDriver(ctx, cred, &p.Config)
	trace.ConnectDone(Family, cred.Host, err, time.Since(start))
	if err != nil {
		p.Logger.Error("connect failed", zap.String("host", cred.Host), zap.Int("port", p.Config.ConnectPort), zap.Error(err))
		return plugin.NewError(plugin.KindConnection, "connect", cred.Host, err)
	}
	p.driver = d
	p.Logger.Info("connected", zap.String("host", cred.Host), zap.Int("port", p.Config.ConnectPort))
	return nil
}

// Close releases the NETCONF session. Failures are logged, never returned.
func (p *Plugin) Close() error {
	if p.driver == nil {
		return nil
	}
	d := p.driver
	p.driver = nil
	if err := d.Close(); err != nil {
		p.Logger.Warn("close failed", zap.Error(err))
		return nil
	}
	p.Logger.Info("session closed")
	return nil
}

// ExecCommand runs an operational command and classifies its text output.
func (p *Plugin) ExecCommand(command string, patterns plugin.Patterns) (string, error) {
	m, err := patterns.Compile()
	if err != nil {
		return "", plugin.NewError(plugin.KindUnexpected, command, p.Target(), err)
	}
	if p.driver == nil {
		return "", plugin.SessionClosedError(command, p.Target())
	}
	start := time.Now()
	out, err := p.driver.Command(command)
	if err != nil && !plugin.IsKind(err, plugin.KindRejected) {
		p.Trace().CommandDone(Family, p.Target(), plugin.OutcomeAmbiguous, err, time.Since(start))
		return "", err
	}
	var outcome plugin.Outcome
	if err != nil {
		out, outcome = rejection(err), rejectedOutcome(m, rejection(err))
	} else {
		outcome = m.Classify(out)
	}
	out, err = plugin.OutcomeResult(outcome, command, p.Target(), out)
	p.Trace().CommandDone(Family, p.Target(), outcome, err, time.Since(start))
	p.Logger.Debug("command executed", zap.String("command", command), zap.Stringer("outcome", outcome),
		zap.Duration("took", time.Since(start)))
	return out, err
}

// rejection delivers the rpc-error text of a rejected command.
func rejection(err error) string {
	var pe *plugin.Error
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

// rejectedOutcome classifies the rpc-error text of a rejected command, which is never a success.
func rejectedOutcome(m *plugin.Matcher, text string) plugin.Outcome {
	if outcome := m.Classify(text); outcome == plugin.OutcomeInvalid {
		return outcome
	}
	return plugin.OutcomeError
}

// CopyConfigFromFile pushes the content of the file at path. The session is closed if the file cannot be read.
func (p *Plugin) CopyConfigFromFile(ctx context.Context, path string) (string, error) {
	payload, err := p.ReadPayload(path)
	if err != nil {
		_ = p.Close()
		return "", err
	}
	return p.PushConfiguration(ctx, payload)
}

// PushConfiguration stages payload in the candidate configuration and commits it.
func (p *Plugin) PushConfiguration(ctx context.Context, payload string) (string, error) {
	if p.driver == nil {
		return "", plugin.SessionClosedError("push", p.Target())
	}
	protocol := p.CommitProtocol()
	attempt, err := protocol.Run(ctx, &transaction{p: p, format: p.Config.LoadFormat}, payload)
	if err != nil {
		return "", err
	}
	p.Logger.Info("configuration pushed", zap.String("attempt", attempt.ID))
	return fmt.Sprintf("Configuration junos was executed successfully on %s", p.Target()), nil
}

func (p *Plugin) sshConfig(cred *plugin.Credential, timeout time.Duration) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Secret)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
		Timeout:         timeout,
	}
}

func (p *Plugin) shellAddress(cred *plugin.Credential) string {
	return net.JoinHostPort(cred.Host, strconv.Itoa(p.Config.ShellPort))
}

// transaction adapts the session to the commit protocol.
type transaction struct {
	p      *Plugin
	format string
}

func (t *transaction) session(op string) (Driver, error) {
	if t.p.driver == nil {
		return nil, plugin.SessionClosedError(op, t.p.Target())
	}
	return t.p.driver, nil
}

func (t *transaction) Lock() error {
	d, err := t.session("lock")
	if err != nil {
		return err
	}
	return d.Lock(CandidateDatastore)
}

func (t *transaction) Discard() error {
	d, err := t.session("discard")
	if err != nil {
		return err
	}
	return d.Discard()
}

func (t *transaction) Load(payload string) error {
	d, err := t.session("load")
	if err != nil {
		return err
	}
	return d.Load(t.format, payload)
}

func (t *transaction) Validate() error {
	d, err := t.session("validate")
	if err != nil {
		return err
	}
	return d.CommitCheck()
}

func (t *transaction) Commit() error {
	d, err := t.session("commit")
	if err != nil {
		return err
	}
	return d.Commit()
}

func (t *transaction) Unlock() error {
	d, err := t.session("unlock")
	if err != nil {
		return err
	}
	return d.Unlock(CandidateDatastore)
}

func (t *transaction) Close() error {
	return t.p.Close()
}
