// Package shell implements the interactive equipment family: commands are typed into a device cli over ssh and
// judged by the text they print. There is no candidate datastore, so configuration is applied line by line.
package shell

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netpush/cli"
	"github.com/damianoneill/netpush/plugin"
)

// Family is the registry name of this family.
const Family = "shell"

// DefaultConfig holds the knobs that differ from plugin.DefaultConfig.
var DefaultConfig = plugin.Config{
	OperationTimeout: 30 * time.Second,
}

// Plugin drives a device through its interactive cli.
type Plugin struct {
	*plugin.Base
	shells  cli.SessionFactory
	session cli.Session
}

var _ plugin.Plugin = (*Plugin)(nil)

// New delivers a Plugin for equipment.
func New(equipment plugin.EquipmentID, opts ...plugin.Option) *Plugin {
	return NewWithFactory(equipment, cli.NewSessionFactory(nil), opts...)
}

// NewWithFactory delivers a Plugin that opens its sessions with shells.
func NewWithFactory(equipment plugin.EquipmentID, shells cli.SessionFactory, opts ...plugin.Option) *Plugin {
	return &Plugin{
		Base:   plugin.NewBase(Family, equipment, DefaultConfig, opts...),
		shells: shells,
	}
}

func (p *Plugin) Connect(ctx context.Context) error {
	if p.session != nil {
		return nil
	}
	cred, err := p.Credential(ctx)
	if err != nil {
		return err
	}

	trace := p.BindTrace(ctx)
	trace.ConnectStart(Family, cred.Host)
	start := time.Now()
	s, err := p.shells.NewSession(ctx, &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Secret)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
		Timeout:         p.Config.OperationTimeout,
	}, net.JoinHostPort(cred.Host, strconv.Itoa(p.Config.ConnectPort)),
		cli.WithPrompt(p.Config.PromptPattern),
		cli.WithResponseTimeout(p.Config.OperationTimeout))
	trace.ConnectDone(Family, cred.Host, err, time.Since(start))
	if err != nil {
		p.Logger.Error("connect failed", zap.String("host", cred.Host), zap.Int("port", p.Config.ConnectPort), zap.Error(err))
		return plugin.NewError(plugin.KindConnection, "connect", cred.Host, err)
	}
	p.session = s
	p.Logger.Info("connected", zap.String("host", cred.Host), zap.String("prompt", s.Prompt()))
	return nil
}

// Close releases the shell session. Failures are logged, never returned.
func (p *Plugin) Close() error {
	if p.session == nil {
		return nil
	}
	s := p.session
	p.session = nil
	if err := s.Close(); err != nil {
		p.Logger.Warn("close failed", zap.Error(err))
	}
	return nil
}

// ExecCommand types command and waits until the output matches one of patterns.
// With no success pattern the response ends at the next prompt.
func (p *Plugin) ExecCommand(command string, patterns plugin.Patterns) (string, error) {
	return p.exchange(command, command, patterns)
}

// WaitForPattern reads output without sending anything, until it matches one of patterns.
func (p *Plugin) WaitForPattern(patterns plugin.Patterns) (string, error) {
	return p.exchange("wait", "", patterns)
}

func (p *Plugin) exchange(op, command string, patterns plugin.Patterns) (string, error) {
	m, err := patterns.Compile()
	if err != nil {
		return "", plugin.NewError(plugin.KindUnexpected, op, p.Target(), err)
	}
	if p.session == nil {
		return "", plugin.SessionClosedError(op, p.Target())
	}

	var opts []cli.SendOption
	if patterns.Success != "" {
		opts = append(opts, cli.Expect(m.Terminal()))
	}
	start := time.Now()
	out, err := p.session.Send(command, opts...)
	complete := true
	switch {
	case errors.Is(err, cli.ErrResponseTimeout):
		complete = false
		p.Logger.Warn("response incomplete", zap.String("command", command), zap.Duration("took", time.Since(start)))
	case err != nil:
		p.Trace().CommandDone(Family, p.Target(), plugin.OutcomeAmbiguous, err, time.Since(start))
		kind := plugin.KindTransportRPC
		if errors.Is(err, cli.ErrSessionClosed) {
			kind = plugin.KindSessionClosed
		}
		return "", plugin.NewError(kind, op, p.Target(), err)
	}

	outcome := m.Classify(out)
	if !complete {
		outcome = m.ClassifyPartial(out)
	}
	out, err = plugin.OutcomeResult(outcome, op, p.Target(), out)
	p.Trace().CommandDone(Family, p.Target(), outcome, err, time.Since(start))
	p.Logger.Debug("command executed", zap.String("command", command), zap.Stringer("outcome", outcome),
		zap.Duration("took", time.Since(start)))
	return out, err
}

// EnsurePrivilegeLevel raises the session to the privileged mode of the device cli, recognised by a prompt ending
// in '#'. The level is not otherwise interpreted. Any failure closes the session.
func (p *Plugin) EnsurePrivilegeLevel(ctx context.Context, level string) error {
	if p.session == nil {
		return plugin.SessionClosedError("ensure privilege", p.Target())
	}
	if privileged(p.session.Prompt()) {
		return nil
	}
	err := p.enable(ctx)
	if err == nil && !privileged(p.session.Prompt()) {
		err = errors.Errorf("prompt %q is not privileged", p.session.Prompt())
	}
	if err != nil {
		p.Logger.Error("privilege verification failed", zap.String("level", level), zap.Error(err))
		_ = p.Close()
		return plugin.NewError(plugin.KindPrivilege, "ensure privilege", p.Target(), err)
	}
	p.Logger.Debug("privilege raised", zap.String("prompt", p.session.Prompt()))
	return nil
}

func (p *Plugin) enable(ctx context.Context) error {
	cred, err := p.Credential(ctx)
	if err != nil {
		return err
	}
	if cred.EnableSecret == "" {
		return errors.New("no enable secret")
	}
	if _, err = p.session.Send("enable", cli.WaitFor(`[Pp]assword:\s*$`)); err != nil {
		return errors.Wrap(err, "enable failed")
	}
	if _, err = p.session.Send(cred.EnableSecret, cli.ResetPrompt()); err != nil {
		return errors.Wrap(err, "enable secret failed")
	}
	return nil
}

func privileged(prompt string) bool {
	return strings.HasSuffix(strings.TrimSpace(prompt), "#")
}

// CopyConfigFromFile types each non-empty line of the file at path, stopping at the first line that fails.
// The session is closed if the file cannot be read.
func (p *Plugin) CopyConfigFromFile(ctx context.Context, path string) (string, error) {
	payload, err := p.ReadPayload(path)
	if err != nil {
		_ = p.Close()
		return "", err
	}
	if p.session == nil {
		return "", plugin.SessionClosedError("copy "+path, p.Target())
	}

	lines := 0
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		patterns := plugin.DefaultPatterns(regexp.QuoteMeta(strings.TrimSpace(p.session.Prompt())))
		if _, err = p.ExecCommand(line, patterns); err != nil {
			return "", err
		}
		lines++
	}
	p.Logger.Info("configuration applied", zap.String("file", path), zap.Int("lines", lines))
	return fmt.Sprintf("Configuration %s was executed successfully on %s", Family, p.Target()), nil
}

// PushConfiguration is not supported, a device cli has no candidate configuration to stage a payload in.
func (p *Plugin) PushConfiguration(ctx context.Context, payload string) (string, error) {
	return "", plugin.NewError(plugin.KindUnsupported, "push", p.Target(),
		errors.New("family has no candidate configuration"))
}
