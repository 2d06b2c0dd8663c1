package junos

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/damianoneill/netpush/cli"
	"github.com/damianoneill/netpush/plugin"
)

// AuthorizationCommand reports the login class of the session user from a device shell.
const AuthorizationCommand = `cli -c "show cli authorization"`

// ShellPrompt matches the prompt of a Junos device shell.
const ShellPrompt = `(%|#|\$)\s*$`

// EnsurePrivilegeLevel checks the login class of the session user through a secondary shell session.
// An empty level requires SuperUser. Any failure closes the NETCONF session.
func (p *Plugin) EnsurePrivilegeLevel(ctx context.Context, level string) error {
	if level == "" {
		level = SuperUser
	}
	class, err := p.userClass(ctx)
	if err == nil && class != level {
		err = errors.Errorf("user class %q does not match required %q", class, level)
	}
	if err != nil {
		p.Logger.Error("privilege verification failed", zap.String("level", level), zap.Error(err))
		_ = p.Close()
		return plugin.NewError(plugin.KindPrivilege, "ensure privilege", p.Target(), err)
	}
	p.Logger.Debug("privilege verified", zap.String("level", level))
	return nil
}

func (p *Plugin) userClass(ctx context.Context) (string, error) {
	cred, err := p.Credential(ctx)
	if err != nil {
		return "", err
	}
	timeout := p.Config.PrivilegeCheckTimeout
	shell, err := p.shells.NewSession(ctx, p.sshConfig(cred, timeout), p.shellAddress(cred),
		cli.WithPrompt(ShellPrompt), cli.WithResponseTimeout(timeout))
	if err != nil {
		return "", errors.Wrap(err, "failed to open shell")
	}
	defer shell.Close()

	// The partial output of a timed out command is still parsed.
	out, err := shell.Send(AuthorizationCommand)
	if err != nil && !errors.Is(err, cli.ErrResponseTimeout) {
		return "", errors.Wrap(err, "failed to run authorization command")
	}
	return ParseUserClass(out)
}

// ParseUserClass extracts the login class from the output of AuthorizationCommand.
// The class is the second quoted value of the line following the echoed command, e.g.
//
//	Current user: 'admin       ' class 'super-user'
func ParseUserClass(output string) (string, error) {
	lines := strings.Split(output, "\n")
	if len(lines) < 2 {
		return "", errors.New("authorization output too short")
	}
	segments := strings.Split(lines[1], "'")
	if len(segments) < 4 {
		return "", errors.Errorf("unexpected authorization output %q", lines[1])
	}
	return segments[3], nil
}
