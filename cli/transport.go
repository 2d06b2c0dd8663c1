package cli

import (
	"context"
	"io"
	"net"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Transport is the byte stream of an interactive shell.
type Transport interface {
	io.WriteCloser
	io.Reader
}

// TransportConfig defines the pseudo terminal requested for the shell.
type TransportConfig struct {
	Term   string
	Width  int
	Height int
}

var DefaultTransportConfig = TransportConfig{
	Term:   "dumb",
	Width:  80,
	Height: 80,
}

type transportImpl struct {
	cfg     *TransportConfig
	client  *ssh.Client
	session *ssh.Session
	io.Reader
	io.WriteCloser
}

// NewSSHTransport dials target and starts a login shell on a new pty.
func NewSSHTransport(ctx context.Context, sshcfg *ssh.ClientConfig, cfg *TransportConfig, target string) (Transport, error) {
	resolvedConfig := *cfg
	_ = mergo.Merge(&resolvedConfig, DefaultTransportConfig)

	t := &transportImpl{cfg: &resolvedConfig}

	d := net.Dialer{Timeout: sshcfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, errors.Wrap(err, "dial failed")
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, target, sshcfg)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ssh handshake failed")
	}
	t.client = ssh.NewClient(c, chans, reqs)

	t.session, err = t.client.NewSession()
	if err != nil {
		_ = t.Close()
		return nil, errors.Wrap(err, "new ssh session failed")
	}

	t.Reader, _ = t.session.StdoutPipe()
	t.WriteCloser, _ = t.session.StdinPipe()

	terminalMode := ssh.TerminalModes{
		ssh.ECHO: 0,
	}
	err = t.session.RequestPty(resolvedConfig.Term, resolvedConfig.Height, resolvedConfig.Width, terminalMode)
	if err != nil {
		_ = t.Close()
		return nil, errors.Wrap(err, "request pty failed")
	}

	if err = t.session.Shell(); err != nil {
		_ = t.Close()
		return nil, errors.Wrap(err, "login shell failed")
	}

	return t, nil
}

func (t *transportImpl) Close() error {
	if t.WriteCloser != nil {
		_ = t.WriteCloser.Close()
	}
	if t.session != nil {
		_ = t.session.Close()
	}
	if t.client != nil {
		_ = t.client.Close()
	}
	return nil
}
