package testutil

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"strings"
	"sync"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Defines credentials used for test sessions.
const (
	TestUserName = "testUser"
	TestPassword = "testPassword"
)

// SSHHandler services a single accepted ssh channel.
type SSHHandler interface {
	Handle(t assert.TestingT, ch ssh.Channel)
}

// HandlerFactory delivers the handler for a new channel.
type HandlerFactory func(t assert.TestingT) SSHHandler

// ServerOption configures the behaviour of the test server.
type ServerOption func(*serverConfig)

// RequestTypes defines the channel request types that the server will accept, all others are rejected.
// The handler is started once a "shell", "subsystem" or "exec" request has been accepted.
func RequestTypes(types []string) ServerOption {
	return func(c *serverConfig) {
		c.requestTypes = types
	}
}

type serverConfig struct {
	requestTypes []string
}

var defaultServerConfig = serverConfig{requestTypes: []string{"pty-req", "shell", "subsystem", "exec"}}

// SSHServer represents a test SSH Server
type SSHServer struct {
	listener net.Listener
}

// NewSSHServer delivers a new test SSH Server, with a handler that echoes each line it receives prefixed by "GOT:".
// The server implements password authentication with the given credentials.
func NewSSHServer(t assert.TestingT, uname, password string) *SSHServer {
	return NewSSHServerHandler(t, uname, password, func(t assert.TestingT) SSHHandler { return &echoHandler{} })
}

// NewSSHServerHandler delivers a new test SSH Server, with channels serviced by handlers delivered by factory.
func NewSSHServerHandler(t assert.TestingT, uname, password string, factory HandlerFactory, opts ...ServerOption) *SSHServer {
	cfg := defaultServerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	listener, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err, "Listen failed")

	go acceptConnections(t, listener, newSSHServerConfig(t, uname, password), factory, &cfg)

	return &SSHServer{listener: listener}
}

// Port delivers the tcp port number on which the server is listening.
func (ts *SSHServer) Port() int {
	return ts.listener.Addr().(*net.TCPAddr).Port
}

// Address delivers the host:port on which the server is listening.
func (ts *SSHServer) Address() string {
	return fmt.Sprintf("localhost:%d", ts.Port())
}

// Close closes any resources used by the server.
func (ts *SSHServer) Close() {
	// nolint: gosec, errcheck
	ts.listener.Close()
}

func acceptConnections(t assert.TestingT, listener net.Listener, config *ssh.ServerConfig, factory HandlerFactory, cfg *serverConfig) {
	for {
		nConn, err := listener.Accept()
		if err != nil {
			return
		}
		go serveConnection(t, nConn, config, factory, cfg)
	}
}

func serveConnection(t assert.TestingT, nConn net.Conn, config *ssh.ServerConfig, factory HandlerFactory, cfg *serverConfig) {
	_, chch, reqch, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}

	go ssh.DiscardRequests(reqch)

	for newChannel := range chch {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChannel.Accept()
		if err != nil {
			return
		}

		handler := factory(t)
		go func(in <-chan *ssh.Request) {
			started := false
			for req := range in {
				ok := cfg.accepts(req.Type)
				if req.WantReply {
					_ = req.Reply(ok, nil)
				}
				if ok && !started && isStartRequest(req.Type) {
					started = true
					go func() {
						defer ch.Close() // nolint: errcheck
						handler.Handle(t, ch)
					}()
				}
			}
		}(requests)
	}
}

func (c *serverConfig) accepts(reqType string) bool {
	for _, rt := range c.requestTypes {
		if rt == reqType {
			return true
		}
	}
	return false
}

func isStartRequest(reqType string) bool {
	return reqType == "shell" || reqType == "subsystem" || reqType == "exec"
}

type echoHandler struct{}

func (h *echoHandler) Handle(t assert.TestingT, ch ssh.Channel) {
	chReader := bufio.NewReader(ch)
	chWriter := bufio.NewWriter(ch)
	for {
		input, err := chReader.ReadString('\n')
		if err != nil {
			return
		}
		if _, err = chWriter.WriteString(fmt.Sprintf("GOT:%s", input)); err != nil {
			return
		}
		_ = chWriter.Flush()
	}
}

func newSSHServerConfig(t assert.TestingT, uname, password string) *ssh.ServerConfig {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == uname && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}

	config.AddHostKey(generateHostKey(t))
	return config
}

var (
	hostKeyOnce sync.Once
	hostKey     ssh.Signer
	hostKeyErr  error
)

// generateHostKey delivers an RSA host key, generated once per test binary.
func generateHostKey(t assert.TestingT) ssh.Signer {
	hostKeyOnce.Do(func() {
		var key *rsa.PrivateKey
		key, hostKeyErr = rsa.GenerateKey(rand.Reader, 2048)
		if hostKeyErr != nil {
			return
		}
		hostKey, hostKeyErr = ssh.ParsePrivateKey(encodePrivateKeyToPEM(key))
	})
	assert.NoError(t, hostKeyErr, "Failed to generate host key")
	return hostKey
}

func encodePrivateKeyToPEM(privateKey *rsa.PrivateKey) []byte {
	privBlock := pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	return pem.EncodeToMemory(&privBlock)
}

// ClientAddress splits a test server address into the host and port used by plugin credentials.
func ClientAddress(ts *SSHServer) (host string, port int) {
	addr := ts.listener.Addr().(*net.TCPAddr)
	return strings.Split(ts.Address(), ":")[0], addr.Port
}
