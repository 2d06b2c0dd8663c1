package junos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netpush/cli"
	"github.com/damianoneill/netpush/plugin"
)

type mockDriver struct {
	mock.Mock
	closed bool
}

func (m *mockDriver) Lock(datastore string) error   { return m.Called(datastore).Error(0) }
func (m *mockDriver) Unlock(datastore string) error { return m.Called(datastore).Error(0) }
func (m *mockDriver) Discard() error                { return m.Called().Error(0) }
func (m *mockDriver) Load(format, payload string) error {
	return m.Called(format, payload).Error(0)
}
func (m *mockDriver) CommitCheck() error { return m.Called().Error(0) }
func (m *mockDriver) Commit() error      { return m.Called().Error(0) }
func (m *mockDriver) Command(command string) (string, error) {
	args := m.Called(command)
	return args.String(0), args.Error(1)
}

func (m *mockDriver) Close() error {
	m.closed = true
	return m.Called().Error(0)
}

func (m *mockDriver) IsAlive() bool {
	return !m.closed
}

func (m *mockDriver) methods() []string {
	var names []string
	for _, c := range m.Calls {
		names = append(names, c.Method)
	}
	return names
}

// newMockDriver delivers a driver whose methods succeed unless a failure is supplied.
func newMockDriver(failures map[string]error) *mockDriver {
	m := &mockDriver{}
	m.On("Lock", CandidateDatastore).Return(failures["Lock"])
	m.On("Unlock", CandidateDatastore).Return(failures["Unlock"])
	m.On("Discard").Return(failures["Discard"])
	m.On("Load", mock.Anything, mock.Anything).Return(failures["Load"])
	m.On("CommitCheck").Return(failures["CommitCheck"])
	m.On("Commit").Return(failures["Commit"])
	m.On("Close").Return(failures["Close"])
	return m
}

var testCredential = &plugin.Credential{Host: "10.0.0.1", Username: "admin", Secret: "secret"}

func newTestPlugin(d Driver, opts ...plugin.Option) (*Plugin, *[]*plugin.Config) {
	var configs []*plugin.Config
	factory := func(ctx context.Context, cred *plugin.Credential, cfg *plugin.Config) (Driver, error) {
		configs = append(configs, cfg)
		return d, nil
	}
	opts = append([]plugin.Option{
		plugin.WithCredential(testCredential),
		plugin.WithConfig(plugin.Config{LockRetryWait: time.Millisecond}),
	}, opts...)
	return NewWithFactories("r1", factory, cli.NewSessionFactory(nil), opts...), &configs
}

func connected(t *testing.T, d Driver, opts ...plugin.Option) *Plugin {
	p, _ := newTestPlugin(d, opts...)
	assert.NoError(t, p.Connect(context.Background()))
	return p
}

func TestConnect(t *testing.T) {
	d := newMockDriver(nil)
	p, configs := newTestPlugin(d)

	assert.NoError(t, p.Connect(context.Background()))
	assert.NoError(t, p.Connect(context.Background()), "connect with an open session reuses it")
	assert.Len(t, *configs, 1)
	assert.Equal(t, 830, (*configs)[0].ConnectPort)
	assert.Equal(t, 3, (*configs)[0].LockMaxAttempts)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	d.AssertNumberOfCalls(t, "Close", 1)
}

func TestConnectFailure(t *testing.T) {
	factory := func(ctx context.Context, cred *plugin.Credential, cfg *plugin.Config) (Driver, error) {
		return nil, errors.New("connection refused")
	}
	p := NewWithFactories("r1", factory, cli.NewSessionFactory(nil), plugin.WithCredential(testCredential))

	err := p.Connect(context.Background())
	assert.True(t, plugin.IsKind(err, plugin.KindConnection))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConnectWithoutCredential(t *testing.T) {
	called := false
	factory := func(ctx context.Context, cred *plugin.Credential, cfg *plugin.Config) (Driver, error) {
		called = true
		return nil, nil
	}
	p := NewWithFactories("r1", factory, cli.NewSessionFactory(nil))

	err := p.Connect(context.Background())
	assert.True(t, plugin.IsKind(err, plugin.KindCredentialsNotFound))
	assert.False(t, called)
}

func TestExecCommand(t *testing.T) {
	d := newMockDriver(nil)
	d.On("Command", "show version").Return("Junos: 18.1R1", nil)
	d.On("Command", "show bogus").Return("syntax error, expecting <command>: invalid", nil)
	d.On("Command", "show chassis").Return("", plugin.NewError(plugin.KindTransportRPC, "command", "10.0.0.1", errors.New("eof")))
	d.On("Command", "bogus").Return("", plugin.NewError(plugin.KindRejected, "command", "10.0.0.1",
		errors.New("syntax error, expecting <command>: bogus")))
	d.On("Command", "show route table bogus").Return("", plugin.NewError(plugin.KindRejected, "command", "10.0.0.1",
		errors.New("invalid routing table name")))
	p := connected(t, d)

	out, err := p.ExecCommand("show version", plugin.Patterns{Success: "Junos:"})
	assert.NoError(t, err)
	assert.Equal(t, "Junos: 18.1R1", out)

	_, err = p.ExecCommand("show bogus", plugin.Patterns{Success: "Junos:"})
	assert.True(t, plugin.IsKind(err, plugin.KindInvalidCommand))

	_, err = p.ExecCommand("show chassis", plugin.Patterns{})
	assert.True(t, plugin.IsKind(err, plugin.KindTransportRPC))

	out, err = p.ExecCommand("bogus", plugin.Patterns{})
	assert.True(t, plugin.IsKind(err, plugin.KindCommandError), "a rejected command is never a success")
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, "syntax error, expecting <command>: bogus", out)

	_, err = p.ExecCommand("show route table bogus", plugin.Patterns{Success: "inet.0"})
	assert.True(t, plugin.IsKind(err, plugin.KindInvalidCommand))

	_, err = p.ExecCommand("show version", plugin.Patterns{Success: "("})
	assert.True(t, plugin.IsKind(err, plugin.KindUnexpected))
}

func TestExecCommandWithoutSession(t *testing.T) {
	p, _ := newTestPlugin(newMockDriver(nil))

	_, err := p.ExecCommand("show version", plugin.Patterns{})
	assert.True(t, plugin.IsKind(err, plugin.KindSessionClosed))
}

func TestPushConfiguration(t *testing.T) {
	d := newMockDriver(nil)
	p := connected(t, d)

	msg, err := p.PushConfiguration(context.Background(), "set system host-name r1")
	assert.NoError(t, err)
	assert.Equal(t, "Configuration junos was executed successfully on 10.0.0.1", msg)
	assert.Equal(t, []string{"Lock", "Discard", "Load", "CommitCheck", "Commit", "Unlock"}, d.methods())
	d.AssertCalled(t, "Load", FormatSet, "set system host-name r1")
}

func TestPushConfigurationTextFormat(t *testing.T) {
	d := newMockDriver(nil)
	p := connected(t, d, plugin.WithConfig(plugin.Config{LoadFormat: FormatText}))

	_, err := p.PushConfiguration(context.Background(), "system { host-name r1; }")
	assert.NoError(t, err)
	d.AssertCalled(t, "Load", FormatText, "system { host-name r1; }")
}

func TestPushConfigurationLoadRejected(t *testing.T) {
	d := newMockDriver(map[string]error{
		"Load": plugin.NewError(plugin.KindRejected, "load-configuration", "10.0.0.1", errors.New("syntax error")),
	})
	p := connected(t, d)

	_, err := p.PushConfiguration(context.Background(), "set bogus")
	assert.True(t, plugin.IsKind(err, plugin.KindConfigLoad))
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, []string{"Lock", "Discard", "Load", "Discard", "Unlock", "Close"}, d.methods())

	_, err = p.ExecCommand("show version", plugin.Patterns{})
	assert.True(t, plugin.IsKind(err, plugin.KindSessionClosed), "session is closed by remediation")
}

func TestPushConfigurationCommitRejected(t *testing.T) {
	d := newMockDriver(map[string]error{
		"CommitCheck": plugin.NewError(plugin.KindRejected, "commit-check", "10.0.0.1", errors.New("mandatory statement missing")),
	})
	p := connected(t, d)

	_, err := p.PushConfiguration(context.Background(), "set interfaces ge-0/0/0 unit 0")
	assert.True(t, plugin.IsKind(err, plugin.KindCommit))
	assert.Equal(t, []string{"Lock", "Discard", "Load", "CommitCheck", "Discard", "Unlock", "Close"}, d.methods())
}

func TestPushConfigurationLockExhausted(t *testing.T) {
	d := newMockDriver(map[string]error{
		"Lock": plugin.NewError(plugin.KindRejected, "lock", "10.0.0.1", errors.New("configuration database locked")),
	})
	p := connected(t, d)

	_, err := p.PushConfiguration(context.Background(), "set system host-name r1")
	assert.True(t, plugin.IsKind(err, plugin.KindLockExhausted))
	assert.Equal(t, []string{"Lock", "Lock", "Lock"}, d.methods())
	assert.True(t, d.IsAlive(), "no remediation after lock exhaustion")
}

func TestPushConfigurationWithoutSession(t *testing.T) {
	p, _ := newTestPlugin(newMockDriver(nil))

	_, err := p.PushConfiguration(context.Background(), "set system host-name r1")
	assert.True(t, plugin.IsKind(err, plugin.KindSessionClosed))
}

func TestCopyConfigFromFile(t *testing.T) {
	files := afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(files, "/cfg/r1.set", []byte("set system host-name r1\n"), 0o644))
	d := newMockDriver(nil)
	p := connected(t, d, plugin.WithFs(files))

	msg, err := p.CopyConfigFromFile(context.Background(), "/cfg/r1.set")
	assert.NoError(t, err)
	assert.Contains(t, msg, "executed successfully")
	d.AssertCalled(t, "Load", FormatSet, "set system host-name r1\n")
}

func TestCopyConfigFromMissingFile(t *testing.T) {
	d := newMockDriver(nil)
	p := connected(t, d, plugin.WithFs(afero.NewMemMapFs()))

	_, err := p.CopyConfigFromFile(context.Background(), "/cfg/missing.set")
	assert.True(t, plugin.IsKind(err, plugin.KindFileNotFound))
	assert.Equal(t, []string{"Close"}, d.methods())
}

func TestExecCommandTrace(t *testing.T) {
	var outcomes []plugin.Outcome
	ctx := plugin.WithTrace(context.Background(), &plugin.Trace{
		CommandDone: func(family, target string, outcome plugin.Outcome, err error, d time.Duration) {
			outcomes = append(outcomes, outcome)
		},
	})
	d := newMockDriver(nil)
	d.On("Command", "show version").Return("Junos: 18.1R1", nil)
	p, _ := newTestPlugin(d)
	assert.NoError(t, p.Connect(ctx))

	_, err := p.ExecCommand("show version", plugin.Patterns{Success: "Junos:"})
	assert.NoError(t, err)
	assert.Equal(t, []plugin.Outcome{plugin.OutcomeSuccess}, outcomes)
}
