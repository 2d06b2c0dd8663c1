package credentials

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netpush/plugin"
)

const testKey = "1234567890123456789012345678901212345678901234567890123456789012"

func newTestCipher(t *testing.T) *Cipher {
	c, err := NewCipher(testKey)
	assert.NoError(t, err)
	return c
}

func TestCipher(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal("secret")
	assert.NoError(t, err)
	assert.NotEqual(t, "secret", sealed)
	assert.NotEmpty(t, sealed)

	opened, err := c.Open(sealed)
	assert.NoError(t, err)
	assert.Equal(t, "secret", opened)

	empty, err := c.Seal("")
	assert.NoError(t, err)
	assert.Empty(t, empty)
	empty, err = c.Open("")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSealEntry(t *testing.T) {
	c := newTestCipher(t)
	e := Entry{Equipment: "r1", Host: "10.0.0.1", Username: "admin", Secret: "secret", EnableSecret: "enable"}
	assert.NoError(t, c.SealEntry(&e))
	assert.NotEqual(t, "secret", e.Secret)
	assert.NotEqual(t, "enable", e.EnableSecret)

	cred, err := e.Credential(c)
	assert.NoError(t, err)
	assert.Equal(t, &plugin.Credential{
		Host:         "10.0.0.1",
		Username:     "admin",
		Secret:       "secret",
		EnableSecret: "enable",
		Kind:         plugin.AccessSSH,
	}, cred)
}

func TestStatic(t *testing.T) {
	s := NewStatic(nil,
		Entry{Equipment: "r1", Host: "10.0.0.1", Username: "admin", Secret: "ssh-secret"},
		Entry{Equipment: "r1", Kind: plugin.AccessNetconf, Host: "10.0.0.1", Username: "netconf", Secret: "nc-secret"},
	)
	s.Add(Entry{Equipment: "sw1", Kind: plugin.AccessTelnet, Host: "sw1.lab", Username: "ops", Secret: "telnet"})

	cred, err := s.Resolve(context.Background(), "r1", plugin.AccessSSH)
	assert.NoError(t, err)
	assert.Equal(t, "admin", cred.Username)
	assert.Equal(t, plugin.AccessSSH, cred.Kind)

	cred, err = s.Resolve(context.Background(), "r1", plugin.AccessNetconf)
	assert.NoError(t, err)
	assert.Equal(t, "netconf", cred.Username)

	cred, err = s.Resolve(context.Background(), "sw1", plugin.AccessTelnet)
	assert.NoError(t, err)
	assert.Equal(t, "sw1.lab", cred.Host)

	_, err = s.Resolve(context.Background(), "sw1", plugin.AccessSSH)
	assert.True(t, errors.Is(err, plugin.ErrCredentialNotFound))
}

func TestStaticSealed(t *testing.T) {
	c := newTestCipher(t)
	e := Entry{Equipment: "r1", Host: "10.0.0.1", Username: "admin", Secret: "secret"}
	assert.NoError(t, c.SealEntry(&e))

	cred, err := NewStatic(c, e).Resolve(context.Background(), "r1", plugin.AccessSSH)
	assert.NoError(t, err)
	assert.Equal(t, "secret", cred.Secret)
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		valid bool
	}{
		{name: "complete", entry: Entry{Equipment: "r1", Host: "10.0.0.1", Username: "admin"}, valid: true},
		{name: "hostname", entry: Entry{Equipment: "r1", Host: "r1.lab.example.com", Username: "admin"}, valid: true},
		{name: "no equipment", entry: Entry{Host: "10.0.0.1", Username: "admin"}},
		{name: "no host", entry: Entry{Equipment: "r1", Username: "admin"}},
		{name: "bad host", entry: Entry{Equipment: "r1", Host: "not a host", Username: "admin"}},
		{name: "no username", entry: Entry{Equipment: "r1", Host: "10.0.0.1"}},
		{name: "bad kind", entry: Entry{Equipment: "r1", Kind: "snmp", Host: "10.0.0.1", Username: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}
