package filestore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netpush/credentials"
	"github.com/damianoneill/netpush/plugin"
)

const inventory = `
credentials:
  - equipment: r1
    host: 10.0.0.1
    username: admin
    secret: secret
  - equipment: r1
    kind: netconf
    host: 10.0.0.1
    username: automation
    secret: nc-secret
  - equipment: sw1
    host: sw1.lab
    username: ops
    secret: ops-secret
    enableSecret: enable
`

func TestResolve(t *testing.T) {
	files := afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(files, "/etc/netpush/inventory.yaml", []byte(inventory), 0o600))
	store := New(files, "/etc/netpush/inventory.yaml", nil)

	cred, err := store.Resolve(context.Background(), "r1", plugin.AccessSSH)
	assert.NoError(t, err)
	assert.Equal(t, &plugin.Credential{Host: "10.0.0.1", Username: "admin", Secret: "secret", Kind: plugin.AccessSSH}, cred)

	cred, err = store.Resolve(context.Background(), "r1", plugin.AccessNetconf)
	assert.NoError(t, err)
	assert.Equal(t, "automation", cred.Username)

	cred, err = store.Resolve(context.Background(), "sw1", plugin.AccessSSH)
	assert.NoError(t, err)
	assert.Equal(t, "enable", cred.EnableSecret)

	_, err = store.Resolve(context.Background(), "sw2", plugin.AccessSSH)
	assert.True(t, errors.Is(err, plugin.ErrCredentialNotFound))
	assert.Len(t, store.Entries(), 3)
}

func TestLoadFailures(t *testing.T) {
	files := afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(files, "/empty.yaml", nil, 0o600))
	assert.NoError(t, afero.WriteFile(files, "/broken.yaml", []byte("credentials: [\n"), 0o600))
	assert.NoError(t, afero.WriteFile(files, "/invalid.yaml", []byte("credentials:\n  - equipment: r1\n"), 0o600))

	tests := []struct {
		path string
		want string
	}{
		{path: "/missing.yaml", want: "failed to read inventory /missing.yaml"},
		{path: "/empty.yaml", want: "inventory /empty.yaml is empty"},
		{path: "/broken.yaml", want: "failed to parse inventory /broken.yaml"},
		{path: "/invalid.yaml", want: `invalid credential entry "r1"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := New(files, tt.path, nil).Load()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			_, err = New(files, tt.path, nil).Resolve(context.Background(), "r1", plugin.AccessSSH)
			assert.Error(t, err)
			assert.False(t, errors.Is(err, plugin.ErrCredentialNotFound))
		})
	}
}

func TestSaveSealed(t *testing.T) {
	c, err := credentials.NewCipher("1234567890123456789012345678901212345678901234567890123456789012")
	assert.NoError(t, err)
	files := afero.NewMemMapFs()
	store := New(files, "/inventory.yaml", c)

	assert.NoError(t, store.Save([]credentials.Entry{
		{Equipment: "r1", Host: "10.0.0.1", Username: "admin", Secret: "plain-secret"},
	}))

	data, err := afero.ReadFile(files, "/inventory.yaml")
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "plain-secret")
	exists, err := afero.Exists(files, "/inventory.yaml.tmp")
	assert.NoError(t, err)
	assert.False(t, exists)

	reread := New(files, "/inventory.yaml", c)
	cred, err := reread.Resolve(context.Background(), "r1", plugin.AccessSSH)
	assert.NoError(t, err)
	assert.Equal(t, "plain-secret", cred.Secret)
}

func TestSaveInvalid(t *testing.T) {
	store := New(afero.NewMemMapFs(), "/inventory.yaml", nil)
	assert.Error(t, store.Save([]credentials.Entry{{Equipment: "r1"}}))
}
