// Package filestore resolves credentials from a yaml inventory file.
//
//	credentials:
//	  - equipment: r1
//	    kind: ssh
//	    host: 10.0.0.1
//	    username: admin
//	    secret: <sealed secret>
package filestore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/damianoneill/netpush/credentials"
	"github.com/damianoneill/netpush/plugin"
)

// Inventory is the content of an inventory file.
type Inventory struct {
	Credentials []credentials.Entry `yaml:"credentials"`
}

// FileStore is a CredentialResolver backed by an inventory file, read on first use.
type FileStore struct {
	Path   string
	fs     afero.Fs
	cipher *credentials.Cipher

	mu      sync.Mutex
	entries []credentials.Entry
}

var _ plugin.CredentialResolver = (*FileStore)(nil)

// New delivers a FileStore for the inventory at path, read from files. Secrets are opened with c unless c is nil.
func New(files afero.Fs, path string, c *credentials.Cipher) *FileStore {
	return &FileStore{Path: path, fs: files, cipher: c}
}

// Load reads and validates the inventory, replacing any entries read before.
func (f *FileStore) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() error {
	data, err := afero.ReadFile(f.fs, f.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to read inventory %s", f.Path)
	}
	if len(data) == 0 {
		return errors.Errorf("inventory %s is empty", f.Path)
	}
	var inv Inventory
	if err = yaml.Unmarshal(data, &inv); err != nil {
		return errors.Wrapf(err, "failed to parse inventory %s", f.Path)
	}
	for i := range inv.Credentials {
		if err = inv.Credentials[i].Validate(); err != nil {
			return errors.Wrap(err, f.Path)
		}
	}
	f.entries = inv.Credentials
	return nil
}

// Entries delivers the entries read by Load.
func (f *FileStore) Entries() []credentials.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]credentials.Entry(nil), f.entries...)
}

// Save writes entries as the inventory, sealing their secrets with the store cipher.
func (f *FileStore) Save(entries []credentials.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv := Inventory{Credentials: make([]credentials.Entry, len(entries))}
	copy(inv.Credentials, entries)
	for i := range inv.Credentials {
		if err := inv.Credentials[i].Validate(); err != nil {
			return err
		}
		if f.cipher == nil {
			continue
		}
		if err := f.cipher.SealEntry(&inv.Credentials[i]); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(&inv)
	if err != nil {
		return errors.Wrap(err, "failed to marshal inventory")
	}
	tmp := f.Path + ".tmp"
	if err = afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err = f.fs.Rename(tmp, f.Path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", f.Path)
	}
	f.entries = inv.Credentials
	return nil
}

func (f *FileStore) Resolve(ctx context.Context, equipment plugin.EquipmentID, kind plugin.AccessKind) (*plugin.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		if err := f.load(); err != nil {
			return nil, err
		}
	}
	return credentials.Find(f.entries, f.cipher, equipment, kind)
}
