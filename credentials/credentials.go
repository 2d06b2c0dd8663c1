// Package credentials resolves the access credentials of equipment from an inventory.
// Secrets may be stored sealed with a Cipher, in which case resolvers open them on lookup.
package credentials

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/damianoneill/netpush/plugin"
)

// Entry is the inventory record of one credential.
type Entry struct {
	Equipment    string            `yaml:"equipment" bson:"equipment" validate:"required"`
	Kind         plugin.AccessKind `yaml:"kind,omitempty" bson:"kind,omitempty" validate:"omitempty,oneof=ssh netconf telnet"`
	Host         string            `yaml:"host" bson:"host" validate:"required,hostname_rfc1123|ip"`
	Username     string            `yaml:"username" bson:"username" validate:"required"`
	Secret       string            `yaml:"secret" bson:"secret"`
	EnableSecret string            `yaml:"enableSecret,omitempty" bson:"enableSecret,omitempty"`
}

// AccessKind delivers the kind of the entry, ssh when unset.
func (e *Entry) AccessKind() plugin.AccessKind {
	if e.Kind == "" {
		return plugin.AccessSSH
	}
	return e.Kind
}

// Matches reports whether the entry is the credential of equipment for kind.
func (e *Entry) Matches(equipment plugin.EquipmentID, kind plugin.AccessKind) bool {
	return e.Equipment == string(equipment) && e.AccessKind() == kind
}

// Credential converts the entry, opening its secrets with c when c is not nil.
func (e *Entry) Credential(c *Cipher) (*plugin.Credential, error) {
	cred := &plugin.Credential{
		Host:         e.Host,
		Username:     e.Username,
		Secret:       e.Secret,
		EnableSecret: e.EnableSecret,
		Kind:         e.AccessKind(),
	}
	if c == nil {
		return cred, nil
	}
	var err error
	if cred.Secret, err = c.Open(e.Secret); err != nil {
		return nil, errors.Wrapf(err, "failed to open secret of %s", e.Equipment)
	}
	if cred.EnableSecret, err = c.Open(e.EnableSecret); err != nil {
		return nil, errors.Wrapf(err, "failed to open enable secret of %s", e.Equipment)
	}
	return cred, nil
}

var validate = validator.New()

// Validate checks the entry is complete.
func (e *Entry) Validate() error {
	return errors.Wrapf(validate.Struct(e), "invalid credential entry %q", e.Equipment)
}

// Static resolves credentials held in memory.
type Static struct {
	mu      sync.RWMutex
	entries []Entry
	cipher  *Cipher
}

var _ plugin.CredentialResolver = (*Static)(nil)

// NewStatic delivers a resolver over entries, whose secrets are sealed with c unless c is nil.
func NewStatic(c *Cipher, entries ...Entry) *Static {
	return &Static{entries: entries, cipher: c}
}

// Add appends an entry. Entries added later do not replace earlier matches.
func (s *Static) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *Static) Resolve(ctx context.Context, equipment plugin.EquipmentID, kind plugin.AccessKind) (*plugin.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Find(s.entries, s.cipher, equipment, kind)
}

// Find delivers the credential of the first entry matching equipment and kind.
func Find(entries []Entry, c *Cipher, equipment plugin.EquipmentID, kind plugin.AccessKind) (*plugin.Credential, error) {
	for i := range entries {
		if entries[i].Matches(equipment, kind) {
			return entries[i].Credential(c)
		}
	}
	return nil, errors.Wrapf(plugin.ErrCredentialNotFound, "%s access to %s", kind, equipment)
}
