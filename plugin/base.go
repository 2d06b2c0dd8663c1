package plugin

import (
	"context"
	"io/fs"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures the shared state of a plugin.
type Option func(*Options)

// Options are the settings shared by all families.
type Options struct {
	Config     Config
	Logger     *zap.Logger
	Resolver   CredentialResolver
	Credential *Credential
	Fs         afero.Fs
}

// WithConfig overrides the family defaults with the non-zero values of cfg.
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger defines the logger used by the plugin.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithResolver defines where the equipment credential is looked up.
func WithResolver(r CredentialResolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithCredential supplies the equipment credential directly, bypassing the resolver.
func WithCredential(c *Credential) Option {
	return func(o *Options) {
		o.Credential = c
	}
}

// WithFs defines the filesystem configuration files are read from.
func WithFs(files afero.Fs) Option {
	return func(o *Options) {
		o.Fs = files
	}
}

// Base holds the state every family shares: identity, knobs, logger and the cached credential.
type Base struct {
	Family    string
	Equipment EquipmentID
	Config    Config
	Logger    *zap.Logger

	resolver   CredentialResolver
	credential *Credential
	files      afero.Fs
	trace      *Trace
}

// NewBase applies opts over the family defaults.
func NewBase(family string, equipment EquipmentID, defaults Config, opts ...Option) *Base {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.Config
	_ = mergo.Merge(&cfg, defaults)
	_ = mergo.Merge(&cfg, DefaultConfig)

	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	files := o.Fs
	if files == nil {
		files = afero.NewOsFs()
	}

	return &Base{
		Family:     family,
		Equipment:  equipment,
		Config:     cfg,
		Logger:     logger.With(zap.String("family", family), zap.String("equipment", string(equipment))),
		resolver:   o.Resolver,
		credential: o.Credential,
		files:      files,
	}
}

// Credential delivers the ssh credential of the equipment, resolving it on first use.
func (b *Base) Credential(ctx context.Context) (*Credential, error) {
	if b.credential != nil {
		return b.credential, nil
	}
	if b.resolver == nil {
		return nil, NewError(KindCredentialsNotFound, "resolve", string(b.Equipment), errors.New("no credential resolver"))
	}
	cred, err := b.resolver.Resolve(ctx, b.Equipment, AccessSSH)
	if err != nil {
		kind := KindUnexpected
		if errors.Is(err, ErrCredentialNotFound) {
			kind = KindCredentialsNotFound
		}
		return nil, NewError(kind, "resolve", string(b.Equipment), err)
	}
	b.credential = cred
	return cred, nil
}

// Target names the equipment in errors and logs, by host once the credential is known.
func (b *Base) Target() string {
	if b.credential != nil && b.credential.Host != "" {
		return b.credential.Host
	}
	return string(b.Equipment)
}

// ReadPayload reads the configuration file at path.
func (b *Base) ReadPayload(path string) (string, error) {
	data, err := afero.ReadFile(b.files, path)
	if err != nil {
		kind := KindIO
		if errors.Is(err, fs.ErrNotExist) {
			kind = KindFileNotFound
		}
		return "", NewError(kind, "read "+path, b.Target(), err)
	}
	return string(data), nil
}

// BindTrace remembers the trace hooks of ctx for operations that take no context.
func (b *Base) BindTrace(ctx context.Context) *Trace {
	b.trace = ContextTrace(ctx)
	return b.trace
}

// Trace delivers the hooks bound by BindTrace.
func (b *Base) Trace() *Trace {
	if b.trace == nil {
		return NoOpTrace
	}
	return b.trace
}

// CommitProtocol delivers a protocol configured from the plugin knobs.
func (b *Base) CommitProtocol() *CommitProtocol {
	return &CommitProtocol{
		Retry:  LockRetryPolicy{MaxAttempts: b.Config.LockMaxAttempts, Wait: b.Config.LockRetryWait},
		Logger: b.Logger,
		Target: b.Target(),
	}
}
