package credentials

import (
	"github.com/firdasafridi/gocrypt"
	"github.com/pkg/errors"
)

// Cipher seals and opens secrets with AES, keyed by a 64 character hex key.
type Cipher struct {
	opt *gocrypt.Option
}

type sealed struct {
	Value string `gocrypt:"aes"`
}

// NewCipher delivers a Cipher for key.
func NewCipher(key string) (*Cipher, error) {
	aesOpt, err := gocrypt.NewAESOpt(key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cipher key")
	}
	return &Cipher{opt: &gocrypt.Option{AESOpt: aesOpt}}, nil
}

// Seal encrypts secret. The empty secret stays empty.
func (c *Cipher) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	s := sealed{Value: secret}
	if err := gocrypt.New(c.opt).Encrypt(&s); err != nil {
		return "", errors.Wrap(err, "failed to seal secret")
	}
	return s.Value, nil
}

// Open decrypts a secret produced by Seal.
func (c *Cipher) Open(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	s := sealed{Value: secret}
	if err := gocrypt.New(c.opt).Decrypt(&s); err != nil {
		return "", errors.Wrap(err, "failed to open secret")
	}
	return s.Value, nil
}

// SealEntry seals the secrets of e in place.
func (c *Cipher) SealEntry(e *Entry) (err error) {
	if e.Secret, err = c.Seal(e.Secret); err != nil {
		return err
	}
	e.EnableSecret, err = c.Seal(e.EnableSecret)
	return err
}
