package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSealedFormat  = errors.New("invalid sealed value format")
	ErrSealedInvalid = errors.New("invalid sealed value")
	ErrSealedConfig  = errors.New("invalid sealed store configuration")
)

// maxSealedLen bounds the amount of untrusted data we will decode for a
// stored value.
const maxSealedLen = 8192

// DefaultAEADKeysize is the key size (in bytes) for the default AEAD
// (chacha20poly1305).
const DefaultAEADKeysize = chacha20poly1305.KeySize

// Codec seals and opens byte values.
//
// Format: [keyID] "." [base64url(nonce || AEAD.Seal(plaintext, aad))].
// Key rotation: Keys contains all accepted keys; KeyID selects the current
// sealing key.
type Codec struct {
	KeyID string
	Keys  map[string][]byte

	// NewAEAD constructs the AEAD used to seal/open values.
	NewAEAD func(key []byte) (cipher.AEAD, error)
}

// NewCodec creates a Codec. newAEAD defaults to chacha20poly1305.NewX.
func NewCodec(keyID string, keys map[string][]byte, newAEAD func(key []byte) (cipher.AEAD, error)) (*Codec, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: keys must not be nil", ErrSealedConfig)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: keyID not found in keys", ErrSealedConfig)
	}
	if newAEAD == nil {
		newAEAD = chacha20poly1305.NewX
	}
	for id, k := range keys {
		if _, err := newAEAD(k); err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrSealedConfig, id, err)
		}
	}
	return &Codec{KeyID: keyID, Keys: keys, NewAEAD: newAEAD}, nil
}

// Seal encrypts plainBytes. aad should be unique to the context (here: the
// storage key name), binding the ciphertext to its slot.
func (c *Codec) Seal(plainBytes, aad []byte) (string, error) {
	if c == nil {
		return "", ErrSealedConfig
	}
	key, ok := c.Keys[c.KeyID]
	if !ok {
		return "", ErrSealedConfig
	}
	aead, err := c.NewAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plainBytes, aad)
	return c.KeyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts value.
func (c *Codec) Open(value string, aad []byte) ([]byte, error) {
	if c == nil {
		return nil, ErrSealedConfig
	}
	if len(value) == 0 || len(value) > maxSealedLen {
		return nil, ErrSealedFormat
	}
	keyID, encB64, ok := strings.Cut(value, ".")
	if !ok || keyID == "" || encB64 == "" {
		return nil, ErrSealedFormat
	}
	key, ok := c.Keys[keyID]
	if !ok {
		return nil, ErrSealedInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encB64)
	if err != nil {
		return nil, ErrSealedFormat
	}
	aead, err := c.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	b, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrSealedInvalid
	}
	return b, nil
}

// sealedRecord is the plaintext carried inside a sealed value.
type sealedRecord struct {
	Value string `cbor:"1,keyasint"`
}

// SealedStore wraps a Store so values are encrypted at rest. A tampered or
// foreign stored value reads as absent, with the decode error reported
// alongside so callers can distinguish "never set" from "unreadable".
type SealedStore struct {
	inner Store
	codec *Codec
}

// SealedOption configures a SealedStore.
type SealedOption func(*sealedConfig)

type sealedConfig struct {
	newAEAD func(key []byte) (cipher.AEAD, error)
}

// WithAEAD configures a custom AEAD factory (e.g. AES-GCM).
func WithAEAD(f func(key []byte) (cipher.AEAD, error)) SealedOption {
	return func(c *sealedConfig) {
		c.newAEAD = f
	}
}

// NewSealedStore wraps inner with AEAD sealing under keys[keyID].
func NewSealedStore(inner Store, keyID string, keys map[string][]byte, opts ...SealedOption) (*SealedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: inner store must not be nil", ErrSealedConfig)
	}
	var cfg sealedConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	codec, err := NewCodec(keyID, keys, cfg.newAEAD)
	if err != nil {
		return nil, err
	}
	return &SealedStore{inner: inner, codec: codec}, nil
}

// aad binds a sealed value to the key it is stored under, so values cannot
// be swapped between slots.
func (s *SealedStore) aad(key string) []byte {
	return []byte("authflow:" + key)
}

func (s *SealedStore) Get(key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return "", false, err
	}
	plain, err := s.codec.Open(sealed, s.aad(key))
	if err != nil {
		return "", false, err
	}
	var rec sealedRecord
	if err := cbor.Unmarshal(plain, &rec); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrSealedInvalid, err)
	}
	return rec.Value, true, nil
}

func (s *SealedStore) Set(key, value string) error {
	plain, err := cbor.Marshal(sealedRecord{Value: value})
	if err != nil {
		return err
	}
	sealed, err := s.codec.Seal(plain, s.aad(key))
	if err != nil {
		return err
	}
	return s.inner.Set(key, sealed)
}

func (s *SealedStore) Delete(key string) error {
	return s.inner.Delete(key)
}

var _ Store = (*SealedStore)(nil)
