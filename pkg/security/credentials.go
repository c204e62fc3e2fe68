package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24

	sealedPrefix = "sealed:v1:"

	// Passphrase derivation parameters. Changing them invalidates every sealed value.
	deriveTime    = 1
	deriveMemory  = 64 * 1024
	deriveThreads = 2
)

var deriveSalt = []byte("stocksync/channel-credentials")

// ErrInvalidSealed signals a sealed value that cannot be opened with the configured key.
var ErrInvalidSealed = errors.New("invalid sealed credentials")

// Sealer encrypts channel API credentials at rest with NaCl secretbox.
// A Sealer without a key passes values through untouched, which keeps
// local development usable without key management.
type Sealer struct {
	key     *[keySize]byte
	enabled bool
}

// NewSealer builds a sealer from the configured key. The value may be a base64
// encoded 32 byte key or any other passphrase, which is stretched with argon2id.
func NewSealer(configured string) (*Sealer, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return &Sealer{}, nil
	}

	var key [keySize]byte
	if raw, err := base64.StdEncoding.DecodeString(configured); err == nil && len(raw) == keySize {
		copy(key[:], raw)
	} else {
		derived := argon2.IDKey([]byte(configured), deriveSalt, deriveTime, deriveMemory, deriveThreads, keySize)
		copy(key[:], derived)
	}
	return &Sealer{key: &key, enabled: true}, nil
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.enabled
}

// Seal encrypts a JSON document and returns it wrapped as a JSON string so
// the result still fits a JSONB column.
func (s *Sealer) Seal(plain json.RawMessage) (json.RawMessage, error) {
	if len(plain) == 0 || !s.Enabled() {
		return plain, nil
	}
	if !json.Valid(plain) {
		return nil, fmt.Errorf("credentials must be valid json")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, s.key)
	encoded := sealedPrefix + base64.RawStdEncoding.EncodeToString(box)
	return json.Marshal(encoded)
}

// Open reverses Seal. Unsealed JSON documents are returned as-is.
func (s *Sealer) Open(stored json.RawMessage) (json.RawMessage, error) {
	if len(stored) == 0 {
		return stored, nil
	}
	var encoded string
	if err := json.Unmarshal(stored, &encoded); err != nil || !strings.HasPrefix(encoded, sealedPrefix) {
		return stored, nil
	}
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: no credentials key configured", ErrInvalidSealed)
	}

	box, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(encoded, sealedPrefix))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrInvalidSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrInvalidSealed
	}
	return plain, nil
}

// IsSealed reports whether the stored value was produced by Seal.
func IsSealed(stored json.RawMessage) bool {
	var encoded string
	if err := json.Unmarshal(stored, &encoded); err != nil {
		return false
	}
	return strings.HasPrefix(encoded, sealedPrefix)
}
