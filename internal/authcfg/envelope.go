// Package authcfg handles envelope-encrypted upstream auth configs
// and consumer secrets. Payloads are AES-GCM sealed under the
// gateway's master key, with additional authenticated data binding
// the ciphertext to the record it belongs to.
package authcfg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// envelopePrefix marks an encrypted payload. Anything without the
// prefix is treated as plaintext.
const envelopePrefix = "enc:v1:"

// ErrNoMasterKey is returned when an envelope payload is seen but no
// master key is configured.
var ErrNoMasterKey = errors.New("authcfg: envelope payload present but no master key configured")

// Codec seals and opens envelope payloads under a fixed master key.
// A nil Codec (no key configured) still passes plaintext through.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from raw AES key bytes (16, 24 or 32).
func NewCodec(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("authcfg: invalid master key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("authcfg: gcm init: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// IsEnvelope reports whether stored carries the envelope prefix.
func IsEnvelope(stored string) bool {
	return strings.HasPrefix(stored, envelopePrefix)
}

// AAD builds the additional authenticated data binding an auth config
// to its interface record.
func AAD(providerURL, platformPath, method string) []byte {
	return []byte(providerURL + "|" + platformPath + "|" + method)
}

// Decrypt opens stored if it is an envelope, or returns it untouched
// when it is plaintext. c may be nil only for plaintext payloads.
func (c *Codec) Decrypt(stored string, aad []byte) (string, error) {
	if !IsEnvelope(stored) {
		return stored, nil
	}
	if c == nil {
		return "", ErrNoMasterKey
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("authcfg: malformed envelope: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("authcfg: envelope too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], aad)
	if err != nil {
		return "", fmt.Errorf("authcfg: decrypt failed: %w", err)
	}
	return string(plain), nil
}

// Encrypt seals plain into an envelope with the given AAD.
func (c *Codec) Encrypt(plain string, aad []byte) (string, error) {
	if c == nil {
		return "", ErrNoMasterKey
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("authcfg: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), aad)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}
