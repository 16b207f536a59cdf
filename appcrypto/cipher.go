// Package appcrypto implements the optional application-level payload
// encryption layer (§3.7/§4.5): AES-256-GCM keyed by a 32-byte key
// derived from the TLS session exporter with label "urpc_app_key_v1".
//
// No third-party AEAD library appears anywhere in the reference corpus;
// Go's standard crypto/aes + crypto/cipher GCM implementation is the
// idiomatic choice and the one this module uses directly (see DESIGN.md).
package appcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

const (
	keySize = 32
	ivSize  = 12
	tagSize = 16
)

// ErrNoContext is returned when Encrypt is attempted without a valid
// cipher context (§4.5: "Encryption MUST NOT be attempted when no cipher
// context is available").
var ErrNoContext = errors.New("appcrypto: no cipher context available")

// ErrInvalidPayload is returned by Decrypt on any authentication or size
// violation, surfaced to callers as application error code 400 (§7).
var ErrInvalidPayload = errors.New("appcrypto: invalid encrypted payload")

// Context holds the 32-byte application key and its validity flag (§3.7).
// The zero value is invalid (Valid == false).
type Context struct {
	Key   [keySize]byte
	Valid bool
}

// NewContext builds a valid Context from a 32-byte key, as derived by
// transport.TLSStream.ExporterKey.
func NewContext(key []byte) (Context, error) {
	if len(key) != keySize {
		return Context{}, errors.New("appcrypto: key must be 32 bytes")
	}
	var ctx Context
	copy(ctx.Key[:], key)
	ctx.Valid = true
	return ctx, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext into IV(12) ‖ ciphertext ‖ tag(16) using a fresh
// random IV drawn from the process-wide CSPRNG (§4.5/§9).
func Encrypt(ctx Context, plaintext []byte) ([]byte, error) {
	if !ctx.Valid {
		return nil, ErrNoContext
	}
	gcm, err := newGCM(ctx.Key[:])
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	out := make([]byte, 0, ivSize+len(plaintext)+tagSize)
	out = append(out, iv...)
	// Seal appends ciphertext||tag after dst; passing out (len == ivSize)
	// as dst places the sealed bytes right after the IV we just wrote.
	out = gcm.Seal(out, iv, plaintext, nil)
	return out, nil
}

// Decrypt opens IV ‖ ciphertext ‖ tag back into plaintext. It requires at
// least ivSize+tagSize bytes and fails closed on any authentication or
// size violation (§4.5).
func Decrypt(ctx Context, encrypted []byte) ([]byte, error) {
	if !ctx.Valid {
		return nil, ErrNoContext
	}
	if len(encrypted) < ivSize+tagSize {
		return nil, ErrInvalidPayload
	}

	gcm, err := newGCM(ctx.Key[:])
	if err != nil {
		return nil, err
	}

	iv := encrypted[:ivSize]
	ciphertextAndTag := encrypted[ivSize:]

	plaintext, err := gcm.Open(nil, iv, ciphertextAndTag, nil)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return plaintext, nil
}
