// Package crypto implements the envelope encryption scheme that wraps a
// fresh per-item key under the user's long-lived primary key before
// encrypting the codec plaintext (see internal/codec). Envelopes use
// XChaCha20-Poly1305 for both layers, with a fresh random nonce per call.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the width of the primary key and every one-time item key.
	KeySize = 32
	// NonceSize is the XChaCha20-Poly1305 extended nonce width.
	NonceSize = chacha20poly1305.NonceSizeX
)

// Key is the 256-bit primary symmetric key, or a one-time item key.
type Key [KeySize]byte

// GenerateKey returns a fresh random key, suitable as either a primary key
// or a one-time item key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return Key{}, fmt.Errorf("crypto: generate key: %w", err)
	}
	return k, nil
}

// ErrorKind classifies a crypto failure.
type ErrorKind int

const (
	Authentication ErrorKind = iota
	Other
)

func (k ErrorKind) String() string {
	if k == Authentication {
		return "authentication"
	}
	return "other"
}

// Error is the typed crypto failure. A tag mismatch during decryption is
// never retried with a different key silently — callers must surface it.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("crypto: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

var errSeal = errors.New("seal failed")

// Envelope is the two-layer authenticated ciphertext transported as the
// `data` field of a RefItem. Every field marshals to a base64 string
// automatically since encoding/json base64-encodes []byte.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Key        []byte `json:"key"`
	KeyNonce   []byte `json:"key_nonce"`
	Nonce      []byte `json:"nonce"`
}

func seal(key Key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, &Error{Kind: Other, Msg: "construct aead", Err: err}
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func open(key Key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, &Error{Kind: Other, Msg: "construct aead", Err: err}
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &Error{Kind: Authentication, Msg: "tag verification failed", Err: errSeal}
	}
	return plaintext, nil
}

func randomNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, &Error{Kind: Other, Msg: "generate nonce", Err: err}
	}
	return n, nil
}

// Encrypt builds an Envelope around plaintext: a random one-time key
// encrypts plaintext under a random content nonce, and that one-time key is
// itself encrypted under primary with a second random nonce. Associated
// data is empty in both layers.
func Encrypt(plaintext []byte, primary Key) (Envelope, error) {
	itemKey, err := GenerateKey()
	if err != nil {
		return Envelope{}, err
	}
	contentNonce, err := randomNonce()
	if err != nil {
		return Envelope{}, err
	}
	ciphertext, err := seal(itemKey, contentNonce, plaintext)
	if err != nil {
		return Envelope{}, err
	}

	keyNonce, err := randomNonce()
	if err != nil {
		return Envelope{}, err
	}
	wrappedKey, err := seal(primary, keyNonce, itemKey[:])
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Ciphertext: ciphertext,
		Key:        wrappedKey,
		KeyNonce:   keyNonce,
		Nonce:      contentNonce,
	}, nil
}

// Decrypt reverses Encrypt. Any tag failure in either layer surfaces as
// Error{Kind: Authentication}.
func Decrypt(env Envelope, primary Key) ([]byte, error) {
	itemKeyBytes, err := open(primary, env.KeyNonce, env.Key)
	if err != nil {
		return nil, err
	}
	if len(itemKeyBytes) != KeySize {
		return nil, &Error{Kind: Authentication, Msg: "unwrapped key has wrong size"}
	}
	var itemKey Key
	copy(itemKey[:], itemKeyBytes)

	plaintext, err := open(itemKey, env.Nonce, env.Ciphertext)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
