// Package keystore creates, persists, and loads the long-lived primary key
// that internal/crypto uses to wrap per-item keys.
//
// Portable encoding is a MessagePack array of 32 bytes, base64-standard
// encoded, via the low-level Encoder/Decoder rather than struct-tag
// reflection.
package keystore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/amaydixit11/pinsync/internal/crypto"
)

// ErrExists is returned by CreateIfAbsent when path already holds a key.
var ErrExists = errors.New("keystore: key file already exists")

// Encode renders key as the portable base64(msgpack([32]byte)) string
// written to disk.
func Encode(key crypto.Key) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(crypto.KeySize); err != nil {
		return "", fmt.Errorf("keystore: encode key array header: %w", err)
	}
	for _, b := range key {
		if err := enc.EncodeUint8(b); err != nil {
			return "", fmt.Errorf("keystore: encode key byte: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses the portable string form produced by Encode. A trailing
// newline (as left by many editors/shells) is tolerated.
func Decode(s string) (crypto.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimRight(s, "\r\n"))
	if err != nil {
		return crypto.Key{}, fmt.Errorf("keystore: decode base64: %w", err)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return crypto.Key{}, fmt.Errorf("keystore: decode key array header: %w", err)
	}
	if n != crypto.KeySize {
		return crypto.Key{}, fmt.Errorf("keystore: encryption key is not the correct size: got %d elements", n)
	}

	var key crypto.Key
	for i := 0; i < crypto.KeySize; i++ {
		v, err := dec.DecodeUint8()
		if err != nil {
			return crypto.Key{}, fmt.Errorf("keystore: decode key byte %d: %w", i, err)
		}
		key[i] = v
	}
	return key, nil
}

// Load reads and decodes the key at path.
func Load(path string) (crypto.Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return crypto.Key{}, fmt.Errorf("keystore: read key file: %w", err)
	}
	return Decode(string(raw))
}

// CreateIfAbsent generates a fresh primary key and persists it to path,
// refusing to overwrite an existing key file.
func CreateIfAbsent(path string) (crypto.Key, error) {
	if _, err := os.Stat(path); err == nil {
		return crypto.Key{}, ErrExists
	} else if !os.IsNotExist(err) {
		return crypto.Key{}, fmt.Errorf("keystore: stat key file: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return crypto.Key{}, err
	}
	encoded, err := Encode(key)
	if err != nil {
		return crypto.Key{}, err
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return crypto.Key{}, fmt.Errorf("keystore: write key file: %w", err)
	}
	return key, nil
}

// LoadOrCreate loads the key at path, creating one if absent. This is the
// convenience entry point the CLI uses; the core's normative contract
// (create_if_absent / load as two separate operations) is CreateIfAbsent
// and Load above.
func LoadOrCreate(path string) (crypto.Key, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return crypto.Key{}, fmt.Errorf("keystore: stat key file: %w", err)
	}
	return CreateIfAbsent(path)
}
