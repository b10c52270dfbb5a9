package keystore

import (
	"path/filepath"
	"testing"

	"github.com/amaydixit11/pinsync/internal/crypto"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded, err := Encode(key)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != key {
		t.Error("decoded key does not match original")
	}
}

func TestDecodeTrailingNewlineTolerated(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded, err := Encode(key)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded + "\n")
	if err != nil {
		t.Fatalf("decode with trailing newline: %v", err)
	}
	if decoded != key {
		t.Error("decoded key with trailing newline does not match original")
	}
}

func TestDecodeWrongSizeFailsLoudly(t *testing.T) {
	_, err := Decode("AAAA")
	if err == nil {
		t.Fatal("expected an error decoding a non-key payload")
	}
}

func TestCreateIfAbsentRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")

	if _, err := CreateIfAbsent(path); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIfAbsent(path); err != ErrExists {
		t.Fatalf("expected ErrExists on second create, got %v", err)
	}
}

func TestLoadRoundTripsAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")

	created, err := CreateIfAbsent(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != created {
		t.Error("loaded key does not match created key")
	}
}
