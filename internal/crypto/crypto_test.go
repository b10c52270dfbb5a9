package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	plaintext := []byte("pin me to the wall")
	env, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decrypted, err := Decrypt(env, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Error("decrypted plaintext mismatch")
	}
}

func TestEnvelopeWrongKeyFailsAuthentication(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}

	env, err := Encrypt([]byte("hello"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	_, err = Decrypt(env, other)
	if err == nil {
		t.Fatal("decrypt with wrong key should fail")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != Authentication {
		t.Errorf("expected Authentication error, got %v", err)
	}
}

func TestEnvelopeTamperedCiphertextFailsAuthentication(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env, err := Encrypt([]byte("hello"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env.Ciphertext[0] ^= 0xFF

	_, err = Decrypt(env, key)
	if err == nil {
		t.Fatal("decrypt of tampered ciphertext should fail")
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	plaintext := []byte("same plaintext twice")

	env1, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	env2, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}
	if bytes.Equal(env1.Ciphertext, env2.Ciphertext) {
		t.Error("two encryptions of the same plaintext should not collide (fresh nonce+key per item)")
	}
}
