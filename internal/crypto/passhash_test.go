package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 32
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal — looks non-random", n)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	pw := []byte(DerivePassword([]byte("bot-token"), 42))
	salt := []byte("salty-salt-123456")

	hash := HashPassword(pw, salt)
	if !bytes.Equal(hash, HashPassword(pw, salt)) {
		t.Fatalf("hash not deterministic for same input")
	}

	if !VerifyPassword(pw, salt, hash) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword([]byte("wrong"), salt, hash) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if VerifyPassword(pw, []byte("wrong-salt------"), hash) {
		t.Fatalf("VerifyPassword: expected false for wrong salt")
	}
}

func TestDerivePassword(t *testing.T) {
	t.Parallel()

	secret := []byte("bot-token")

	// logging in twice must resolve to the same stored credential
	if DerivePassword(secret, 42) != DerivePassword(secret, 42) {
		t.Fatalf("derivation not deterministic")
	}
	if DerivePassword(secret, 42) == DerivePassword(secret, 43) {
		t.Fatalf("different platform ids derived the same password")
	}
	if DerivePassword(secret, 42) == DerivePassword([]byte("rotated"), 42) {
		t.Fatalf("different secrets derived the same password")
	}

	raw, err := hex.DecodeString(DerivePassword(secret, 42))
	if err != nil {
		t.Fatalf("derived password is not hex: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("derived password is %d bytes, want 32 (sha256)", len(raw))
	}
}
