package internal

import (
	"testing"
)

func TestNewOTPDigits(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("expected numeric code, got %q", code)
			}
		}
	}

	if _, err := NewOTP(5); err == nil {
		t.Fatal("expected error for 5 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}

func TestHashCodeBindsSubjectAndKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	h := HashCode(key, "u1", "123456")
	if !EqualCodeHash(h, HashCode(key, "u1", "123456")) {
		t.Fatal("expected deterministic digest")
	}
	if EqualCodeHash(h, HashCode(key, "u2", "123456")) {
		t.Fatal("digest must differ across subjects")
	}
	if EqualCodeHash(h, HashCode(key, "u1", "123457")) {
		t.Fatal("digest must differ across codes")
	}
	if EqualCodeHash(h, HashCode([]byte("another-key-another-key-another-k"), "u1", "123456")) {
		t.Fatal("digest must differ across keys")
	}
	if EqualCodeHash(h, "") {
		t.Fatal("empty digest must not match")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken: %v", err)
	}
	gotSID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if gotSID != sid.String() || gotSecret != secret {
		t.Fatal("round trip mismatch")
	}

	if _, _, err := DecodeRefreshToken(token[:len(token)-2]); err == nil {
		t.Fatal("expected truncated token to fail")
	}
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret(32)
	if err != nil || len(a) != 32 {
		t.Fatalf("expected 32 bytes, got %d err=%v", len(a), err)
	}
	b, _ := NewSecret(32)
	if string(a) == string(b) {
		t.Fatal("expected distinct secrets")
	}
	if _, err := NewSecret(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
