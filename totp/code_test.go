package totp

import (
	"encoding/hex"
	"testing"
	"time"
)

// Shared secret from RFC 6238 appendix B ("12345678901234567890" in hex).
const rfcSecret = "3132333435363738393031323334353637383930"

func TestVerifyCodeRFCVectors(t *testing.T) {
	// Last 6 digits of the RFC 6238 SHA-1 reference values.
	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	p := DefaultParams()
	for _, v := range vectors {
		at := time.Unix(v.unix, 0)
		if !VerifyCode(rfcSecret, v.code, at, p) {
			t.Errorf("code %s at t=%d should verify", v.code, v.unix)
		}
	}
}

func TestVerifyCodeWindowBoundaries(t *testing.T) {
	key, _ := hex.DecodeString(rfcSecret)
	base := time.Unix(1111111111, 0)
	counter := uint64(base.Unix() / 30)
	code := generateCode(key, counter, 6)

	strict := Params{Step: 30 * time.Second, Window: 0, Digits: 6}

	if !VerifyCode(rfcSecret, code, base, strict) {
		t.Error("code for the current window should be accepted")
	}
	if VerifyCode(rfcSecret, code, base.Add(-30*time.Second), strict) {
		t.Error("code should be rejected one full window early")
	}
	if VerifyCode(rfcSecret, code, base.Add(30*time.Second), strict) {
		t.Error("code should be rejected one full window late")
	}

	// With a one-step tolerance the adjacent windows are accepted, but two
	// steps away is still out.
	tolerant := Params{Step: 30 * time.Second, Window: 1, Digits: 6}
	if !VerifyCode(rfcSecret, code, base.Add(-30*time.Second), tolerant) {
		t.Error("adjacent window should be accepted with tolerance 1")
	}
	if VerifyCode(rfcSecret, code, base.Add(60*time.Second), tolerant) {
		t.Error("two windows late should be rejected even with tolerance 1")
	}
}

func TestVerifyCodeMalformedInputs(t *testing.T) {
	p := DefaultParams()
	at := time.Unix(59, 0)

	if VerifyCode("not-hex", "287082", at, p) {
		t.Error("malformed secret should never verify")
	}
	if VerifyCode(rfcSecret, "000000", at, p) {
		t.Error("wrong code should not verify")
	}
	if VerifyCode(rfcSecret, "", at, p) {
		t.Error("empty code should not verify")
	}
}

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(s1) != SecretBytes*2 {
		t.Errorf("expected %d hex chars, got %d", SecretBytes*2, len(s1))
	}
	if _, err := hex.DecodeString(s1); err != nil {
		t.Errorf("secret is not hex: %v", err)
	}

	s2, _ := GenerateSecret()
	if s1 == s2 {
		t.Error("two generated secrets should differ")
	}
}
