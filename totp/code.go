// Package totp implements the TOTP second-factor lifecycle: secret creation,
// provisioning, code verification, and teardown.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Params holds the code-check parameters. They are passed explicitly into
// every verification so concurrent configurations never share state.
type Params struct {
	Step   time.Duration // time step, normally 30s
	Window int           // accepted steps either side of now
	Digits int           // code length, normally 6
}

// DefaultParams returns the standard 30s/±1/6-digit configuration.
func DefaultParams() Params {
	return Params{Step: 30 * time.Second, Window: 1, Digits: 6}
}

// SecretBytes is the entropy of a generated shared secret.
const SecretBytes = 20

// GenerateSecret returns fresh hex-encoded shared secret material.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// VerifyCode checks a code against a hex-encoded secret at the given time.
// Wrong and expired codes are indistinguishable: both are simply false.
func VerifyCode(secret, code string, at time.Time, p Params) bool {
	key, err := hex.DecodeString(secret)
	if err != nil {
		return false
	}

	step := int64(p.Step / time.Second)
	if step <= 0 {
		step = 30
	}
	counter := at.Unix() / step

	for i := int64(-int64(p.Window)); i <= int64(p.Window); i++ {
		expected := generateCode(key, uint64(counter+i), p.Digits)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

func generateCode(key []byte, counter uint64, digits int) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0xf
	binCode := int64(sum[offset]&0x7f)<<24 |
		int64(sum[offset+1])<<16 |
		int64(sum[offset+2])<<8 |
		int64(sum[offset+3])

	mod := int64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, binCode%mod)
}
