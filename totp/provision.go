package totp

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// ProvisioningURI builds the otpauth:// URI that authenticator apps scan.
// The shared secret is re-encoded from hex to unpadded base32, the encoding
// authenticators expect.
func ProvisioningURI(secret, email, issuer string, p Params) (string, error) {
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("totp: malformed secret: %w", err)
	}

	q := url.Values{}
	q.Set("secret", base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw))
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", strconv.Itoa(p.Digits))
	q.Set("period", strconv.Itoa(int(p.Step/time.Second)))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + email,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// QRCodeDataURI renders the provisioning URI as a PNG at the highest error
// correction level, encoded as a data URI for direct embedding in responses.
func QRCodeDataURI(uri string) (string, error) {
	png, err := qrcode.Encode(uri, qrcode.Highest, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("totp: encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
