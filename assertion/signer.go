package assertion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CertificateRequest asks the signer to certify a public key for an account
// identity. Duration is the certificate lifetime in milliseconds.
type CertificateRequest struct {
	PublicKey     JWK    `json:"publicKey"`
	Email         string `json:"email"`
	Duration      int64  `json:"duration"`
	Generation    int64  `json:"generation"`
	LastAuthAt    int64  `json:"lastAuthAt"`
	VerifiedEmail bool   `json:"verifiedEmail"`
}

// Signer issues signed identity certificates over a public key.
type Signer interface {
	SignCertificate(ctx context.Context, req *CertificateRequest) (string, error)
}

// HTTPSigner calls a remote signing service.
type HTTPSigner struct {
	url    string
	client *http.Client
}

// NewHTTPSigner creates a signer client for the given base URL.
func NewHTTPSigner(url string, timeout time.Duration) *HTTPSigner {
	return &HTTPSigner{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSigner) SignCertificate(ctx context.Context, req *CertificateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("signer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/certificate/sign", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("signer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("signer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("signer: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Cert string `json:"cert"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("signer: decode response: %w", err)
	}
	if out.Cert == "" {
		return "", fmt.Errorf("signer: empty certificate")
	}
	return out.Cert, nil
}
