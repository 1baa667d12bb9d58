package assertion

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/emberid/ember/audit"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/logger"
	"github.com/emberid/ember/telemetry"
)

// bundleSeparator joins the certificate and assertion; the bundle, not either
// half alone, is the unit of exchange.
const bundleSeparator = "~"

// Config holds the minting parameters.
type Config struct {
	// Domain forms the synthetic certificate identity <uidHex>@<Domain>.
	Domain string

	// CertLifetime is short (hours): the certificate binds the key to the
	// account's current state.
	CertLifetime time.Duration

	// AssertionLifetime is very long (years): the assertion only has to
	// outlive client clock skew, and a leaked one is useless without a
	// matching live certificate.
	AssertionLifetime time.Duration

	// OAuthURL is the authorization endpoint base URL and the assertion
	// audience.
	OAuthURL string

	// ClientID identifies this service to the OAuth server.
	ClientID string
}

// Minter builds certificate+assertion bundles and exchanges them for OAuth
// access tokens.
type Minter struct {
	signer Signer
	rpc    *RPCClient
	key    *rsa.PrivateKey
	cfg    Config

	audits  audit.Store
	metrics *telemetry.Provider
	now     func() time.Time
}

// NewMinter creates a minter. The private key signs the bearer assertion and
// its public half is the key the signer certifies.
func NewMinter(signer Signer, rpc *RPCClient, key *rsa.PrivateKey, cfg Config) *Minter {
	return &Minter{
		signer: signer,
		rpc:    rpc,
		key:    key,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetAuditStore enables audit event recording.
func (m *Minter) SetAuditStore(s audit.Store) { m.audits = s }

// SetTelemetry enables metric recording.
func (m *Minter) SetTelemetry(p *telemetry.Provider) { m.metrics = p }

// SetClock overrides the time source.
func (m *Minter) SetClock(now func() time.Time) { m.now = now }

// GenerateAssertion builds a <certificate>~<assertion> bundle for the
// session's owner. The certificate is issued by the signer over this
// minter's public key; the assertion is self-signed for the OAuth audience.
func (m *Minter) GenerateAssertion(ctx context.Context, session *domain.Token) (string, error) {
	now := m.now()

	req := &CertificateRequest{
		PublicKey:     PublicKeyToJWK(&m.key.PublicKey, "ember-mint"),
		Email:         fmt.Sprintf("%s@%s", session.UID, m.cfg.Domain),
		Duration:      m.cfg.CertLifetime.Milliseconds(),
		Generation:    session.Generation,
		LastAuthAt:    session.LastAuthAt.Unix(),
		VerifiedEmail: session.VerifiedEmail,
	}

	cert, err := m.signer.SignCertificate(ctx, req)
	if err != nil {
		return "", domain.Upstream("assertion.sign", err)
	}

	claims := jwt.MapClaims{
		"aud": m.cfg.OAuthURL,
		"iss": m.cfg.Domain,
		"iat": now.Unix(),
		"exp": now.Add(m.cfg.AssertionLifetime).Unix(),
	}
	bearer, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", domain.Upstream("assertion.sign", err)
	}

	return cert + bundleSeparator + bearer, nil
}

// MintOAuthToken exchanges a fresh assertion bundle plus the requested scope
// for an access token. The endpoint's payload is returned verbatim; failures
// propagate without retry.
func (m *Minter) MintOAuthToken(ctx context.Context, session *domain.Token, scope string) (json.RawMessage, error) {
	bundle, err := m.GenerateAssertion(ctx, session)
	if err != nil {
		m.emit(ctx, session.UID, false)
		m.record(ctx, false)
		return nil, err
	}

	body := map[string]string{
		"assertion":     bundle,
		"client_id":     m.cfg.ClientID,
		"response_type": "token",
		"scope":         scope,
	}

	payload, err := m.rpc.PostJSON(ctx, "/v1/authorization", body)
	if err != nil {
		m.emit(ctx, session.UID, false)
		m.record(ctx, false)
		return nil, domain.Upstream("assertion.exchange", err)
	}

	m.emit(ctx, session.UID, true)
	m.record(ctx, true)
	return payload, nil
}

// SplitBundle separates a bundle into certificate and assertion halves.
func SplitBundle(bundle string) (cert, bearer string, ok bool) {
	cert, bearer, ok = strings.Cut(bundle, bundleSeparator)
	return cert, bearer, ok && cert != "" && bearer != ""
}

func (m *Minter) emit(ctx context.Context, uid string, success bool) {
	if m.audits == nil {
		return
	}
	b := audit.NewEvent(audit.EventTokenMinted).Subject(uid)
	if success {
		b.Success()
	} else {
		b.Failure()
	}
	if err := b.Save(ctx, m.audits); err != nil {
		logger.Log.Warn("failed to record audit event",
			zap.String("type", audit.EventTokenMinted),
			zap.Error(err),
		)
	}
}

func (m *Minter) record(ctx context.Context, success bool) {
	if m.metrics != nil {
		m.metrics.RecordMint(ctx, success)
	}
}
