package totp

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/emberid/ember/audit"
	"github.com/emberid/ember/customs"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/logger"
	"github.com/emberid/ember/telemetry"
)

// Manager drives the TOTP token state machine:
//
//	absent -> pending (Create) -> verified+enabled (first valid VerifyCode)
//	pending -> absent (Destroy, or the Exists self-heal)
//	verified+enabled -> absent (Destroy only)
//
// Every operation checks customs first and fetches fresh state from the
// store; nothing is cached across requests.
type Manager struct {
	store   domain.TokenStore
	checker customs.Checker
	issuer  string
	params  Params

	audits  audit.Store
	metrics *telemetry.Provider
	now     func() time.Time
}

// NewManager creates a TOTP lifecycle manager. The issuer names the service
// in provisioning URIs.
func NewManager(store domain.TokenStore, checker customs.Checker, issuer string, params Params) *Manager {
	return &Manager{
		store:   store,
		checker: checker,
		issuer:  issuer,
		params:  params,
		now:     time.Now,
	}
}

// SetAuditStore enables audit event recording.
func (m *Manager) SetAuditStore(s audit.Store) { m.audits = s }

// SetTelemetry enables metric recording.
func (m *Manager) SetTelemetry(p *telemetry.Provider) { m.metrics = p }

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// CreateResult is returned from Create.
type CreateResult struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
}

// Create generates a fresh shared secret for the session's owner and persists
// it unverified. The caller receives the secret and a scannable QR data URI.
// A session still pending second-factor confirmation cannot bind a new factor.
func (m *Manager) Create(ctx context.Context, session *domain.Token, email string) (*CreateResult, error) {
	if err := m.check(ctx, session, email, customs.ActionTotpCreate); err != nil {
		return nil, err
	}
	if !session.Verified() {
		return nil, domain.ErrUnverifiedSession
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, domain.Upstream("totp.create", err)
	}

	token := &domain.TotpToken{
		UID:          session.UID,
		SharedSecret: secret,
		CreatedAt:    m.now(),
	}
	if err := m.store.CreateTotpToken(ctx, token); err != nil {
		return nil, domain.Upstream("totp.create", err)
	}

	uri, err := ProvisioningURI(secret, email, m.issuer, m.params)
	if err != nil {
		return nil, domain.Upstream("totp.create", err)
	}
	qr, err := QRCodeDataURI(uri)
	if err != nil {
		return nil, domain.Upstream("totp.create", err)
	}

	m.emit(ctx, audit.EventTotpCreated, session.UID, true)
	if m.metrics != nil {
		m.metrics.RecordTotp(ctx, "create", true)
	}

	return &CreateResult{Secret: secret, QRCodeURL: qr}, nil
}

// Destroy deletes the session owner's TOTP token. It is idempotent: a missing
// token is success.
func (m *Manager) Destroy(ctx context.Context, session *domain.Token, email string) error {
	if err := m.check(ctx, session, email, customs.ActionTotpDestroy); err != nil {
		return err
	}
	if !session.Verified() {
		return domain.ErrUnverifiedSession
	}

	if err := m.store.DeleteTotpToken(ctx, session.UID); err != nil {
		if !errors.Is(err, domain.ErrTokenNotFound) {
			return domain.Upstream("totp.destroy", err)
		}
	}

	m.emit(ctx, audit.EventTotpDestroyed, session.UID, true)
	if m.metrics != nil {
		m.metrics.RecordTotp(ctx, "destroy", true)
	}
	return nil
}

// Exists reports whether the session's owner has a confirmed TOTP token. An
// unverified token is an abandoned setup attempt: it is reaped on first
// observation and never reported as existing. The reap is a single
// conditional delete at the store so a racing Create cannot be lost.
func (m *Manager) Exists(ctx context.Context, session *domain.Token, email string) (bool, error) {
	if err := m.check(ctx, session, email, customs.ActionTotpExists); err != nil {
		return false, err
	}
	if !session.Verified() {
		return false, domain.ErrUnverifiedSession
	}

	token, err := m.store.GetTotpToken(ctx, session.UID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return false, nil
		}
		return false, domain.Upstream("totp.exists", err)
	}

	if !token.Verified {
		if _, err := m.store.DeleteUnverifiedTotpToken(ctx, session.UID); err != nil {
			logger.Log.Warn("failed to reap unverified totp token",
				zap.String("uid", session.UID),
				zap.Error(err),
			)
		}
		return false, nil
	}

	return true, nil
}

// VerifyCode checks a submitted code against the owner's shared secret. A
// valid first code flips the token to verified+enabled in one atomic store
// update. When the session itself is still pending confirmation, a valid
// code also marks it verified via the totp-2fa method. An invalid code is a
// normal false result, not an error.
func (m *Manager) VerifyCode(ctx context.Context, session *domain.Token, email, code string) (bool, error) {
	if err := m.check(ctx, session, email, customs.ActionTotpVerify); err != nil {
		return false, err
	}

	token, err := m.store.GetTotpToken(ctx, session.UID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return false, domain.ErrInvalidToken
		}
		return false, domain.Upstream("totp.verify", err)
	}

	// The token's epoch shifts the counter baseline; zero is the Unix epoch.
	at := m.now()
	if token.Epoch != 0 {
		at = at.Add(-time.Duration(token.Epoch) * time.Second)
	}
	ok := VerifyCode(token.SharedSecret, code, at, m.params)
	if !ok {
		m.emit(ctx, audit.EventTotpUnverified, session.UID, false)
		if m.metrics != nil {
			m.metrics.RecordTotp(ctx, "verify", false)
		}
		return false, nil
	}

	if !token.Verified {
		if err := m.store.ConfirmTotpToken(ctx, session.UID); err != nil {
			return false, domain.Upstream("totp.verify", err)
		}
	}

	if session.VerificationID != nil {
		err := m.store.VerifyTokenWithMethod(ctx, *session.VerificationID, session.UID, domain.VerificationMethodTOTP)
		if err != nil {
			return false, domain.Upstream("totp.verify", err)
		}
		m.emit(ctx, audit.EventSessionVerified, session.UID, true)
	}

	m.emit(ctx, audit.EventTotpVerified, session.UID, true)
	if m.metrics != nil {
		m.metrics.RecordTotp(ctx, "verify", true)
	}
	return true, nil
}

// check runs the customs gate for an operation. Denials are audited before
// they propagate.
func (m *Manager) check(ctx context.Context, session *domain.Token, email, action string) error {
	err := m.checker.Check(ctx, email, action)
	if err == nil {
		return nil
	}
	if customs.IsBlocked(err) && m.audits != nil {
		saveErr := audit.NewEvent(audit.EventRateLimited).
			Subject(session.UID).
			Blocked().
			Message(action).
			Save(ctx, m.audits)
		if saveErr != nil {
			logger.Log.Warn("failed to record audit event",
				zap.String("type", audit.EventRateLimited),
				zap.Error(saveErr),
			)
		}
	}
	return err
}

func (m *Manager) emit(ctx context.Context, eventType, uid string, success bool) {
	if m.audits == nil {
		return
	}
	b := audit.NewEvent(eventType).Subject(uid)
	if success {
		b.Success()
	} else {
		b.Failure()
	}
	if err := b.Save(ctx, m.audits); err != nil {
		logger.Log.Warn("failed to record audit event",
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}
