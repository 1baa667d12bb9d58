package gormstore

import (
	"time"

	"github.com/emberid/ember/audit"
	"github.com/emberid/ember/domain"
)

type gormToken struct {
	ID             string           `gorm:"primaryKey"`
	UID            string           `gorm:"index"`
	Kind           domain.TokenKind `gorm:"primaryKey"`
	Secret         string
	CreatedAt      time.Time
	ExpiresAt      *time.Time `gorm:"index"`
	VerificationID *string    `gorm:"index"`

	// Set when a pending login is confirmed; VerificationID is cleared in
	// the same update.
	VerificationMethod string
	VerifiedAt         *time.Time

	Generation    int64
	LastAuthAt    time.Time
	VerifiedEmail bool
}

func (gormToken) TableName() string { return "tokens" }

func toCoreToken(gt *gormToken) *domain.Token {
	if gt == nil {
		return nil
	}
	return &domain.Token{
		ID:             gt.ID,
		UID:            gt.UID,
		Kind:           gt.Kind,
		Secret:         gt.Secret,
		CreatedAt:      gt.CreatedAt,
		ExpiresAt:      gt.ExpiresAt,
		VerificationID: gt.VerificationID,
		Generation:     gt.Generation,
		LastAuthAt:     gt.LastAuthAt,
		VerifiedEmail:  gt.VerifiedEmail,
	}
}

func fromCoreToken(t *domain.Token) *gormToken {
	if t == nil {
		return nil
	}
	return &gormToken{
		ID:             t.ID,
		UID:            t.UID,
		Kind:           t.Kind,
		Secret:         t.Secret,
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		VerificationID: t.VerificationID,
		Generation:     t.Generation,
		LastAuthAt:     t.LastAuthAt,
		VerifiedEmail:  t.VerifiedEmail,
	}
}

type gormTotpToken struct {
	UID          string `gorm:"primaryKey"`
	SharedSecret string
	Verified     bool
	Enabled      bool
	Epoch        int64
	CreatedAt    time.Time
}

func (gormTotpToken) TableName() string { return "totp_tokens" }

func toCoreTotpToken(gt *gormTotpToken) *domain.TotpToken {
	if gt == nil {
		return nil
	}
	return &domain.TotpToken{
		UID:          gt.UID,
		SharedSecret: gt.SharedSecret,
		Verified:     gt.Verified,
		Enabled:      gt.Enabled,
		Epoch:        gt.Epoch,
		CreatedAt:    gt.CreatedAt,
	}
}

func fromCoreTotpToken(t *domain.TotpToken) *gormTotpToken {
	if t == nil {
		return nil
	}
	return &gormTotpToken{
		UID:          t.UID,
		SharedSecret: t.SharedSecret,
		Verified:     t.Verified,
		Enabled:      t.Enabled,
		Epoch:        t.Epoch,
		CreatedAt:    t.CreatedAt,
	}
}

type gormAuditEvent struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	UID       string `gorm:"index"`
	Status    string `gorm:"index"`
	Message   string
	RequestID string
	CreatedAt time.Time `gorm:"index"`
}

func (gormAuditEvent) TableName() string { return "audit_events" }

func fromCoreAuditEvent(e *audit.Event) *gormAuditEvent {
	if e == nil {
		return nil
	}
	return &gormAuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		UID:       e.UID,
		Status:    e.Status,
		Message:   e.Message,
		RequestID: e.RequestID,
		CreatedAt: e.CreatedAt,
	}
}
