// Package gormstore provides the GORM-backed token store for the Ember
// authentication core. Conditional state transitions (confirming a TOTP
// token, reaping an unverified one) are single SQL statements so concurrent
// requests cannot observe or produce half-applied updates.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/emberid/ember/audit"
	"github.com/emberid/ember/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&gormToken{},
		&gormTotpToken{},
		&gormAuditEvent{},
	)
}

func (r *Repository) GetToken(ctx context.Context, kind domain.TokenKind, id string) (*domain.Token, error) {
	var gt gormToken
	err := r.db.WithContext(ctx).First(&gt, "id = ? AND kind = ?", id, kind).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return toCoreToken(&gt), nil
}

func (r *Repository) CreateToken(ctx context.Context, t *domain.Token) error {
	return r.db.WithContext(ctx).Create(fromCoreToken(t)).Error
}

func (r *Repository) DeleteToken(ctx context.Context, kind domain.TokenKind, id string) error {
	res := r.db.WithContext(ctx).Delete(&gormToken{}, "id = ? AND kind = ?", id, kind)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *Repository) PruneSessionToken(ctx context.Context, uid, id string) error {
	return r.db.WithContext(ctx).
		Delete(&gormToken{}, "id = ? AND uid = ? AND kind = ?", id, uid, domain.KindSession).
		Error
}

func (r *Repository) DeleteExpiredTokens(ctx context.Context, kind domain.TokenKind) (int64, error) {
	res := r.db.WithContext(ctx).
		Delete(&gormToken{}, "kind = ? AND expires_at IS NOT NULL AND expires_at < ?", kind, time.Now())
	return res.RowsAffected, res.Error
}

func (r *Repository) VerifyTokenWithMethod(ctx context.Context, verificationID, uid, method string) error {
	res := r.db.WithContext(ctx).
		Model(&gormToken{}).
		Where("verification_id = ? AND uid = ?", verificationID, uid).
		Updates(map[string]any{
			"verification_id":     nil,
			"verification_method": method,
			"verified_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *Repository) GetTotpToken(ctx context.Context, uid string) (*domain.TotpToken, error) {
	var gt gormTotpToken
	err := r.db.WithContext(ctx).First(&gt, "uid = ?", uid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return toCoreTotpToken(&gt), nil
}

func (r *Repository) CreateTotpToken(ctx context.Context, t *domain.TotpToken) error {
	return r.db.WithContext(ctx).Create(fromCoreTotpToken(t)).Error
}

func (r *Repository) ConfirmTotpToken(ctx context.Context, uid string) error {
	res := r.db.WithContext(ctx).
		Model(&gormTotpToken{}).
		Where("uid = ?", uid).
		Updates(map[string]any{"verified": true, "enabled": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *Repository) DeleteTotpToken(ctx context.Context, uid string) error {
	res := r.db.WithContext(ctx).Delete(&gormTotpToken{}, "uid = ?", uid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *Repository) DeleteUnverifiedTotpToken(ctx context.Context, uid string) (bool, error) {
	res := r.db.WithContext(ctx).
		Delete(&gormTotpToken{}, "uid = ? AND verified = ?", uid, false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) SaveEvent(ctx context.Context, event *audit.Event) error {
	ge := fromCoreAuditEvent(event)
	if ge.ID == "" {
		ge.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(ge).Error
}
