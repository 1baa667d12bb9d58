// Package domain defines the core types and storage contracts for the Ember
// authentication core.
//
// This package provides the fundamental contracts that storage implementations
// must fulfill. It abstracts persistence for bearer tokens and TOTP tokens,
// allowing any backend (GORM, Redis, etc.) to serve as the token store.
//
// # Interfaces
//
//   - TokenStore: bearer token and TOTP token persistence
//   - Storage: composite interface combining all storage operations
//
// See the gormstore package for a complete GORM-based implementation.
package domain

import (
	"context"
	"time"
)

// TokenKind identifies the class of a bearer token. Each kind lives in its
// own table and grants a distinct capability.
type TokenKind string

const (
	KindSession        TokenKind = "session"
	KindKeyFetch       TokenKind = "key_fetch"
	KindAccountReset   TokenKind = "account_reset"
	KindPasswordForgot TokenKind = "password_forgot"
	KindPasswordChange TokenKind = "password_change"
)

// TokenIDBytes is the length of a raw token id; ids are presented hex-encoded.
const TokenIDBytes = 32

// Token is an opaque bearer credential. Possession of the id (and the secret
// it derives) grants the capability the kind represents.
type Token struct {
	ID        string    `json:"id"` // hex, lookup key and request-signing key identifier
	UID       string    `json:"uid"`
	Kind      TokenKind `json:"kind"`
	Secret    string    `json:"-"` // hex key material for request-signature derivation
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is nil for kinds that never expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// VerificationID is set while the owning login has not yet been confirmed
	// by a second factor. A token carrying one is not fully authenticated.
	VerificationID *string `json:"token_verification_id,omitempty"`

	// Generation is the verifier-set timestamp of the account's current
	// password generation; assertion certificates are bound to it.
	Generation    int64     `json:"generation"`
	LastAuthAt    time.Time `json:"last_auth_at"`
	VerifiedEmail bool      `json:"verified_email"`
}

// Expired reports whether the token has an expiry and it has passed.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Verified reports whether the owning login has been confirmed. Operations
// that assume full authentication must reject unverified tokens.
func (t *Token) Verified() bool {
	return t.VerificationID == nil
}

// TotpToken holds a user's TOTP second factor. At most one live row per UID.
//
// State machine: absent -> pending (create) -> verified+enabled (first valid
// code). Enabled implies Verified; the transition to verified is one-way.
type TotpToken struct {
	UID          string    `json:"uid"`
	SharedSecret string    `json:"-"` // hex
	Verified     bool      `json:"verified"`
	Enabled      bool      `json:"enabled"`
	Epoch        int64     `json:"epoch"` // counter baseline in seconds, 0 = Unix epoch
	CreatedAt    time.Time `json:"created_at"`
}

// VerificationMethodTOTP is the method recorded when a pending session is
// confirmed by a TOTP code.
const VerificationMethodTOTP = "totp-2fa"

// TokenStore defines the persistence contract for bearer and TOTP tokens.
// The store is the sole arbiter of atomicity: conditional updates and deletes
// must be applied as single operations.
type TokenStore interface {
	// GetToken fetches a token of the given kind by id.
	// Returns ErrTokenNotFound when no such token exists.
	GetToken(ctx context.Context, kind TokenKind, id string) (*Token, error)

	// CreateToken persists a new token.
	CreateToken(ctx context.Context, t *Token) error

	// DeleteToken removes a token by kind and id.
	DeleteToken(ctx context.Context, kind TokenKind, id string) error

	// PruneSessionToken removes an expired session token from the user's
	// pruning set. Callers treat failures as best-effort.
	PruneSessionToken(ctx context.Context, uid, id string) error

	// DeleteExpiredTokens removes every token of the kind whose expiry has
	// passed. Returns the number of rows removed.
	DeleteExpiredTokens(ctx context.Context, kind TokenKind) (int64, error)

	// VerifyTokenWithMethod marks the pending login identified by
	// verificationID as confirmed via the given method.
	VerifyTokenWithMethod(ctx context.Context, verificationID, uid, method string) error

	// GetTotpToken fetches the user's TOTP token.
	// Returns ErrTokenNotFound when the user has none.
	GetTotpToken(ctx context.Context, uid string) (*TotpToken, error)

	// CreateTotpToken persists a new, unverified TOTP token.
	CreateTotpToken(ctx context.Context, t *TotpToken) error

	// ConfirmTotpToken atomically sets verified=true, enabled=true for the
	// user's TOTP token. The transition is one-way; confirming an already
	// confirmed token is a no-op.
	ConfirmTotpToken(ctx context.Context, uid string) error

	// DeleteTotpToken removes the user's TOTP token. Deleting a missing
	// token returns ErrTokenNotFound; callers that need idempotency treat
	// that as success.
	DeleteTotpToken(ctx context.Context, uid string) error

	// DeleteUnverifiedTotpToken removes the user's TOTP token only if it is
	// still unverified, as a single conditional operation. Reports whether a
	// row was removed.
	DeleteUnverifiedTotpToken(ctx context.Context, uid string) (bool, error)
}
