package domain

import (
	"errors"
	"fmt"
)

// FailureCode is the closed set of caller-visible failure classes. Every
// error leaving the core maps to exactly one of these.
type FailureCode int

const (
	// FailureInvalidToken covers not-found, expired, and malformed
	// credentials alike. Callers can never distinguish the three.
	FailureInvalidToken FailureCode = iota + 1

	// FailureUnverifiedSession is returned when a sensitive operation is
	// attempted on a login still pending second-factor confirmation.
	FailureUnverifiedSession

	// FailureRateLimited is returned when the customs check denies the
	// operation before any state change.
	FailureRateLimited

	// FailureUpstream covers token store, signer, and OAuth endpoint errors.
	FailureUpstream
)

func (c FailureCode) String() string {
	switch c {
	case FailureInvalidToken:
		return "invalid_token"
	case FailureUnverifiedSession:
		return "unverified_session"
	case FailureRateLimited:
		return "rate_limited"
	case FailureUpstream:
		return "upstream_failure"
	}
	return "unknown"
}

// Sentinels matched with errors.Is. ErrTokenNotFound doubles as the store's
// not-found signal; it maps to FailureInvalidToken at the boundary.
var (
	ErrTokenNotFound     = errors.New("domain: token not found")
	ErrInvalidToken      = errors.New("domain: invalid or expired token")
	ErrUnverifiedSession = errors.New("domain: session has not been verified")
)

// AuthError carries a failure class plus the operation that detected it, so
// upstream failures can be logged with context without leaking internals to
// the caller.
type AuthError struct {
	Code FailureCode
	Op   string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Upstream wraps an I/O failure from a collaborator.
func Upstream(op string, err error) error {
	return &AuthError{Code: FailureUpstream, Op: op, Err: err}
}

// CodeOf reports the failure class of err, defaulting to FailureUpstream for
// errors the core did not classify.
func CodeOf(err error) FailureCode {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	switch {
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrInvalidToken):
		return FailureInvalidToken
	case errors.Is(err, ErrUnverifiedSession):
		return FailureUnverifiedSession
	}
	return FailureUpstream
}
