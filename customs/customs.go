// Package customs performs abuse checks ahead of sensitive authentication
// operations. Every TOTP operation consults a Checker before touching any
// state; a denial short-circuits the operation.
package customs

import (
	"context"
	"fmt"
	"time"
)

// Checker decides whether an operation may proceed for a given subject.
type Checker interface {
	// Check returns nil when allowed and a *BlockedError when denied.
	// Infrastructure errors fail open or closed per implementation policy.
	Check(ctx context.Context, subject, action string) error
}

// Actions checked by the TOTP lifecycle.
const (
	ActionTotpCreate  = "totpCreate"
	ActionTotpDestroy = "totpDestroy"
	ActionTotpExists  = "totpExists"
	ActionTotpVerify  = "verifyTotpCode"
)

// BlockedError is returned when a request is denied.
type BlockedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("customs: %s blocked, retry after %v", e.Action, e.RetryAfter)
}

// IsBlocked checks if an error is a customs denial.
func IsBlocked(err error) bool {
	_, ok := err.(*BlockedError)
	return ok
}
