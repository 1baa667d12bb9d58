// Package auth resolves signed-request bearer credentials into verified
// principals. A Resolver is bound to one token kind; inbound requests pass
// through a Resolver before reaching any route handler.
package auth

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/emberid/ember/audit"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/logger"
	"github.com/emberid/ember/telemetry"
)

// Token ids are fixed-length lowercase hex. Anything else resolves exactly
// like a credential that never existed, so format errors cannot be used to
// probe for valid ids.
var tokenIDPattern = regexp.MustCompile("^[0-9a-f]{64}$")

// Resolver resolves credential ids for a single token kind.
type Resolver struct {
	store domain.TokenStore
	kind  domain.TokenKind

	// name distinguishes strategy variants in logs and metrics. The
	// key-fetch-with-verification-status variant is mechanically identical:
	// every resolver surfaces VerificationID untouched and leaves the
	// fully-authenticated rule to the route handler.
	name string

	audits  audit.Store
	metrics *telemetry.Provider
	now     func() time.Time
}

// NewResolver creates a resolver bound to the given token kind.
func NewResolver(store domain.TokenStore, kind domain.TokenKind) *Resolver {
	return &Resolver{
		store: store,
		kind:  kind,
		name:  string(kind),
		now:   time.Now,
	}
}

// NewKeyFetchWithVerificationStatusResolver creates the pass-through
// key-fetch variant for callers that inspect the verification state
// themselves.
func NewKeyFetchWithVerificationStatusResolver(store domain.TokenStore) *Resolver {
	r := NewResolver(store, domain.KindKeyFetch)
	r.name = "keyFetchWithVerificationStatus"
	return r
}

// SetAuditStore enables audit event recording.
func (r *Resolver) SetAuditStore(s audit.Store) { r.audits = s }

// SetTelemetry enables metric recording.
func (r *Resolver) SetTelemetry(p *telemetry.Provider) { r.metrics = p }

// SetClock overrides the time source.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// Name returns the strategy name for diagnostics.
func (r *Resolver) Name() string { return r.name }

// Resolve fetches the token by id and checks its expiry. Malformed ids,
// unknown ids, and expired tokens all surface as the same invalid-token
// failure. An expired session token is pruned from the store as a side
// effect; prune failures never block the failure response.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) (*domain.Token, error) {
	if !tokenIDPattern.MatchString(tokenID) {
		r.record(ctx, false)
		return nil, domain.ErrInvalidToken
	}

	token, err := r.store.GetToken(ctx, r.kind, tokenID)
	if err != nil {
		r.record(ctx, false)
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, domain.Upstream("auth.resolve."+r.name, err)
	}

	if token.Expired(r.now()) {
		if r.kind == domain.KindSession {
			if err := r.store.PruneSessionToken(ctx, token.UID, token.ID); err != nil {
				logger.Log.Debug("failed to prune expired session token",
					zap.String("uid", token.UID),
					zap.Error(err),
				)
			} else if r.audits != nil {
				err := audit.NewEvent(audit.EventTokenPruned).
					Subject(token.UID).
					Success().
					Save(ctx, r.audits)
				if err != nil {
					logger.Log.Warn("failed to record audit event",
						zap.String("type", audit.EventTokenPruned),
						zap.Error(err),
					)
				}
			}
		}
		r.record(ctx, false)
		return nil, domain.ErrInvalidToken
	}

	r.record(ctx, true)
	return token, nil
}

func (r *Resolver) record(ctx context.Context, success bool) {
	if r.metrics != nil {
		r.metrics.RecordResolution(ctx, r.name, success)
	}
}
