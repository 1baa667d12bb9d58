// Package audit records structured security events for the authentication
// core. Events are persisted through a Store so deployments can back them
// with the same database as the token store or ship them elsewhere.
package audit

import (
	"context"
	"time"
)

// Event represents a structured security event record.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`       // e.g. "totp.verified"
	UID       string    `json:"uid"`        // the affected account
	Status    string    `json:"status"`     // "success", "failure", "blocked"
	Message   string    `json:"message"`    // human-readable summary
	RequestID string    `json:"request_id"` // for request correlation
	CreatedAt time.Time `json:"created_at"`
}

// Predefined event types.
const (
	EventTotpCreated     = "totp.created"
	EventTotpVerified    = "totp.verified"
	EventTotpUnverified  = "totp.unverified"
	EventTotpDestroyed   = "totp.destroyed"
	EventTokenPruned     = "token.pruned"
	EventSessionVerified = "session.verified"
	EventTokenMinted     = "oauth.token.minted"
	EventRateLimited     = "security.rate_limited"
)

// Store persists audit events.
type Store interface {
	SaveEvent(ctx context.Context, event *Event) error
}

// Builder provides a fluent API for creating events.
type Builder struct {
	event *Event
}

// NewEvent starts building a new audit event.
func NewEvent(eventType string) *Builder {
	return &Builder{event: &Event{Type: eventType, CreatedAt: time.Now()}}
}

func (b *Builder) ID(id string) *Builder {
	b.event.ID = id
	return b
}

func (b *Builder) Subject(uid string) *Builder {
	b.event.UID = uid
	return b
}

func (b *Builder) Success() *Builder {
	b.event.Status = "success"
	return b
}

func (b *Builder) Failure() *Builder {
	b.event.Status = "failure"
	return b
}

func (b *Builder) Blocked() *Builder {
	b.event.Status = "blocked"
	return b
}

func (b *Builder) Message(msg string) *Builder {
	b.event.Message = msg
	return b
}

func (b *Builder) RequestID(id string) *Builder {
	b.event.RequestID = id
	return b
}

// Build returns the constructed event.
func (b *Builder) Build() *Event {
	return b.event
}

// Save persists the event using the provided store.
func (b *Builder) Save(ctx context.Context, store Store) error {
	return store.SaveEvent(ctx, b.event)
}
