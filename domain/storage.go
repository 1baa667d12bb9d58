package domain

import "github.com/emberid/ember/audit"

// Storage defines the interface for all persistence operations.
type Storage interface {
	TokenStore
	audit.Store
}
