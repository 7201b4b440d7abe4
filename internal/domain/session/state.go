package session

import (
	"errors"

	"github.com/chatrelay/gateway/internal/client"
)

// ErrNotFound is returned for operations on a tenant with no live session.
var ErrNotFound = errors.New("client session not found")

// State tracks where a session is in its lifecycle.
type State int

const (
	// StateInitializing covers engine startup and snapshot restore.
	StateInitializing State = iota
	// StateAwaitingAuth means the engine is up and showing a QR code.
	StateAwaitingAuth
	// StateReady means the session is authenticated and can send.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of one tenant's session.
type Status struct {
	Ready      bool
	State      State
	Info       client.Info
	QueueDepth int
}

// Stats summarizes the manager for health reporting.
type Stats struct {
	Sessions int `json:"sessions"`
	Ready    int `json:"ready"`
}
