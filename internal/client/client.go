package client

import (
	"context"
	"errors"
	"io/fs"
)

// Info describes an authenticated session, readable once the client is ready.
type Info struct {
	PushName string `json:"pushname"`
	User     string `json:"user"`
	Platform string `json:"platform"`
}

// Message is an inbound message surfaced by the automation client.
type Message struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// Client is the surface the lifecycle manager drives. Implementations wrap an
// external automation engine; the manager never depends on how the engine is
// controlled.
type Client interface {
	// Initialize starts the underlying engine session. It returns once the
	// session handle exists; readiness is signalled asynchronously through
	// the Events sink.
	Initialize(ctx context.Context) error

	// SendMessage delivers a single message to a chat identifier.
	SendMessage(ctx context.Context, chatID, body string) error

	// Logout performs the engine's own graceful teardown.
	Logout(ctx context.Context) error

	// Close releases local resources such as the event stream without
	// logging the engine session out. Safe to call more than once.
	Close() error

	// Info returns session identity details. Zero value until ready.
	Info() Info
}

// Events receives lifecycle signals from a client. One sink is registered per
// client instance at construction.
type Events interface {
	OnQR(data string)
	OnLoadingScreen()
	OnAuthFailure(reason string)
	OnReady()
	OnMessage(msg Message)
	OnDisconnected(reason string)
	OnError(err error)
}

// Config carries per-tenant construction parameters.
type Config struct {
	TenantID string
	DataDir  string
}

// Factory constructs a client bound to an event sink.
type Factory func(cfg Config, events Events) (Client, error)

// EngineError is a machine-readable error reported by the automation engine.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// codeMissingResource is the engine's code for a local file vanishing out
// from under the session (the recoverable transient class).
const codeMissingResource = "ENOENT"

// IsMissingResource reports whether err belongs to the transient class that
// the lifecycle manager recovers from by recreating the session.
func IsMissingResource(err error) bool {
	if err == nil {
		return false
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Code == codeMissingResource {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}
