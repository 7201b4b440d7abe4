// Package ws exposes the event stream. Dashboard clients connect once,
// issue createSession commands, and receive every tenant's lifecycle
// events (qr, ready, disconnected, ...) as they happen.
package ws
