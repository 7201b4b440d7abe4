// Package client defines the automation client consumed by the session
// lifecycle manager, and an adapter that drives a browser-engine sidecar
// over HTTP with a WebSocket event stream.
//
// The lifecycle manager only sees the Client and Events interfaces; the
// engine adapter is a thin I/O wrapper and carries no lifecycle logic.
package client
