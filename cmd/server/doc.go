// Command server runs the ChatRelay Gateway: a multi-tenant messaging
// session gateway with remote snapshot persistence and queued dispatch.
package main
