/*
Package session manages the lifecycle of tenant messaging sessions.

Each tenant gets at most one live session. Creation restores the tenant's
stored snapshot into a fresh profile directory when one exists, then starts
an engine session against it; once the engine reports ready, the manager
issues a bearer credential, flushes any messages queued during startup, and
begins periodic snapshot backups.

Transient local failures (the engine losing its profile files mid-run) are
recovered by tearing the session down and recreating it from the stored
snapshot, bounded by a retry policy. Logout is the only operation that
destroys the stored snapshot.
*/
package session
