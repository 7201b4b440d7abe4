package sessionstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("session snapshot not found")

// Store persists compressed session snapshots keyed by session name.
type Store interface {
	// Exists reports whether a snapshot is stored for the session.
	Exists(ctx context.Context, session string) (bool, error)

	// Save uploads the snapshot file at zipPath, replacing any previous
	// snapshot for the session. The stored blob is never left half-written.
	Save(ctx context.Context, session, zipPath string) error

	// Restore writes the stored snapshot to zipPath. A session without a
	// snapshot is expected, not exceptional; the ErrNotFound sentinel lets
	// callers treat that case as a no-op rather than a failure.
	Restore(ctx context.Context, session, zipPath string) error

	// Delete removes the session's snapshot. Deleting a missing snapshot
	// is not an error.
	Delete(ctx context.Context, session string) error

	// Close releases underlying resources.
	Close()
}

// TableInfo names the table and columns snapshots live in. Deployments
// point the gateway at existing schemas, so none of these are hard-coded.
type TableInfo struct {
	Table         string
	SessionColumn string
	DataColumn    string
	// UpdatedColumn is the timestamp column touched on every save.
	// Defaults to "updated_at" when empty.
	UpdatedColumn string
}
