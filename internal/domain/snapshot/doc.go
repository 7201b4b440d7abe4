// Package snapshot packs a browser profile's authentication state into a
// compact zip archive and restores it.
//
// A full Chromium profile runs into hundreds of megabytes, almost all of it
// rebuildable cache. The manifest names the handful of files that actually
// carry the login: the cookie store, the token database's CURRENT and
// MANIFEST files, and the newest log-structured table holding the token.
// Snapshots of a logged-in profile come out around a few hundred kilobytes.
//
// Token database tables are already compressed, so they are stored rather
// than deflated; everything else uses maximum compression.
package snapshot
