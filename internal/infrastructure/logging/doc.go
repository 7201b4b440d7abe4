// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Session ready", zap.String("tenant_id", tenantID))
//	logger.Error("Snapshot backup failed", zap.Error(err))
package logging
