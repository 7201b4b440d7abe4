/*
Package monitoring provides Prometheus metrics collection for the gateway.

Tracked concerns:

  - HTTP request counts and latency per route
  - Session lifecycle (active, created, restored, logged out)
  - Snapshot backups (count, failures, archive size)
  - Message dispatch (sent, queued, failed, bulk batches)
  - WebSocket subscribers and broadcast events

Usage:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
