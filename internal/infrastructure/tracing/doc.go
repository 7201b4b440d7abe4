// Package tracing provides lightweight request tracing. Spans are logged
// rather than exported; the trace headers make it possible to correlate a
// gateway request with engine-side logs.
package tracing
