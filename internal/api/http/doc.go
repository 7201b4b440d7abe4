// Package http implements the REST messaging API: single and bulk sends,
// session status, and logout.
package http
