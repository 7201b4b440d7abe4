// Package dispatch handles outbound message delivery: a per-tenant queue
// for messages accepted before the session is ready, and a paced bulk
// sender for recipient lists.
package dispatch
