package session

import "github.com/chatrelay/gateway/internal/client"

// Observer receives tenant lifecycle notifications. The WebSocket hub is
// the production implementation; the manager never knows who is listening.
type Observer interface {
	QR(tenantID, code string)
	LoadingScreen(tenantID string)
	AuthFailure(tenantID, reason string)
	Ready(tenantID, token string, info client.Info)
	RemoteSessionSaved(tenantID string)
	Disconnected(tenantID, reason string)
	ClientLogout(tenantID string)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) QR(string, string)                  {}
func (NopObserver) LoadingScreen(string)               {}
func (NopObserver) AuthFailure(string, string)         {}
func (NopObserver) Ready(string, string, client.Info)  {}
func (NopObserver) RemoteSessionSaved(string)          {}
func (NopObserver) Disconnected(string, string)        {}
func (NopObserver) ClientLogout(string)                {}
