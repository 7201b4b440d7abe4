package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/client"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Opener starts tenant sessions on behalf of stream subscribers.
type Opener interface {
	Open(ctx context.Context, tenantID string) error
}

// Hub fans session lifecycle events out to every connected subscriber and
// accepts the createSession command. It implements session.Observer.
type Hub struct {
	upgrader websocket.Upgrader
	opener   Opener
	metrics  *monitoring.Metrics
	logger   *logging.Logger

	mu    sync.RWMutex
	conns map[*subscriber]struct{}
}

// subscriber serializes writes; gorilla connections allow one writer at a
// time.
type subscriber struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *subscriber) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteJSON(v)
}

// NewHub creates a hub. Bind must be called before serving connections.
func NewHub(metrics *monitoring.Metrics, logger *logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: metrics,
		logger:  logger,
		conns:   make(map[*subscriber]struct{}),
	}
}

// Bind attaches the session opener. Split from NewHub because the manager
// needs the hub as its observer before it exists itself.
func (h *Hub) Bind(opener Opener) {
	h.opener = opener
}

// envelope is the wire shape of both directions on the stream.
type envelope struct {
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data,omitempty"`

	// Command fields, client to server.
	Action   string `json:"action,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// HandleConnection upgrades the request and serves the subscriber until it
// disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{ws: ws}
	h.mu.Lock()
	h.conns[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.WSConnections.Inc()
	defer h.drop(sub)

	_ = sub.send(envelope{Event: "connected", Data: gin.H{"timestamp": time.Now().UTC()}})

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go h.ping(sub, done)

	for {
		var cmd envelope
		if err := ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.dispatch(cmd, sub)
	}
}

func (h *Hub) dispatch(cmd envelope, sub *subscriber) {
	switch cmd.Action {
	case "createSession":
		if cmd.ClientID == "" {
			_ = sub.send(envelope{Event: "error", Data: gin.H{"message": "clientId required"}})
			return
		}
		go func() {
			if err := h.opener.Open(context.Background(), cmd.ClientID); err != nil {
				h.logger.Warn("createSession failed",
					zap.String("tenant_id", cmd.ClientID),
					zap.Error(err))
				h.Broadcast("error", gin.H{"clientId": cmd.ClientID, "message": err.Error()})
			}
		}()
	default:
		h.logger.Debug("unknown stream command", zap.String("action", cmd.Action))
	}
}

func (h *Hub) ping(sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sub.mu.Lock()
			sub.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := sub.ws.WriteMessage(websocket.PingMessage, nil)
			sub.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.conns[sub]; ok {
		delete(h.conns, sub)
		h.metrics.WSConnections.Dec()
	}
	h.mu.Unlock()
	sub.ws.Close()
}

// Broadcast sends an event to every subscriber, dropping any whose
// connection has gone bad.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.conns))
	for sub := range h.conns {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	env := envelope{Event: event, Data: data}
	for _, sub := range subs {
		if err := sub.send(env); err != nil {
			h.drop(sub)
		}
	}
	h.metrics.RecordWSEvent(event)
}

// Subscribers returns the number of connected stream clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Observer implementation: lifecycle events on the stream mirror the shapes
// dashboard clients already consume.

func (h *Hub) QR(tenantID, code string) {
	h.Broadcast("qr", gin.H{"clientId": tenantID, "qr": code})
}

func (h *Hub) LoadingScreen(tenantID string) {
	h.Broadcast("loading_screen", gin.H{"clientId": tenantID, "isLoading": true})
}

func (h *Hub) AuthFailure(tenantID, reason string) {
	h.Broadcast("auth_failure", gin.H{"clientId": tenantID, "reason": reason})
}

func (h *Hub) Ready(tenantID, token string, info client.Info) {
	h.Broadcast("ready", gin.H{
		"clientId": tenantID,
		"token":    token,
		"pushname": info.PushName,
		"user":     info.User,
	})
}

func (h *Hub) RemoteSessionSaved(tenantID string) {
	h.Broadcast("remote_session_saved", gin.H{"clientId": tenantID})
}

func (h *Hub) Disconnected(tenantID, reason string) {
	h.Broadcast("disconnected", gin.H{"clientId": tenantID, "reason": reason})
}

func (h *Hub) ClientLogout(tenantID string) {
	h.Broadcast("client:logout", gin.H{
		"clientId":  tenantID,
		"status":    "logged_out",
		"timestamp": time.Now().UTC(),
	})
}
