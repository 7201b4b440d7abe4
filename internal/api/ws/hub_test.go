package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/gateway/internal/client"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/infrastructure/monitoring"
)

type recordingOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *recordingOpener) Open(_ context.Context, tenantID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, tenantID)
	return nil
}

func (o *recordingOpener) tenants() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

type wireEvent struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func newTestStream(t *testing.T) (*Hub, *recordingOpener, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(monitoring.NewMetrics(), logging.NewNop())
	opener := &recordingOpener{}
	hub.Bind(opener)

	router := gin.New()
	router.GET("/stream", hub.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, opener, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestStreamWelcomesSubscriber(t *testing.T) {
	hub, _, conn := newTestStream(t)

	ev := readEvent(t, conn)
	assert.Equal(t, "connected", ev.Event)
	assert.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
}

func TestStreamCreateSessionCommand(t *testing.T) {
	_, opener, conn := newTestStream(t)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":   "createSession",
		"clientId": "acme",
	}))

	assert.Eventually(t, func() bool {
		tenants := opener.tenants()
		return len(tenants) == 1 && tenants[0] == "acme"
	}, time.Second, 10*time.Millisecond)
}

func TestStreamCreateSessionMissingClientID(t *testing.T) {
	_, opener, conn := newTestStream(t)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "createSession"}))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Event)
	assert.Empty(t, opener.tenants())
}

func TestStreamBroadcastsLifecycleEvents(t *testing.T) {
	hub, _, conn := newTestStream(t)
	readEvent(t, conn)

	hub.QR("acme", "qr-payload")
	ev := readEvent(t, conn)
	assert.Equal(t, "qr", ev.Event)
	assert.Equal(t, "acme", ev.Data["clientId"])
	assert.Equal(t, "qr-payload", ev.Data["qr"])

	info := client.Info{PushName: "Tester", User: "919876543210", Platform: "android"}
	hub.Ready("acme", "minted-token", info)
	ev = readEvent(t, conn)
	assert.Equal(t, "ready", ev.Event)
	assert.Equal(t, "minted-token", ev.Data["token"])
	assert.Equal(t, "Tester", ev.Data["pushname"])
	assert.Equal(t, "919876543210", ev.Data["user"])

	hub.ClientLogout("acme")
	ev = readEvent(t, conn)
	assert.Equal(t, "client:logout", ev.Event)
	assert.Equal(t, "logged_out", ev.Data["status"])
	assert.NotEmpty(t, ev.Data["timestamp"])
}

func TestStreamDropsSubscriberOnDisconnect(t *testing.T) {
	hub, _, conn := newTestStream(t)
	readEvent(t, conn)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
