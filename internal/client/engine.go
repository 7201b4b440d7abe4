package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/infrastructure/resilience"
)

// EngineConfig configures the sidecar engine adapter.
type EngineConfig struct {
	// Address is the engine's base HTTP address, e.g. "http://localhost:7300".
	Address string
}

// Engine drives a browser automation sidecar over its HTTP control API and
// consumes its per-session WebSocket event stream.
type Engine struct {
	http    *resty.Client
	breaker *resilience.Breaker
	base    string
	logger  *logging.Logger
}

// NewEngine creates an adapter for the engine at cfg.Address.
func NewEngine(cfg EngineConfig, logger *logging.Logger) *Engine {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 15 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(60 * time.Second).
		SetHeader("User-Agent", "ChatRelay-Gateway/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New("engine", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
	})

	return &Engine{
		http:    restyClient,
		breaker: breaker,
		base:    strings.TrimRight(cfg.Address, "/"),
		logger:  logger,
	}
}

// NewSession returns a Client bound to one engine session. Satisfies Factory
// when curried: manager wiring uses engine.Factory().
func (e *Engine) NewSession(cfg Config, events Events) (Client, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant id required")
	}
	return &engineSession{
		engine: e,
		cfg:    cfg,
		events: events,
		logger: e.logger.With(zap.String("tenant_id", cfg.TenantID)),
	}, nil
}

// Factory adapts the engine to the client Factory signature.
func (e *Engine) Factory() Factory {
	return e.NewSession
}

// engineSession is one tenant's handle on the sidecar.
type engineSession struct {
	engine *Engine
	cfg    Config
	events Events
	logger *logging.Logger

	mu     sync.RWMutex
	info   Info
	conn   *websocket.Conn
	closed bool
}

// engineEnvelope is the wire shape of both error responses and stream events.
type engineEnvelope struct {
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *engineSession) Initialize(ctx context.Context) error {
	body := map[string]string{
		"session_id": s.cfg.TenantID,
		"data_dir":   s.cfg.DataDir,
	}

	resp, err := s.engine.execute(func() (*resty.Response, error) {
		return s.engine.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(s.engine.base + "/v1/sessions")
	})
	if err != nil {
		return fmt.Errorf("create engine session: %w", err)
	}
	if resp.IsError() {
		return decodeEngineError(resp)
	}

	conn, err := s.dialEvents(ctx)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	go s.pumpEvents(conn)
	return nil
}

func (s *engineSession) SendMessage(ctx context.Context, chatID, msg string) error {
	body := map[string]string{
		"chat_id": chatID,
		"body":    msg,
	}

	resp, err := s.engine.execute(func() (*resty.Response, error) {
		return s.engine.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(s.engine.base + "/v1/sessions/" + url.PathEscape(s.cfg.TenantID) + "/messages")
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return decodeEngineError(resp)
	}
	return nil
}

func (s *engineSession) Logout(ctx context.Context) error {
	resp, err := s.engine.execute(func() (*resty.Response, error) {
		return s.engine.http.R().
			SetContext(ctx).
			Delete(s.engine.base + "/v1/sessions/" + url.PathEscape(s.cfg.TenantID))
	})

	s.closeStream()

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if resp.IsError() {
		return decodeEngineError(resp)
	}
	return nil
}

// Close tears down the event stream, ending pumpEvents without a logout
// round-trip to the engine.
func (s *engineSession) Close() error {
	s.closeStream()
	return nil
}

func (s *engineSession) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *engineSession) dialEvents(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := url.Parse(s.engine.base)
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/v1/sessions/" + url.PathEscape(s.cfg.TenantID) + "/events"

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	return conn, err
}

// pumpEvents translates the engine's event stream into Events callbacks.
// Runs until the connection closes; a read error on a live session surfaces
// through OnDisconnected.
func (s *engineSession) pumpEvents(conn *websocket.Conn) {
	for {
		var env engineEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if !closed {
				s.events.OnDisconnected("event stream closed: " + err.Error())
			}
			return
		}
		s.dispatch(env)
	}
}

func (s *engineSession) dispatch(env engineEnvelope) {
	switch env.Event {
	case "qr":
		var payload struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("malformed qr event", zap.Error(err))
			return
		}
		s.events.OnQR(payload.Code)

	case "loading_screen":
		s.events.OnLoadingScreen()

	case "auth_failure":
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(env.Data, &payload)
		s.events.OnAuthFailure(payload.Reason)

	case "ready":
		var payload Info
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("malformed ready event", zap.Error(err))
		}
		s.mu.Lock()
		s.info = payload
		s.mu.Unlock()
		s.events.OnReady()

	case "message":
		var payload Message
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		s.events.OnMessage(payload)

	case "disconnected":
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(env.Data, &payload)
		s.events.OnDisconnected(payload.Reason)

	case "error":
		if env.Error != nil {
			s.events.OnError(&EngineError{Code: env.Error.Code, Message: env.Error.Message})
			return
		}
		s.events.OnError(fmt.Errorf("engine error"))

	default:
		s.logger.Debug("unhandled engine event", zap.String("event", env.Event))
	}
}

func (s *engineSession) closeStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// execute runs an HTTP call through the circuit breaker.
func (e *Engine) execute(fn func() (*resty.Response, error)) (*resty.Response, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err == resilience.ErrCircuitOpen {
		return nil, fmt.Errorf("engine unavailable: circuit breaker open")
	}
	if err != nil {
		return nil, err
	}
	return result.(*resty.Response), nil
}

// decodeEngineError maps a non-2xx response body onto EngineError.
func decodeEngineError(resp *resty.Response) error {
	var env engineEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error != nil {
		return &EngineError{Code: env.Error.Code, Message: env.Error.Message}
	}
	return fmt.Errorf("engine returned %s", resp.Status())
}
