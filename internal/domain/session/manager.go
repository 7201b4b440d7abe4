package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/client"
	"github.com/chatrelay/gateway/internal/domain/dispatch"
	"github.com/chatrelay/gateway/internal/domain/snapshot"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/infrastructure/monitoring"
	"github.com/chatrelay/gateway/internal/infrastructure/resilience"
	"github.com/chatrelay/gateway/internal/shared/phone"
	"github.com/chatrelay/gateway/internal/shared/token"
	"github.com/chatrelay/gateway/internal/shared/utils"
	"github.com/chatrelay/gateway/internal/storage/sessionstore"
)

// Config holds lifecycle tunables.
type Config struct {
	// DataPath is the root directory for per-tenant profile directories.
	DataPath string
	// BackupInterval is the period between snapshot backups of a ready
	// session.
	BackupInterval time.Duration
	// SettleDelay is how long a freshly authenticated session settles
	// before its first backup, giving the engine time to flush the token
	// to disk.
	SettleDelay time.Duration
	// Recreate bounds automatic recovery after transient local failures.
	Recreate resilience.RetryPolicy
	// TokenSecret signs the bearer credentials issued on ready.
	TokenSecret []byte
	// TokenTTL is the issued credentials' lifetime.
	TokenTTL time.Duration
	// CountryCode prefixes phone numbers that arrive without one.
	CountryCode string
}

// Manager owns every tenant session: creation with snapshot restore,
// periodic backup, message dispatch, recovery, and logout.
type Manager struct {
	cfg      Config
	store    sessionstore.Store
	codec    *snapshot.Codec
	factory  client.Factory
	queue    *dispatch.Queue
	bulk     *dispatch.BulkSender
	observer Observer
	metrics  *monitoring.Metrics
	logger   *logging.Logger

	mu       sync.Mutex
	records  map[string]*record
	inflight map[string]*creation
}

// record is one tenant's live session.
type record struct {
	tenantID    string
	dataDir     string
	client      client.Client
	hadSnapshot bool

	// ctx is cancelled when the session is torn down; backup loops and
	// background sends hang off it.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	backupStarted bool
}

func (r *record) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *record) getState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// creation lets concurrent requests for the same tenant join one in-flight
// construction instead of racing to build duplicate engine sessions.
type creation struct {
	done chan struct{}
	err  error
}

// NewManager wires the lifecycle manager.
func NewManager(
	cfg Config,
	store sessionstore.Store,
	codec *snapshot.Codec,
	factory client.Factory,
	queue *dispatch.Queue,
	bulk *dispatch.BulkSender,
	observer Observer,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		codec:    codec,
		factory:  factory,
		queue:    queue,
		bulk:     bulk,
		observer: observer,
		metrics:  metrics,
		logger:   logger,
		records:  make(map[string]*record),
		inflight: make(map[string]*creation),
	}
}

// PurgeDataPath clears leftover profile directories from a previous run.
// Sessions are rebuilt from stored snapshots, so stale local state is only
// a liability.
func (m *Manager) PurgeDataPath() error {
	if err := os.RemoveAll(m.cfg.DataPath); err != nil {
		return fmt.Errorf("purge data path: %w", err)
	}
	return os.MkdirAll(m.cfg.DataPath, 0o755)
}

// Open ensures a live session exists for the tenant, creating one if
// needed. Concurrent calls for the same tenant share a single creation.
func (m *Manager) Open(ctx context.Context, tenantID string) error {
	if err := utils.ValidateTenantID(tenantID); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.records[tenantID]; ok {
		m.mu.Unlock()
		return nil
	}
	if c, ok := m.inflight[tenantID]; ok {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &creation{done: make(chan struct{})}
	m.inflight[tenantID] = c
	m.mu.Unlock()

	err := m.create(ctx, tenantID)

	m.mu.Lock()
	delete(m.inflight, tenantID)
	m.mu.Unlock()

	c.err = err
	close(c.done)
	return err
}

// create builds the profile directory (restoring a stored snapshot when one
// exists), constructs the client, and starts the engine session. The record
// is registered before Initialize so lifecycle events arriving during
// startup find their session.
func (m *Manager) create(ctx context.Context, tenantID string) error {
	dataDir := filepath.Join(m.cfg.DataPath, tenantID)

	// Local state is rebuilt from the store on every creation.
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("clear profile dir: %w", err)
	}

	hadSnapshot, err := m.store.Exists(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("check stored snapshot: %w", err)
	}

	if hadSnapshot {
		if err := m.restoreSnapshot(ctx, tenantID, dataDir); err != nil {
			return err
		}
		m.metrics.SessionsRestored.Inc()
	} else if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	recCtx, cancel := context.WithCancel(context.Background())
	rec := &record{
		tenantID:    tenantID,
		dataDir:     dataDir,
		hadSnapshot: hadSnapshot,
		ctx:         recCtx,
		cancel:      cancel,
		state:       StateInitializing,
	}

	cli, err := m.factory(client.Config{TenantID: tenantID, DataDir: dataDir}, &eventSink{m: m, tenantID: tenantID})
	if err != nil {
		cancel()
		return fmt.Errorf("construct client: %w", err)
	}
	rec.client = cli

	m.mu.Lock()
	m.records[tenantID] = rec
	m.mu.Unlock()

	if err := cli.Initialize(ctx); err != nil {
		m.mu.Lock()
		delete(m.records, tenantID)
		m.mu.Unlock()
		cancel()
		_ = os.RemoveAll(dataDir)
		return fmt.Errorf("initialize session: %w", err)
	}

	m.metrics.SessionsCreated.Inc()
	m.metrics.SessionsActive.Set(float64(m.sessionCount()))
	m.logger.Info("session created",
		zap.String("tenant_id", tenantID),
		zap.Bool("restored", hadSnapshot))
	return nil
}

func (m *Manager) restoreSnapshot(ctx context.Context, tenantID, dataDir string) error {
	zipPath := filepath.Join(m.cfg.DataPath, tenantID+".zip")
	if err := m.store.Restore(ctx, tenantID, zipPath); err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer os.Remove(zipPath)

	if err := m.codec.Restore(ctx, zipPath, dataDir); err != nil {
		return fmt.Errorf("unpack snapshot: %w", err)
	}
	return nil
}

func (m *Manager) lookup(tenantID string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[tenantID]
}

func (m *Manager) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Send delivers one message, or queues it when the session is not ready
// yet. Returns queued=true in the latter case.
func (m *Manager) Send(ctx context.Context, tenantID, number, body string) (queued bool, err error) {
	if err := utils.ValidateMessageBody(body); err != nil {
		return false, err
	}
	if err := m.Open(ctx, tenantID); err != nil {
		return false, err
	}

	rec := m.lookup(tenantID)
	if rec == nil {
		return false, ErrNotFound
	}

	if rec.getState() != StateReady {
		depth := m.queue.Enqueue(tenantID, dispatch.Pending{
			Destination: phone.ChatID(number, m.cfg.CountryCode),
			Body:        body,
		})
		m.metrics.MessagesQueued.Inc()
		m.logger.Info("message queued",
			zap.String("tenant_id", tenantID),
			zap.Int("depth", depth))
		return true, nil
	}

	if err := rec.client.SendMessage(ctx, phone.ChatID(number, m.cfg.CountryCode), body); err != nil {
		m.metrics.MessagesFailed.Inc()
		return false, err
	}
	m.metrics.MessagesSent.Inc()
	return false, nil
}

// SendBulk fans a recipient list out through the bulk sender. The session
// is opened first, but readiness is not required; sends against a session
// that is still authenticating fail individually and are reported in the
// result.
func (m *Manager) SendBulk(ctx context.Context, tenantID string, recipients []dispatch.Recipient) (*dispatch.BulkResult, error) {
	if err := m.Open(ctx, tenantID); err != nil {
		return nil, err
	}

	rec := m.lookup(tenantID)
	if rec == nil {
		return nil, ErrNotFound
	}

	result, err := m.bulk.Send(ctx, rec.client, recipients)
	if err != nil {
		return nil, err
	}
	m.metrics.MessagesSent.Add(float64(result.SuccessCount))
	m.metrics.MessagesFailed.Add(float64(len(result.Failed)))
	batch := m.bulk.BatchSize()
	m.metrics.BulkBatches.Add(float64((result.Total + batch - 1) / batch))
	return result, nil
}

// Status reports the tenant's session state. A tenant with no live session
// gets a zero Status with Ready false.
func (m *Manager) Status(tenantID string) Status {
	depth := m.queue.Depth(tenantID)
	rec := m.lookup(tenantID)
	if rec == nil {
		return Status{QueueDepth: depth}
	}

	state := rec.getState()
	st := Status{
		State:      state,
		Ready:      state == StateReady,
		QueueDepth: depth,
	}
	if st.Ready {
		st.Info = rec.client.Info()
	}
	return st
}

/// Logout tears the session down everywhere: engine logout, stored snapshot
// deletion, local profile removal, queued message discard. Returns
// ErrNotFound when the tenant has no live session.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	rec, ok := m.records[tenantID]
	if ok {
		delete(m.records, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := rec.client.Logout(ctx); err != nil {
		// Engine-side logout failing must not leave the stored snapshot
		// behind; continue tearing down.
		m.logger.Warn("engine logout failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	rec.cancel()
	_ = rec.client.Close()
	m.queue.Clear(tenantID)
	if err := os.RemoveAll(rec.dataDir); err != nil {
		m.logger.Warn("profile dir removal failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	if err := m.store.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("delete stored snapshot: %w", err)
	}

	m.metrics.SessionsLoggedOut.Inc()
	m.metrics.SessionsActive.Set(float64(m.sessionCount()))
	m.observer.ClientLogout(tenantID)
	m.logger.Info("session logged out", zap.String("tenant_id", tenantID))
	return nil
}

// Stats summarizes live sessions.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Sessions: len(m.records)}
	for _, rec := range m.records {
		if rec.getState() == StateReady {
			stats.Ready++
		}
	}
	return stats
}

// Shutdown cancels every session's background work and closes the local
// event streams. Engine sessions themselves are left running so tenants
// stay logged in across gateway restarts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	records := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.records = make(map[string]*record)
	m.mu.Unlock()

	for _, rec := range records {
		rec.cancel()
		_ = rec.client.Close()
	}
	m.metrics.SessionsActive.Set(0)
}

// handleReady marks the session usable, issues a bearer credential, flushes
// queued messages, and starts the backup loop.
func (m *Manager) handleReady(tenantID string) {
	rec := m.lookup(tenantID)
	if rec == nil {
		return
	}

	rec.mu.Lock()
	rec.state = StateReady
	startBackups := !rec.backupStarted
	rec.backupStarted = true
	rec.mu.Unlock()

	info := rec.client.Info()
	now := time.Now()
	tok, err := token.Mint(m.cfg.TokenSecret, token.Claims{
		TenantID:  tenantID,
		User:      info.User,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TokenTTL),
	})
	if err != nil {
		m.logger.Error("token mint failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	m.observer.Ready(tenantID, tok, info)
	m.logger.Info("session ready",
		zap.String("tenant_id", tenantID),
		zap.String("user", info.User))

	go func() {
		sent := m.queue.Flush(rec.ctx, tenantID, rec.client)
		m.metrics.MessagesSent.Add(float64(sent))
	}()

	if startBackups {
		go m.backupLoop(rec)
	}
}

// backupLoop persists the session snapshot on a fixed interval. A session
// with no stored snapshot yet gets an immediate first backup after the
// settle delay, so a crash shortly after first login does not lose the
// authentication.
func (m *Manager) backupLoop(rec *record) {
	if !rec.hadSnapshot {
		select {
		case <-rec.ctx.Done():
			return
		case <-time.After(m.cfg.SettleDelay):
		}
		m.backup(rec, true)
	}

	ticker := time.NewTicker(m.cfg.BackupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rec.ctx.Done():
			return
		case <-ticker.C:
			m.backup(rec, false)
		}
	}
}

func (m *Manager) backup(rec *record, notify bool) {
	zipPath := filepath.Join(m.cfg.DataPath, rec.tenantID+".zip")
	defer os.Remove(zipPath)

	if err := m.codec.Archive(rec.ctx, rec.dataDir, zipPath); err != nil {
		m.metrics.SnapshotFailures.Inc()
		m.logger.Warn("snapshot archive failed",
			zap.String("tenant_id", rec.tenantID),
			zap.Error(err))
		return
	}

	fi, err := os.Stat(zipPath)
	if err != nil {
		m.metrics.SnapshotFailures.Inc()
		return
	}

	if err := m.store.Save(rec.ctx, rec.tenantID, zipPath); err != nil {
		m.metrics.SnapshotFailures.Inc()
		m.logger.Warn("snapshot upload failed",
			zap.String("tenant_id", rec.tenantID),
			zap.Error(err))
		return
	}

	m.metrics.RecordSnapshot(fi.Size())
	m.logger.Info("snapshot saved",
		zap.String("tenant_id", rec.tenantID),
		zap.Int64("bytes", fi.Size()))
	if notify {
		m.observer.RemoteSessionSaved(rec.tenantID)
	}
}

// recover tears the session down and rebuilds it after a transient local
// failure. Attempts are bounded by the configured retry policy; when they
// run out the tenant stays absent until the next request recreates it.
func (m *Manager) recover(tenantID string) {
	m.logger.Warn("recovering session after transient failure",
		zap.String("tenant_id", tenantID))

	err := m.cfg.Recreate.Do(context.Background(), func(ctx context.Context) error {
		m.teardown(tenantID)
		return m.Open(ctx, tenantID)
	}, nil)
	if err != nil {
		m.logger.Error("session recovery failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

// teardown drops the record, closes the client's event stream, and removes
// local state without touching the stored snapshot or the queue, so a later
// session can resume both.
func (m *Manager) teardown(tenantID string) {
	m.mu.Lock()
	rec, ok := m.records[tenantID]
	if ok {
		delete(m.records, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	rec.cancel()
	_ = rec.client.Close()
	_ = os.RemoveAll(rec.dataDir)
	m.metrics.SessionsActive.Set(float64(m.sessionCount()))
}

// pingReply is the auto-reply body for inbound "!ping" probes.
const pingReply = "pong"

// eventSink adapts engine events for one tenant onto manager handlers.
type eventSink struct {
	m        *Manager
	tenantID string
}

func (s *eventSink) OnQR(code string) {
	if rec := s.m.lookup(s.tenantID); rec != nil {
		rec.setState(StateAwaitingAuth)
	}
	s.m.observer.QR(s.tenantID, code)
}

func (s *eventSink) OnLoadingScreen() {
	s.m.observer.LoadingScreen(s.tenantID)
}

func (s *eventSink) OnAuthFailure(reason string) {
	s.m.logger.Warn("authentication failed",
		zap.String("tenant_id", s.tenantID),
		zap.String("reason", reason))
	// A rejected pairing is terminal for this session. The record is
	// dropped without an automatic retry; the next Open starts fresh.
	s.m.teardown(s.tenantID)
	s.m.observer.AuthFailure(s.tenantID, reason)
}

func (s *eventSink) OnReady() {
	s.m.handleReady(s.tenantID)
}

func (s *eventSink) OnMessage(msg client.Message) {
	if msg.Body != "!ping" {
		return
	}
	rec := s.m.lookup(s.tenantID)
	if rec == nil {
		return
	}
	go func() {
		if err := rec.client.SendMessage(rec.ctx, msg.From, pingReply); err != nil {
			s.m.logger.Debug("ping reply failed",
				zap.String("tenant_id", s.tenantID),
				zap.Error(err))
		}
	}()
}

func (s *eventSink) OnDisconnected(reason string) {
	s.m.logger.Warn("session disconnected",
		zap.String("tenant_id", s.tenantID),
		zap.String("reason", reason))
	// The engine session is gone; keeping the record would leave its
	// backup loop ticking against a dead profile. Drop it so the next
	// Open rebuilds from the stored snapshot.
	s.m.teardown(s.tenantID)
	s.m.observer.Disconnected(s.tenantID, reason)
}

func (s *eventSink) OnError(err error) {
	if client.IsMissingResource(err) {
		go s.m.recover(s.tenantID)
		return
	}
	s.m.logger.Error("session error",
		zap.String("tenant_id", s.tenantID),
		zap.Error(err))
}
