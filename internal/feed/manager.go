package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ActiveSource supplies the instrument ids that must be live on the wire
// after a (re)connect. market.Registry satisfies this.
type ActiveSource interface {
	ActiveInstruments() []string
}

// Manager maintains the single multiplexed subscription to the market feed.
type Manager interface {
	// Start connects, subscribes the active set, and begins reading.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the manager.
	Stop(ctx context.Context) error

	// Subscribe adds instrument ids to the live subscription. Ids already
	// subscribed are skipped.
	Subscribe(instrumentIDs []string) error

	// Unsubscribe removes instrument ids from the live subscription.
	Unsubscribe(instrumentIDs []string) error

	// Resubscribe replaces the live subscription with the given set,
	// sending only the deltas over the wire.
	Resubscribe(instrumentIDs []string) error

	// Messages returns the channel of raw feed frames.
	Messages() <-chan TimestampedMessage

	// IsConnected reports whether the connection is currently up.
	IsConnected() bool

	// Stats returns a snapshot of manager counters.
	Stats() ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	active ActiveSource
	logger *slog.Logger

	// newClient is swappable in tests.
	newClient func() Client

	mu         sync.Mutex
	client     Client
	subscribed map[string]struct{}

	out chan TimestampedMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	received   atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewManager creates a feed manager. The active source may be nil, in which
// case reconnects come back up with an empty subscription.
func NewManager(cfg ManagerConfig, active ActiveSource, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = def.ReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = def.ReconnectMax
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	m := &manager{
		cfg:        cfg,
		active:     active,
		logger:     logger,
		subscribed: make(map[string]struct{}),
		out:        make(chan TimestampedMessage, cfg.BufferSize),
	}
	m.newClient = func() Client {
		return NewClient(ClientConfig{
			URL:          cfg.URL,
			PingTimeout:  cfg.PingTimeout,
			WriteTimeout: cfg.WriteTimeout,
			BufferSize:   cfg.BufferSize,
		}, logger)
	}

	return m
}

// Start connects to the feed and subscribes the current active set.
// A failed initial connect is returned to the caller; failures after
// that go through the reconnect loop instead.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	client := m.newClient()
	if err := client.Connect(m.ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	if err := m.subscribeActive(client); err != nil {
		client.Close()
		return err
	}

	m.wg.Add(1)
	go m.readLoop(client)

	m.logger.Info("feed manager started", "url", m.cfg.URL)

	return nil
}

// Stop gracefully shuts down the manager.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("feed manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds instrument ids to the live subscription.
func (m *manager) Subscribe(instrumentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if _, ok := m.subscribed[id]; !ok {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}
	sort.Strings(added)

	if m.client == nil || !m.client.IsConnected() {
		// The reconnect path replays the active source, so there is
		// nothing to record here.
		return ErrNotConnected
	}

	if err := m.sendSubscribe(m.client, added); err != nil {
		return err
	}
	for _, id := range added {
		m.subscribed[id] = struct{}{}
	}

	m.logger.Info("subscribed",
		"added", len(added),
		"total", len(m.subscribed),
	)

	return nil
}

// Unsubscribe removes instrument ids from the live subscription.
func (m *manager) Unsubscribe(instrumentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if _, ok := m.subscribed[id]; ok {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)

	if m.client == nil || !m.client.IsConnected() {
		return ErrNotConnected
	}

	if err := m.sendUnsubscribe(m.client, removed); err != nil {
		return err
	}
	for _, id := range removed {
		delete(m.subscribed, id)
	}

	m.logger.Info("unsubscribed",
		"removed", len(removed),
		"total", len(m.subscribed),
	)

	return nil
}

// Resubscribe replaces the live subscription with the given set.
func (m *manager) Resubscribe(instrumentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]struct{}, len(instrumentIDs))
	for _, id := range instrumentIDs {
		want[id] = struct{}{}
	}

	var added, removed []string
	for id := range want {
		if _, ok := m.subscribed[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range m.subscribed {
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	sort.Strings(added)
	sort.Strings(removed)

	if m.client == nil || !m.client.IsConnected() {
		return ErrNotConnected
	}

	if len(removed) > 0 {
		if err := m.sendUnsubscribe(m.client, removed); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		if err := m.sendSubscribe(m.client, added); err != nil {
			return err
		}
	}
	m.subscribed = want

	m.logger.Info("resubscribed",
		"added", len(added),
		"removed", len(removed),
		"total", len(want),
	)

	return nil
}

// Messages returns the output channel of raw feed frames.
func (m *manager) Messages() <-chan TimestampedMessage {
	return m.out
}

// IsConnected reports whether the underlying connection is up.
func (m *manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsConnected()
}

// Stats returns a snapshot of manager counters.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	connected := m.client != nil && m.client.IsConnected()
	subscribed := len(m.subscribed)
	m.mu.Unlock()

	return ManagerStats{
		Connected:  connected,
		Subscribed: subscribed,
		Messages:   m.received.Load(),
		Dropped:    m.dropped.Load(),
		Reconnects: m.reconnects.Load(),
	}
}

// subscribeActive pushes the active source's current set onto a fresh
// connection and records it as the live subscription.
func (m *manager) subscribeActive(c Client) error {
	ids := m.currentActive()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribed = make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return nil
	}

	if err := m.sendSubscribe(c, ids); err != nil {
		return err
	}
	for _, id := range ids {
		m.subscribed[id] = struct{}{}
	}

	m.logger.Info("subscribed", "instruments", len(ids))

	return nil
}

func (m *manager) currentActive() []string {
	if m.active == nil {
		return nil
	}
	return m.active.ActiveInstruments()
}

func (m *manager) sendSubscribe(c Client, ids []string) error {
	frame, err := json.Marshal(subscribeFrame{
		Type:                 "subscribe",
		AssetsIDs:            ids,
		CustomFeatureEnabled: false,
	})
	if err != nil {
		return err
	}
	return c.Send(frame)
}

func (m *manager) sendUnsubscribe(c Client, ids []string) error {
	frame, err := json.Marshal(unsubscribeFrame{
		Type:      "unsubscribe",
		AssetsIDs: ids,
	})
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// readLoop forwards frames from one client to the output channel until the
// connection errors, then hands off to the reconnect loop.
func (m *manager) readLoop(c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-c.Errors():
			m.logger.Warn("feed connection error", "error", err)
			m.wg.Add(1)
			go m.reconnect()
			return

		case msg, ok := <-c.Messages():
			if !ok {
				return
			}

			// Server rejection of a command. Nothing downstream wants it.
			if bytes.Equal(msg.Data, invalidOperation) {
				m.logger.Debug("server rejected a frame")
				continue
			}

			m.received.Add(1)

			select {
			case m.out <- msg:
			case <-m.ctx.Done():
				return
			default:
				m.dropped.Add(1)
				m.logger.Warn("feed buffer full, dropping message")
			}
		}
	}
}

// reconnect re-dials with exponential backoff until the connection comes
// back, then replays the current active set. Instruments that ended while
// the connection was down never rejoin the wire.
func (m *manager) reconnect() {
	defer m.wg.Done()

	wait := m.cfg.ReconnectMin
	maxWait := m.cfg.ReconnectMax

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}

		m.logger.Info("attempting reconnection", "wait", wait)

		// Close old connection
		m.mu.Lock()
		if m.client != nil {
			m.client.Close()
		}
		m.mu.Unlock()

		client := m.newClient()
		if err := client.Connect(m.ctx); err != nil {
			m.logger.Warn("reconnection failed", "error", err)

			// Exponential backoff
			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		m.mu.Lock()
		m.client = client
		m.mu.Unlock()

		if err := m.subscribeActive(client); err != nil {
			m.logger.Warn("resubscribe after reconnect failed", "error", err)
			client.Close()

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		m.reconnects.Add(1)
		m.logger.Info("reconnected")

		// Restart read loop
		m.wg.Add(1)
		go m.readLoop(client)

		return
	}
}
