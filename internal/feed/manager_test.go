package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wireFrame decodes both subscribe and unsubscribe commands. The pointer
// field distinguishes false from absent.
type wireFrame struct {
	Type                 string   `json:"type"`
	AssetsIDs            []string `json:"assets_ids"`
	CustomFeatureEnabled *bool    `json:"custom_feature_enabled"`
}

// feedServer is a WebSocket test server that records every command frame.
type feedServer struct {
	server *httptest.Server

	mu     sync.Mutex
	frames []wireFrame

	conns chan *websocket.Conn
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{conns: make(chan *websocket.Conn, 4)}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		fs.conns <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame wireFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			fs.mu.Lock()
			fs.frames = append(fs.frames, frame)
			fs.mu.Unlock()
		}
	}))

	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *feedServer) frameCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.frames)
}

func (fs *feedServer) frame(i int) wireFrame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.frames[i]
}

func (fs *feedServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

// activeStub is a mutable ActiveSource.
type activeStub struct {
	mu  sync.Mutex
	ids []string
}

func (a *activeStub) ActiveInstruments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

func (a *activeStub) set(ids ...string) {
	a.mu.Lock()
	a.ids = ids
	a.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testManagerConfig(url string) ManagerConfig {
	return ManagerConfig{
		URL:          url,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 100 * time.Millisecond,
	}
}

func TestManager_StartSubscribesActiveSet(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.server.Close()

	active := &activeStub{}
	active.set("tok-a", "tok-b")

	mgr := NewManager(testManagerConfig(fs.url()), active, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return fs.frameCount() >= 1 }, "no subscribe frame received")

	frame := fs.frame(0)
	if frame.Type != "subscribe" {
		t.Errorf("frame type = %q, want subscribe", frame.Type)
	}
	if !reflect.DeepEqual(frame.AssetsIDs, []string{"tok-a", "tok-b"}) {
		t.Errorf("assets_ids = %v, want [tok-a tok-b]", frame.AssetsIDs)
	}
	if frame.CustomFeatureEnabled == nil {
		t.Error("custom_feature_enabled missing from subscribe frame")
	} else if *frame.CustomFeatureEnabled {
		t.Error("custom_feature_enabled = true, want false")
	}

	if !mgr.IsConnected() {
		t.Error("expected IsConnected after Start")
	}
}

func TestManager_SubscribeAddsOnly(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.server.Close()

	mgr := NewManager(testManagerConfig(fs.url()), nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	if err := mgr.Subscribe([]string{"tok-1", "tok-2"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Overlapping set: only tok-3 is new.
	if err := mgr.Subscribe([]string{"tok-2", "tok-3"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Fully redundant: no frame at all.
	if err := mgr.Subscribe([]string{"tok-1"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return fs.frameCount() >= 2 }, "subscribe frames not received")
	time.Sleep(20 * time.Millisecond)

	if got := fs.frameCount(); got != 2 {
		t.Fatalf("frame count = %d, want 2", got)
	}
	if ids := fs.frame(0).AssetsIDs; !reflect.DeepEqual(ids, []string{"tok-1", "tok-2"}) {
		t.Errorf("first frame ids = %v, want [tok-1 tok-2]", ids)
	}
	if ids := fs.frame(1).AssetsIDs; !reflect.DeepEqual(ids, []string{"tok-3"}) {
		t.Errorf("second frame ids = %v, want [tok-3]", ids)
	}

	if stats := mgr.Stats(); stats.Subscribed != 3 {
		t.Errorf("Subscribed = %d, want 3", stats.Subscribed)
	}
}

func TestManager_ResubscribeSendsDeltas(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.server.Close()

	mgr := NewManager(testManagerConfig(fs.url()), nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	if err := mgr.Subscribe([]string{"tok-a", "tok-b"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := mgr.Resubscribe([]string{"tok-b", "tok-c"}); err != nil {
		t.Fatalf("Resubscribe failed: %v", err)
	}
	// Same set again: nothing to send.
	if err := mgr.Resubscribe([]string{"tok-b", "tok-c"}); err != nil {
		t.Fatalf("Resubscribe failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return fs.frameCount() >= 3 }, "frames not received")
	time.Sleep(20 * time.Millisecond)

	if got := fs.frameCount(); got != 3 {
		t.Fatalf("frame count = %d, want 3", got)
	}

	unsub := fs.frame(1)
	if unsub.Type != "unsubscribe" {
		t.Errorf("second frame type = %q, want unsubscribe", unsub.Type)
	}
	if !reflect.DeepEqual(unsub.AssetsIDs, []string{"tok-a"}) {
		t.Errorf("unsubscribe ids = %v, want [tok-a]", unsub.AssetsIDs)
	}
	if unsub.CustomFeatureEnabled != nil {
		t.Error("unsubscribe frame should not carry custom_feature_enabled")
	}

	sub := fs.frame(2)
	if sub.Type != "subscribe" {
		t.Errorf("third frame type = %q, want subscribe", sub.Type)
	}
	if !reflect.DeepEqual(sub.AssetsIDs, []string{"tok-c"}) {
		t.Errorf("subscribe ids = %v, want [tok-c]", sub.AssetsIDs)
	}

	if stats := mgr.Stats(); stats.Subscribed != 2 {
		t.Errorf("Subscribed = %d, want 2", stats.Subscribed)
	}
}

func TestManager_ReconnectReplaysActiveSet(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.server.Close()

	active := &activeStub{}
	active.set("tok-a", "tok-b")

	mgr := NewManager(testManagerConfig(fs.url()), active, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	conn1 := fs.waitConn(t)
	waitFor(t, 2*time.Second, func() bool { return fs.frameCount() >= 1 }, "no initial subscribe")

	// The window rolls over while the connection dies: the old instruments
	// end and a new pair becomes active.
	active.set("tok-c", "tok-d")
	conn1.Close()

	fs.waitConn(t)
	waitFor(t, 2*time.Second, func() bool { return fs.frameCount() >= 2 }, "no resubscribe after reconnect")

	frame := fs.frame(1)
	if frame.Type != "subscribe" {
		t.Errorf("frame type = %q, want subscribe", frame.Type)
	}
	if !reflect.DeepEqual(frame.AssetsIDs, []string{"tok-c", "tok-d"}) {
		t.Errorf("resubscribed ids = %v, want [tok-c tok-d]", frame.AssetsIDs)
	}

	waitFor(t, 2*time.Second, func() bool { return mgr.Stats().Reconnects == 1 }, "reconnect not counted")
	waitFor(t, 2*time.Second, func() bool { return mgr.IsConnected() }, "not connected after reconnect")
}

func TestManager_ForwardsMessages(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.server.Close()

	mgr := NewManager(testManagerConfig(fs.url()), nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	conn := fs.waitConn(t)

	// Command rejections are connection noise, not data.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("INVALID OPERATION")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	book := `{"event_type":"book","asset_id":"tok-1","bids":[],"asks":[]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(book)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case msg := <-mgr.Messages():
		if string(msg.Data) != book {
			t.Errorf("forwarded %q, want %q", msg.Data, book)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt should not be zero")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded message")
	}

	if stats := mgr.Stats(); stats.Messages != 1 {
		t.Errorf("Messages = %d, want 1", stats.Messages)
	}
}

func TestManager_SubscribeNotConnected(t *testing.T) {
	mgr := NewManager(testManagerConfig("ws://localhost:12345"), nil, nil)

	if err := mgr.Subscribe([]string{"tok-1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe error = %v, want ErrNotConnected", err)
	}
	// Empty deltas never touch the wire.
	if err := mgr.Resubscribe(nil); err != nil {
		t.Errorf("Resubscribe(nil) error = %v, want nil", err)
	}
	if err := mgr.Unsubscribe([]string{"tok-1"}); err != nil {
		t.Errorf("Unsubscribe of unknown id error = %v, want nil", err)
	}
}

func TestManager_StopDuringReconnect(t *testing.T) {
	var attempts atomic.Int64

	m := NewManager(testManagerConfig("ws://unused"), nil, nil).(*manager)

	first := &stubClient{
		messages: make(chan TimestampedMessage),
		errors:   make(chan error, 1),
	}
	m.newClient = func() Client {
		if attempts.Add(1) == 1 {
			return first
		}
		return &stubClient{
			connectErr: errors.New("dial refused"),
			messages:   make(chan TimestampedMessage),
			errors:     make(chan error, 1),
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Kill the live connection; every redial fails.
	first.errors <- errors.New("connection reset")

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() >= 3 }, "reconnect loop not retrying")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

// stubClient is an in-memory Client for reconnect tests.
type stubClient struct {
	connectErr error

	mu        sync.Mutex
	connected bool
	sent      [][]byte

	messages chan TimestampedMessage
	errors   chan error
}

func (s *stubClient) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *stubClient) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *stubClient) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *stubClient) Messages() <-chan TimestampedMessage { return s.messages }
func (s *stubClient) Errors() <-chan error                { return s.errors }

func (s *stubClient) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
