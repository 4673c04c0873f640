package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumitv/voice-gateway/pkg/command"
)

// fakeBackend is a websocket server standing in for the live voice backend.
// It records the setup message and lets tests push control messages down.
type fakeBackend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	conns chan *websocket.Conn
	setup chan map[string]any
	sent  chan map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	fb := &fakeBackend{
		t:     t,
		conns: make(chan *websocket.Conn, 1),
		setup: make(chan map[string]any, 1),
		sent:  make(chan map[string]any, 16),
	}
	fb.server = httptest.NewServer(http.HandlerFunc(fb.handle))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fb.conns <- conn

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg["type"] == "setup" {
			fb.setup <- msg
			continue
		}
		fb.sent <- msg
	}
}

func (fb *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http")
}

func (fb *fakeBackend) conn() *websocket.Conn {
	select {
	case conn := <-fb.conns:
		return conn
	case <-time.After(2 * time.Second):
		fb.t.Fatal("backend never saw a connection")
		return nil
	}
}

func (fb *fakeBackend) push(conn *websocket.Conn, payload map[string]any) {
	if err := conn.WriteJSON(payload); err != nil {
		fb.t.Fatalf("push failed: %v", err)
	}
}

func (fb *fakeBackend) nextSent() map[string]any {
	select {
	case msg := <-fb.sent:
		return msg
	case <-time.After(2 * time.Second):
		fb.t.Fatal("no message reached the backend")
		return nil
	}
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSessionHandshake(t *testing.T) {
	fb := newFakeBackend(t)

	connected := make(chan struct{}, 1)
	sess := NewSession(Config{
		BackendURL: fb.url(),
		Model:      "test-model",
		Voice:      "Puck",
	}, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
	}, nil, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fb.conn()

	select {
	case setup := <-fb.setup:
		if setup["model"] != "test-model" {
			t.Fatalf("setup model=%v, want test-model", setup["model"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no setup message")
	}

	fb.push(conn, map[string]any{"type": "ready", "session_id": "sess-9"})
	waitFor(t, connected, "OnConnected")

	if got := sess.SessionID(); got != "sess-9" {
		t.Fatalf("SessionID=%q, want sess-9", got)
	}
	if connected, _ := sess.State(); !connected {
		t.Fatal("State connected=false after handshake")
	}
}

func TestSessionConnectIdempotent(t *testing.T) {
	fb := newFakeBackend(t)
	sess := NewSession(Config{BackendURL: fb.url()}, Callbacks{}, nil, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fb.conn()
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	select {
	case <-fb.conns:
		t.Fatal("second Connect dialed again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionToolCallRepliesWithID(t *testing.T) {
	fb := newFakeBackend(t)

	tokenCh := make(chan command.Token, 1)
	tools := NewToolRegistry(command.DispatcherFunc(func(token command.Token) {
		tokenCh <- token
	}))
	connected := make(chan struct{}, 1)
	sess := NewSession(Config{BackendURL: fb.url()}, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
	}, tools, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fb.conn()
	fb.push(conn, map[string]any{"type": "ready"})
	waitFor(t, connected, "OnConnected")

	fb.push(conn, map[string]any{"type": "tool_call", "id": "call-1", "name": "open_netflix"})

	reply := fb.nextSent()
	if reply["type"] != "tool_result" {
		t.Fatalf("reply type=%v, want tool_result", reply["type"])
	}
	if reply["id"] != "call-1" {
		t.Fatalf("reply id=%v, want call-1", reply["id"])
	}
	resp, ok := reply["response"].(map[string]any)
	if !ok || resp["success"] != true {
		t.Fatalf("reply response=%v, want success", reply["response"])
	}
	select {
	case token := <-tokenCh:
		if token.Payload.App != "Netflix" {
			t.Fatalf("token app=%q, want Netflix", token.Payload.App)
		}
	case <-time.After(time.Second):
		t.Fatal("no token dispatched")
	}
}

func TestSessionUnknownToolStillReplies(t *testing.T) {
	fb := newFakeBackend(t)

	tools := NewToolRegistry(command.DispatcherFunc(func(command.Token) {}))
	connected := make(chan struct{}, 1)
	sess := NewSession(Config{BackendURL: fb.url()}, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
	}, tools, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fb.conn()
	fb.push(conn, map[string]any{"type": "ready"})
	waitFor(t, connected, "OnConnected")

	fb.push(conn, map[string]any{"type": "tool_call", "id": "call-2", "name": "launch_rocket"})

	reply := fb.nextSent()
	if reply["id"] != "call-2" {
		t.Fatalf("reply id=%v, want call-2", reply["id"])
	}
	resp, ok := reply["response"].(map[string]any)
	if !ok || resp["success"] != false {
		t.Fatalf("reply response=%v, want failure", reply["response"])
	}
}

func TestSessionInterruptedCallback(t *testing.T) {
	fb := newFakeBackend(t)

	connected := make(chan struct{}, 1)
	interrupted := make(chan struct{}, 1)
	sess := NewSession(Config{BackendURL: fb.url()}, Callbacks{
		OnConnected:   func() { connected <- struct{}{} },
		OnInterrupted: func() { interrupted <- struct{}{} },
	}, nil, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fb.conn()
	fb.push(conn, map[string]any{"type": "ready"})
	waitFor(t, connected, "OnConnected")

	fb.push(conn, map[string]any{"type": "interrupted"})
	waitFor(t, interrupted, "OnInterrupted")
}

func TestSessionSendAudioRequiresHandshake(t *testing.T) {
	sess := NewSession(Config{BackendURL: "ws://127.0.0.1:1"}, Callbacks{}, nil, nil)
	if err := sess.SendAudio(context.Background(), []byte{0, 1}); err != ErrNotConnected {
		t.Fatalf("SendAudio err=%v, want ErrNotConnected", err)
	}
}
