package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gugudan/internal/model"
	"gugudan/internal/prefs"
)

// fakeSupervisor テスト用の WebSocket サーバー
type fakeSupervisor struct {
	server   *httptest.Server
	conns    chan *websocket.Conn
	accepted atomic.Int32
	reject   atomic.Int32
}

func newFakeSupervisor(t *testing.T) *fakeSupervisor {
	t.Helper()

	f := &fakeSupervisor{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.reject.Load() > 0 {
			f.reject.Add(-1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.accepted.Add(1)
		f.conns <- conn
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSupervisor) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func (f *fakeSupervisor) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for relay to connect")
		return nil
	}
}

func newTestRelay(t *testing.T, url string, opts ...Option) *Relay {
	t.Helper()
	r := New(url, append([]Option{WithReconnectDelay(50 * time.Millisecond)}, opts...)...)
	t.Cleanup(r.Dispose)
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("Server write failed: %v", err)
	}
}

func TestConnectAppendsWelcome(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Start()
	sup.accept(t)
	waitFor(t, "connected", r.Connected)

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != model.TypeSystem || msgs[0].Content != WelcomeText || msgs[0].Sender != model.SenderSystem {
		t.Errorf("Unexpected welcome message: %+v", msgs[0])
	}
}

func TestConnectIsNoOpWhilePendingOrOpen(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Connect()
	r.Connect()
	r.Connect()
	sup.accept(t)
	waitFor(t, "connected", r.Connected)
	r.Connect()

	time.Sleep(100 * time.Millisecond)
	if n := sup.accepted.Load(); n != 1 {
		t.Errorf("Expected exactly 1 socket, got %d", n)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	r := newTestRelay(t, "ws://127.0.0.1:1/ws")

	if r.Send("2x2=4") {
		t.Error("Send should report false while disconnected")
	}
	if n := len(r.Messages()); n != 0 {
		t.Errorf("Buffer should be untouched, got %d messages", n)
	}
}

func TestSendWhileConnected(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Start()
	conn := sup.accept(t)
	waitFor(t, "connected", r.Connected)

	if !r.Send("2x2=4") {
		t.Fatal("Send should succeed while connected")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Server read failed: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not JSON: %q", data)
	}
	if frame["type"] != "user_message" || frame["content"] != "2x2=4" || frame["sender"] != "user" {
		t.Errorf("Unexpected frame: %s", data)
	}
	if _, ok := frame["id"]; ok {
		t.Errorf("Frame should not carry an id: %s", data)
	}

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, extra, err := conn.ReadMessage(); err == nil {
		t.Errorf("Expected exactly one frame, got another: %s", extra)
	}

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected welcome + user message, got %d", len(msgs))
	}
	if msgs[1].Type != model.TypeUser || msgs[1].Content != "2x2=4" {
		t.Errorf("Unexpected buffered message: %+v", msgs[1])
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Start()
	conn := sup.accept(t)
	waitFor(t, "connected", r.Connected)

	writeFrame(t, conn, "not json at all")
	writeFrame(t, conn, `{"type":"ping","content":"?"}`)
	writeFrame(t, conn, `{"type":"problem","content":"2×3=","sender":"agent1"}`)

	waitFor(t, "problem frame", func() bool { return len(r.Messages()) == 2 })

	msgs := r.Messages()
	if msgs[1].Type != model.TypeProblem || msgs[1].Content != "2×3=" {
		t.Errorf("Unexpected message: %+v", msgs[1])
	}
	if !r.Connected() {
		t.Error("Malformed frames must not break the connection")
	}
}

func TestAnswerExplanationScenario(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Start()
	conn := sup.accept(t)
	waitFor(t, "connected", r.Connected)

	writeFrame(t, conn, `{"type":"answer","content":"4","sender":"agent2"}`)
	waitFor(t, "answer", func() bool { return len(r.Messages()) == 2 })

	r.Send("2x2=4 설명해줘")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Server read failed: %v", err)
	}

	writeFrame(t, conn, `{"type":"explanation","content":"2x2=4 because...","sender":"agent2"}`)
	waitFor(t, "explanation", func() bool { return len(r.Messages()) == 4 })

	msgs := r.Messages()
	wantTypes := []model.MessageType{model.TypeSystem, model.TypeAnswer, model.TypeUser, model.TypeExplanation}
	for i, want := range wantTypes {
		if msgs[i].Type != want {
			t.Errorf("Message %d: expected %s, got %s", i, want, msgs[i].Type)
		}
	}

	answer, explanation := msgs[1], msgs[3]
	if !answer.HasExplanation {
		t.Error("Answer should be marked hasExplanation")
	}
	if explanation.ParentID != answer.ID {
		t.Errorf("Explanation parent %q, expected %q", explanation.ParentID, answer.ID)
	}
}

func TestReconnectAfterClose(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := newTestRelay(t, sup.url())

	r.Start()
	first := sup.accept(t)
	waitFor(t, "connected", r.Connected)

	first.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	first.Close()

	sup.accept(t)
	waitFor(t, "second welcome", func() bool { return len(r.Messages()) == 3 })

	msgs := r.Messages()
	want := []string{WelcomeText, DisconnectedText, WelcomeText}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("Message %d: expected %q, got %q", i, content, msgs[i].Content)
		}
	}
	if !r.Connected() {
		t.Error("Relay should be connected again")
	}
}

func TestErrorSchedulesReconnect(t *testing.T) {
	sup := newFakeSupervisor(t)
	sup.reject.Store(1)
	r := New(sup.url(), WithReconnectDelay(time.Hour))
	t.Cleanup(r.Dispose)

	r.Start()
	waitFor(t, "error message", func() bool { return len(r.Messages()) == 1 })

	msgs := r.Messages()
	if msgs[0].Content != ErrorText {
		t.Errorf("Expected error notice, got %q", msgs[0].Content)
	}
	if r.Connected() {
		t.Error("Relay should be disconnected after a failed dial")
	}
	if !r.ReconnectPending() {
		t.Fatal("A reconnect should be scheduled")
	}

	// A manual connect supersedes the hour-long wait.
	r.Connect()
	sup.accept(t)
	waitFor(t, "connected", r.Connected)
	if r.ReconnectPending() {
		t.Error("Manual connect should cancel the pending reconnect")
	}
}

func TestDisposeCancelsReconnect(t *testing.T) {
	sup := newFakeSupervisor(t)
	sup.reject.Store(1)
	r := New(sup.url(), WithReconnectDelay(20*time.Millisecond))

	r.Start()
	waitFor(t, "error message", func() bool { return len(r.Messages()) == 1 })
	r.Dispose()

	time.Sleep(100 * time.Millisecond)
	if n := sup.accepted.Load(); n != 0 {
		t.Errorf("No dial should happen after Dispose, got %d", n)
	}
	if r.ReconnectPending() {
		t.Error("Dispose should clear the reconnect timer")
	}

	r.Connect()
	time.Sleep(50 * time.Millisecond)
	if n := sup.accepted.Load(); n != 0 {
		t.Errorf("Connect after Dispose should be ignored, got %d dials", n)
	}
}

func TestDisposeClosesSocketAndSubscribers(t *testing.T) {
	sup := newFakeSupervisor(t)
	r := New(sup.url())

	ch := r.Subscribe()
	r.Start()
	conn := sup.accept(t)
	waitFor(t, "connected", r.Connected)

	r.Dispose()

	if r.Connected() {
		t.Error("Relay should be disconnected after Dispose")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Server should observe the socket closing")
	}

	for range ch {
	}
	if n := len(r.Messages()); n != 1 {
		t.Errorf("Dispose should not append notices, got %d messages", n)
	}
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	r := newTestRelay(t, "ws://127.0.0.1:1/ws")
	ch := r.Subscribe()

	r.AddMessage(model.NewSystemMessage("hello"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Expected a change notification")
	}

	r.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after Unsubscribe")
	}
}

func TestToggleExplanationsPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	store, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("Open prefs: %v", err)
	}

	r := newTestRelay(t, "ws://127.0.0.1:1/ws", WithPreferences(store))
	if !r.ShowExplanations() {
		t.Fatal("Explanations should be shown by default")
	}
	if r.ToggleExplanations() {
		t.Error("Toggle should return the new value false")
	}

	reopened, err := prefs.Open(path)
	if err != nil {
		t.Fatalf("Reopen prefs: %v", err)
	}
	again := New("ws://127.0.0.1:1/ws", WithPreferences(reopened))
	defer again.Dispose()
	if again.ShowExplanations() {
		t.Error("Preference should be loaded as false on construction")
	}
}
