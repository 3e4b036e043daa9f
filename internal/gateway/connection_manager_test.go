package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"focusfriends/backend/internal/dashboard"
	"focusfriends/backend/internal/middleware"
)

type fakeSession struct {
	mu        sync.Mutex
	dismissed []string
	cleared   int
	closed    bool
}

func (s *fakeSession) DismissToast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = append(s.dismissed, id)
}

func (s *fakeSession) ClearToasts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) snapshot() ([]string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dismissed...), s.cleared, s.closed
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
	t.Fatalf("timed out waiting for %s", what)
}

func newTestServer(t *testing.T, session *fakeSession) (*ConnectionManager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opener := func(_ context.Context, userID string, sink dashboard.Sink) (Session, error) {
		sink.Send(dashboard.Message{Type: "hello", Data: userID})
		return session, nil
	}
	manager := NewConnectionManager(DefaultConfig(), opener, zap.NewNop())

	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) {
		c.Set(middleware.UserIDContextKey, c.Query("user"))
		c.Next()
	}, manager.Handle)

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return manager, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user=u1"
}

func TestConnectionLifecycle(t *testing.T) {
	session := &fakeSession{}
	manager, url := newTestServer(t, session)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello dashboard.Message
	if err := client.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "hello" || hello.Data != "u1" {
		t.Fatalf("hello = %+v", hello)
	}
	if manager.Count() != 1 {
		t.Fatalf("count = %d, want 1", manager.Count())
	}

	if err := client.WriteJSON(map[string]string{"type": "toast.dismiss", "id": "t1"}); err != nil {
		t.Fatalf("write dismiss: %v", err)
	}
	if err := client.WriteJSON(map[string]string{"type": "toast.clear"}); err != nil {
		t.Fatalf("write clear: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	waitFor(t, "client messages handled", func() bool {
		dismissed, cleared, _ := session.snapshot()
		return len(dismissed) == 1 && dismissed[0] == "t1" && cleared == 1
	})

	client.Close()
	waitFor(t, "session closed", func() bool {
		_, _, closed := session.snapshot()
		return closed && manager.Count() == 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSlowConsumerIsCut(t *testing.T) {
	manager := NewConnectionManager(DefaultConfig(), nil, zap.NewNop())
	conn := &Connection{ID: "c1", manager: manager, send: make(chan []byte, 1)}

	conn.Send(dashboard.Message{Type: "one"})
	conn.Send(dashboard.Message{Type: "two"})
	conn.Send(dashboard.Message{Type: "three"})

	first, ok := <-conn.send
	if !ok {
		t.Fatal("first message lost")
	}
	var msg dashboard.Message
	if err := json.Unmarshal(first, &msg); err != nil || msg.Type != "one" {
		t.Fatalf("first = %s (err %v)", first, err)
	}
	if _, ok := <-conn.send; ok {
		t.Fatal("send channel should be closed after overflow")
	}
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins([]string{"http://localhost:3000"})

	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{origin: "", host: "api.test", want: true},
		{origin: "http://localhost:3000", host: "api.test", want: true},
		{origin: "http://api.test", host: "api.test", want: true},
		{origin: "http://evil.test", host: "api.test", want: false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "http://"+tc.host+"/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := check(req); got != tc.want {
			t.Errorf("origin %q on %s = %v, want %v", tc.origin, tc.host, got, tc.want)
		}
	}

	if !AllowOrigins([]string{"*"})(func() *http.Request {
		req := httptest.NewRequest("GET", "http://api.test/ws", nil)
		req.Header.Set("Origin", "http://anything.test")
		return req
	}()) {
		t.Error("wildcard should accept any origin")
	}
}

func TestHandshakeRejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var opened atomic.Bool
	opener := func(_ context.Context, _ string, _ dashboard.Sink) (Session, error) {
		opened.Store(true)
		return &fakeSession{}, nil
	}
	config := DefaultConfig()
	config.CheckOrigin = AllowOrigins([]string{"http://localhost:3000"})
	manager := NewConnectionManager(config, opener, zap.NewNop())

	engine := gin.New()
	engine.GET("/ws", manager.Handle)
	server := httptest.NewServer(engine)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("handshake from a foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", resp)
	}
	if opened.Load() || manager.Count() != 0 {
		t.Fatal("no session should open for a rejected handshake")
	}

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	client, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	client.Close()
}
