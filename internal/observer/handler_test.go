package observer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-relay/internal/reconcile"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newChannelServer(t *testing.T, engine Engine, verify func(string) (string, error)) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(slog.Default())
	r := gin.New()
	r.GET("/ws", ChannelHandler{Hub: hub, Engine: engine, Verify: verify}.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestHandle_RejectsBadToken(t *testing.T) {
	srv, _ := newChannelServer(t, &fakeEngine{}, func(token string) (string, error) {
		return "", errors.New("bad token")
	})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=junk"), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestHandle_PingPongOverTheWire(t *testing.T) {
	srv, hub := newChannelServer(t, &fakeEngine{}, func(token string) (string, error) {
		if token != "good" {
			return "", errors.New("bad token")
		}
		return "session-1", nil
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The session registers with the hub once upgraded.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Sessions() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	raw, _ := json.Marshal(PingData{CallID: "C1", Timestamp: 42})
	if err := conn.WriteJSON(Envelope{Event: EventPing, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != EventPong {
		t.Fatalf("event = %s, want %s", env.Event, EventPong)
	}
	var pong PongData
	if err := json.Unmarshal(env.Data, &pong); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pong.OriginalTimestamp != 42 || pong.ServerTimestamp == 0 {
		t.Fatalf("unexpected pong: %+v", pong)
	}
}

func TestHandle_AnswerErrorOverTheWire(t *testing.T) {
	engine := &fakeEngine{answerErr: reconcile.ErrNotFound}
	srv, _ := newChannelServer(t, engine, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	raw, _ := json.Marshal(CommandData{CallID: "nope"})
	if err := conn.WriteJSON(Envelope{Event: EventAnswerCall, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != EventCallError {
		t.Fatalf("event = %s, want %s", env.Event, EventCallError)
	}
	var data CallErrorData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Error != "call not found" {
		t.Fatalf("error = %q", data.Error)
	}
}

func TestHandle_DisconnectRemovesSession(t *testing.T) {
	srv, hub := newChannelServer(t, &fakeEngine{}, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Sessions() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
