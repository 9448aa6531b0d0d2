package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeWebhookEngine struct {
	events []StatusEvent
}

func (f *fakeWebhookEngine) HandleWebhookEvent(ev StatusEvent) {
	f.events = append(f.events, ev)
}

func newWebhookRouter(engine WebhookEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/status", StatusWebhookHandler{Engine: engine}.HandleStatus)
	return r
}

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantEvents int
	}{
		{
			name:       "terminal event",
			body:       `{"event":"call.ended","params":{"call_id":"C1"}}`,
			wantCode:   http.StatusOK,
			wantEvents: 1,
		},
		{
			name:       "lifecycle event",
			body:       `{"event":"call.ringing","params":{"call_id":"C1"}}`,
			wantCode:   http.StatusOK,
			wantEvents: 1,
		},
		{
			name:       "unrecognized event name still accepted",
			body:       `{"event":"call.recording.started","params":{"call_id":"C1"}}`,
			wantCode:   http.StatusOK,
			wantEvents: 1,
		},
		{
			name:     "invalid json",
			body:     `{"event":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing event name",
			body:     `{"params":{"call_id":"C1"}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing call id",
			body:     `{"event":"call.ended","params":{}}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeWebhookEngine{}
			router := newWebhookRouter(engine)

			req := httptest.NewRequest(http.MethodPost, "/webhook/status", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if len(engine.events) != tt.wantEvents {
				t.Fatalf("engine saw %d events, want %d", len(engine.events), tt.wantEvents)
			}
			if tt.wantCode == http.StatusOK && !strings.Contains(w.Body.String(), "received") {
				t.Fatalf("expected received ack, got %s", w.Body.String())
			}
		})
	}
}

func TestHandleStatus_ForwardsParsedEvent(t *testing.T) {
	engine := &fakeWebhookEngine{}
	router := newWebhookRouter(engine)

	body := `{"event":"call.answered","params":{"call_id":"C9","state":"answered"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if len(engine.events) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(engine.events))
	}
	ev := engine.events[0]
	if ev.Event != "call.answered" || ev.Params.CallID != "C9" || ev.Params.State != "answered" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestIsTerminalWebhookEvent(t *testing.T) {
	for _, name := range []string{"call.ended", "call.completed", "call.failed", "call.busy"} {
		if !IsTerminalWebhookEvent(name) {
			t.Errorf("%s should be terminal", name)
		}
	}
	for _, name := range []string{"call.created", "call.ringing", "call.answered", "", "ended"} {
		if IsTerminalWebhookEvent(name) {
			t.Errorf("%s should not be terminal", name)
		}
	}
}
