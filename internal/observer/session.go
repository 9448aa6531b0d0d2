package observer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"call-relay/internal/notify"
	"call-relay/internal/reconcile"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// answerStatusActive mirrors the status string browsers display.
	answerStatusActive = "Call Active"

	// enableAudioDelay is how long after an answer the explicit
	// audio-output push goes out, giving the browser time to attach
	// the stream first.
	enableAudioDelay = time.Second

	commandTimeout = 15 * time.Second
)

// Engine is the slice of the reconciliation engine a session commands.
type Engine interface {
	Answer(ctx context.Context, id string) (reconcile.AnswerOutcome, error)
	Hangup(ctx context.Context, id string)
	StatusCheck(id string) (reconcile.Status, bool)
}

// Session is one connected observer. It forwards the observer's commands to
// the engine and fanout broadcasts back out, tracking the observer's current
// call along the way.
type Session struct {
	id     string
	conn   *websocket.Conn
	engine Engine
	hub    *Hub
	clock  func() time.Time
	log    *slog.Logger

	send chan Envelope

	mu            sync.Mutex
	currentCallID string
	closed        bool

	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, engine Engine, hub *Hub, log *slog.Logger) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		engine: engine,
		hub:    hub,
		clock:  time.Now,
		log:    log.With("session_id", id),
		send:   make(chan Envelope, 32),
	}
}

// CurrentCallID returns the call this observer is on, or "".
func (s *Session) CurrentCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCallID
}

func (s *Session) setCurrentCall(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCallID = id
}

// enqueue drops the message if the session is closed or its write queue is
// full; the pumps tear the connection down shortly after in that situation
// anyway.
func (s *Session) enqueue(ev Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- ev:
	default:
		s.log.Warn("session send queue full, dropping", "event", ev.Event)
	}
}

// handleNotification forwards a fanout broadcast to this observer. Every
// notification goes to every observer and the browser self-filters by call
// id; the session only uses the broadcast to keep its current-call tracking
// honest.
func (s *Session) handleNotification(n notify.Notification) {
	switch n.Kind {
	case notify.KindIncoming:
		s.enqueue(mustEnvelope(EventIncomingCall, IncomingCallData{
			CallID: n.CallID, From: n.From, To: n.To,
		}))
	case notify.KindActive:
		s.enqueue(mustEnvelope(EventCallActive, CallActiveData{
			CallID: n.CallID, State: n.State,
		}))
	case notify.KindEnded:
		s.mu.Lock()
		if s.currentCallID == n.CallID {
			s.currentCallID = ""
		}
		s.mu.Unlock()
		s.enqueue(mustEnvelope(EventCallEnded, CallEndedData{CallID: n.CallID}))
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("session read failed", "err", err)
			}
			return
		}
		s.dispatch(ctx, env)
	}
}

func (s *Session) dispatch(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventAnswerCall:
		var data CommandData
		if !s.decode(env, &data) {
			return
		}
		s.answerCall(ctx, data.CallID)

	case EventHangupCall:
		var data CommandData
		if !s.decode(env, &data) {
			return
		}
		s.log.Info("observer hangup", "call_id", data.CallID)
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		s.engine.Hangup(cmdCtx, data.CallID)

	case EventCheckCallStatus:
		var data CommandData
		if !s.decode(env, &data) {
			return
		}
		if st, ok := s.engine.StatusCheck(data.CallID); ok {
			// Live call: report to this observer only, not broadcast.
			s.enqueue(mustEnvelope(EventCallStatus, CallStatusData{
				CallID: st.CallID, State: string(st.State), Active: st.Active,
			}))
		}

	case EventPing:
		var data PingData
		if !s.decode(env, &data) {
			return
		}
		s.enqueue(mustEnvelope(EventPong, PongData{
			CallID:            data.CallID,
			OriginalTimestamp: data.Timestamp,
			ServerTimestamp:   s.clock().UnixMilli(),
		}))

	default:
		s.log.Debug("ignoring unknown channel event", "event", env.Event)
	}
}

func (s *Session) answerCall(ctx context.Context, callID string) {
	s.log.Info("observer answering", "call_id", callID)

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	outcome, err := s.engine.Answer(cmdCtx, callID)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, reconcile.ErrNotFound) {
			msg = "call not found"
		}
		s.enqueue(mustEnvelope(EventCallError, CallErrorData{CallID: callID, Error: msg}))
		return
	}

	s.setCurrentCall(callID)
	s.enqueue(mustEnvelope(EventCallAnswered, CallAnsweredData{
		CallID:       callID,
		Status:       answerStatusActive,
		RemoteStream: outcome.RemoteStream,
	}))

	if outcome.RemoteStream != nil {
		s.hub.Broadcast(mustEnvelope(EventMediaChanges, MediaChangesData{
			CallID:       callID,
			RemoteStream: outcome.RemoteStream,
		}))
	}

	time.AfterFunc(enableAudioDelay, func() {
		s.hub.Broadcast(mustEnvelope(EventEnableAudioOutput, EnableAudioOutputData{
			CallID:     callID,
			ForceAudio: true,
		}))
	})
}

func (s *Session) decode(env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.log.Warn("malformed channel payload", "event", env.Event, "err", err)
		return false
	}
	return true
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.log.Info("observer disconnected")
	})
}
