// Package reconcile collapses call events from the platform push stream, the
// status webhook, and observer commands into one canonical lifecycle per
// call, and emits each transition to the fanout exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"call-relay/internal/history"
	"call-relay/internal/notify"
	"call-relay/internal/registry"
	"call-relay/internal/telephony"
)

// ErrNotFound is returned by Answer when the call id is unknown. Hangup and
// StatusCheck never surface it; for those, "don't know about this call" is
// equivalent to "already ended".
var ErrNotFound = errors.New("reconcile: call not found")

// ErrNotCommandable is returned by Answer for webhook-sourced records, which
// carry no capability handle.
var ErrNotCommandable = errors.New("reconcile: call is not commandable")

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Engine owns the registry. Every decision, registry mutation, and
// notification emit for a transition happens under one lock, which is what
// makes the at-most-one-ended guarantee hold under concurrent sources.
// Platform commands that block on the network are issued outside the lock
// and the record is re-validated afterwards.
type Engine struct {
	reg   *registry.Registry
	out   notify.Publisher
	hist  *history.Service
	clock Clock
	log   *slog.Logger

	// mu serializes decide + mutate + emit into one critical section.
	// Platform awaits happen outside it; records are re-validated after.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithHistory enables best-effort call detail recording on retirement.
func WithHistory(h *history.Service) Option {
	return func(e *Engine) { e.hist = h }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(reg *registry.Registry, out notify.Publisher, opts ...Option) *Engine {
	e := &Engine{
		reg:   reg,
		out:   out,
		clock: time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IncomingCall is the platform's first-sighting push for a realtime call.
type IncomingCall struct {
	ID     string
	From   string
	To     string
	State  telephony.State
	Handle telephony.CallHandle
}

// HandleIncoming registers a realtime call and notifies observers. A
// duplicate push for a known id only refreshes the record; the incoming
// notification fires once per sighting.
func (e *Engine) HandleIncoming(in IncomingCall) {
	if in.ID == "" {
		return
	}
	state := in.State
	if state == "" {
		state = telephony.StateCreated
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, existed := e.reg.Upsert(registry.Update{
		ID:     in.ID,
		Source: registry.SourceRealtime,
		From:   in.From,
		To:     in.To,
		State:  state,
		Handle: in.Handle,
	})
	if existed {
		e.log.Debug("duplicate incoming push", "call_id", in.ID)
		return
	}

	e.log.Info("incoming call", "call_id", in.ID, "from", in.From, "to", in.To)
	e.out.Publish(notify.Notification{
		Kind:   notify.KindIncoming,
		CallID: in.ID,
		From:   in.From,
		To:     in.To,
	})
}

// HandleStateChange applies a per-call state push. Terminal states retire the
// call; live states refresh the record and notify only when the state
// actually changed.
func (e *Engine) HandleStateChange(id string, state telephony.State) {
	if id == "" || state == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.reg.Get(id)
	if !ok {
		// Already retired; a late push changes nothing.
		return
	}

	if telephony.IsTerminal(state) {
		e.log.Info("call reached terminal state", "call_id", id, "state", state)
		e.retireLocked(id, state)
		return
	}

	prev := c.State
	e.reg.Upsert(registry.Update{ID: id, Source: c.Source, State: state})
	if prev == state {
		// Redundant push; suppress downstream chatter.
		return
	}
	e.out.Publish(notify.Notification{
		Kind:   notify.KindActive,
		CallID: id,
		State:  string(state),
	})
}

// HandlePlatformEvent dispatches one platform push event.
func (e *Engine) HandlePlatformEvent(ev telephony.Event) {
	switch ev.Kind {
	case telephony.EventIncomingCall:
		e.HandleIncoming(IncomingCall{
			ID:     ev.CallID,
			From:   ev.From,
			To:     ev.To,
			State:  ev.State,
			Handle: ev.Handle,
		})
	case telephony.EventStateChange:
		e.HandleStateChange(ev.CallID, ev.State)
	case telephony.EventCallAnswered:
		e.HandleStateChange(ev.CallID, telephony.StateAnswered)
	case telephony.EventCallFailed:
		e.HandleStateChange(ev.CallID, telephony.StateFailed)
	case telephony.EventCallEnded:
		e.HandleStateChange(ev.CallID, telephony.StateEnded)
	default:
		e.log.Debug("ignoring platform event", "kind", ev.Kind, "call_id", ev.CallID)
	}
}

// HandleWebhookEvent applies a status webhook. Terminal events retire the
// call (idempotently; a record that is already gone means the termination was
// already announced). Any other event is a passive sighting: it creates or
// refreshes a webhook-sourced record without notifying.
func (e *Engine) HandleWebhookEvent(ev telephony.StatusEvent) {
	id := ev.Params.CallID
	if id == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if telephony.IsTerminalWebhookEvent(ev.Event) {
		e.log.Info("call ended via webhook", "call_id", id, "event", ev.Event)
		e.retireLocked(id, telephony.StateEnded)
		return
	}

	state := telephony.StateForWebhookEvent(ev.Event)
	if c, ok := e.reg.Get(id); ok {
		if state != "" && state != c.State {
			e.reg.Upsert(registry.Update{ID: id, Source: c.Source, State: state})
		} else {
			e.reg.Touch(id)
		}
		return
	}
	if state == "" {
		state = telephony.StateCreated
	}
	// First webhook sighting: track silently, the staleness sweep owns its end.
	e.reg.Upsert(registry.Update{ID: id, Source: registry.SourceWebhook, State: state})
}

// AnswerOutcome reports a successful answer back to the requesting observer.
type AnswerOutcome struct {
	CallID       string
	State        telephony.State
	RemoteStream *telephony.StreamInfo
}

// Answer validates the call and invokes the platform capability with an
// audio-only media configuration. On platform failure the record stays live
// so the observer may retry. The platform reporting the call already in a
// live sub-state is tolerated.
func (e *Engine) Answer(ctx context.Context, id string) (AnswerOutcome, error) {
	e.mu.Lock()
	c, ok := e.reg.Get(id)
	if !ok {
		e.mu.Unlock()
		return AnswerOutcome{}, ErrNotFound
	}
	if c.Source != registry.SourceRealtime || c.Handle == nil {
		e.mu.Unlock()
		return AnswerOutcome{}, ErrNotCommandable
	}
	handle := c.Handle
	e.mu.Unlock()

	res, err := handle.Answer(ctx, telephony.AudioOnly())

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.reg.Get(id)
	if !ok {
		// The call was retired while we were answering.
		return AnswerOutcome{}, ErrNotFound
	}
	if err != nil {
		e.log.Error("platform answer failed", "call_id", id, "err", err)
		return AnswerOutcome{}, fmt.Errorf("answering call %s: %w", id, err)
	}

	state := handle.State()
	if state == "" || telephony.IsTerminal(state) {
		state = telephony.StateActive
	}
	// Suppression compares against the record as it is now, not as it was
	// before the await; a state push may have landed and broadcast already.
	prev := cur.State
	e.reg.Upsert(registry.Update{ID: id, Source: registry.SourceRealtime, State: state})
	e.log.Info("call answered", "call_id", id, "state", state)

	if prev != state {
		e.out.Publish(notify.Notification{
			Kind:   notify.KindActive,
			CallID: id,
			State:  string(state),
		})
	}

	return AnswerOutcome{CallID: id, State: state, RemoteStream: res.RemoteStream}, nil
}

// Hangup always converges: whatever the record state, including absent, the
// id is gone from the registry afterwards and termination has been announced.
// Platform errors are logged and swallowed; local state never blocks on
// remote confirmation.
func (e *Engine) Hangup(ctx context.Context, id string) {
	if id == "" {
		return
	}

	e.mu.Lock()
	c, ok := e.reg.Get(id)
	if !ok {
		// Observer-side cleanup must proceed even without a record.
		e.log.Info("hangup for unknown call, announcing end anyway", "call_id", id)
		e.out.Publish(notify.Notification{Kind: notify.KindEnded, CallID: id})
		e.mu.Unlock()
		return
	}

	var handle telephony.CallHandle
	if c.Source == registry.SourceRealtime && c.Handle != nil && telephony.CanHangup(c.State) {
		handle = c.Handle
	}
	e.mu.Unlock()

	if handle != nil {
		if err := handle.Hangup(ctx); err != nil {
			if errors.Is(err, telephony.ErrCallNotFound) {
				e.log.Info("call already gone on platform", "call_id", id)
			} else {
				e.log.Error("platform hangup failed", "call_id", id, "err", err)
			}
		}
	} else {
		e.log.Debug("skipping platform hangup", "call_id", id, "state", c.State)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.retireLocked(id, telephony.StateEnded)
}

// Status is the live-call report returned to a single requesting observer.
type Status struct {
	CallID string
	State  telephony.State
	Active bool
}

// StatusCheck reconciles one observer's view of a call. An absent or terminal
// record converges to retirement; a live record is reported back to the
// requester only, and counts as a sighting.
func (e *Engine) StatusCheck(id string) (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.reg.Get(id)
	if !ok {
		e.out.Publish(notify.Notification{Kind: notify.KindEnded, CallID: id})
		return Status{}, false
	}
	if telephony.IsTerminal(c.State) {
		e.log.Info("status check found terminal call", "call_id", id, "state", c.State)
		e.retireLocked(id, c.State)
		return Status{}, false
	}

	e.reg.Touch(id)
	return Status{CallID: id, State: c.State, Active: true}, true
}

// SweepStale retires realtime records stuck in a terminal state and webhook
// records not seen for webhookTTL. Safety net only; idempotent.
func (e *Engine) SweepStale(now time.Time, webhookTTL time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.reg.Snapshot() {
		switch {
		case c.Source == registry.SourceRealtime && telephony.IsTerminal(c.State):
			e.log.Info("sweep retiring terminal call", "call_id", c.ID, "state", c.State)
			e.retireLocked(c.ID, c.State)
		case c.Source == registry.SourceWebhook && now.Sub(c.LastSeen) > webhookTTL:
			e.log.Info("sweep retiring stale webhook call",
				"call_id", c.ID, "age_seconds", now.Sub(c.LastSeen).Seconds())
			e.retireLocked(c.ID, telephony.StateEnded)
		}
	}
}

// Registry exposes the underlying table for wiring and diagnostics.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// retireLocked removes the record and announces termination. Remove is the
// idempotence guard: only the caller that actually deleted the record emits,
// so concurrent terminal signals produce exactly one ended notification.
// Must be called with the engine lock held.
func (e *Engine) retireLocked(id string, endedState telephony.State) {
	c, existed := e.reg.Get(id)
	if !e.reg.Remove(id) {
		return
	}

	e.out.Publish(notify.Notification{Kind: notify.KindEnded, CallID: id})

	if e.hist != nil && existed {
		rec := history.Record{
			CallID:      id,
			From:        c.From,
			To:          c.To,
			Source:      string(c.Source),
			EndedState:  string(endedState),
			FirstSeenAt: c.CreatedAt,
			EndedAt:     e.clock().UTC(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.hist.Append(ctx, rec); err != nil {
				e.log.Warn("history append failed", "call_id", id, "err", err)
			}
		}()
	}
}
