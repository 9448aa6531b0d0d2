package telephony

import (
	"context"
	"sync"
)

// FakeHandle is an in-memory CallHandle for tests.
type FakeHandle struct {
	mu sync.Mutex

	CallID     string
	CallFrom   string
	CallTo     string
	CallState  State
	AnswerErr  error
	HangupErr  error
	Stream     *StreamInfo
	AnswerMany int
	HangupMany int
}

func (f *FakeHandle) ID() string   { f.mu.Lock(); defer f.mu.Unlock(); return f.CallID }
func (f *FakeHandle) From() string { f.mu.Lock(); defer f.mu.Unlock(); return f.CallFrom }
func (f *FakeHandle) To() string   { f.mu.Lock(); defer f.mu.Unlock(); return f.CallTo }
func (f *FakeHandle) State() State { f.mu.Lock(); defer f.mu.Unlock(); return f.CallState }

func (f *FakeHandle) SetState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallState = s
}

func (f *FakeHandle) Answer(ctx context.Context, media MediaParams) (AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AnswerMany++
	if f.AnswerErr != nil {
		return AnswerResult{}, f.AnswerErr
	}
	f.CallState = StateActive
	return AnswerResult{RemoteStream: f.Stream}, nil
}

func (f *FakeHandle) Hangup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HangupMany++
	if f.HangupErr != nil {
		return f.HangupErr
	}
	f.CallState = StateEnded
	return nil
}

// AnswerCalls reports how many times Answer was invoked.
func (f *FakeHandle) AnswerCalls() int { f.mu.Lock(); defer f.mu.Unlock(); return f.AnswerMany }

// HangupCalls reports how many times Hangup was invoked.
func (f *FakeHandle) HangupCalls() int { f.mu.Lock(); defer f.mu.Unlock(); return f.HangupMany }
