package signalwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"call-relay/internal/telephony"
)

// callHandle is the platform capability object for one realtime call. The
// registry entry owns it exclusively.
type callHandle struct {
	client *Client
	id     string
	nodeID string
	from   string
	to     string

	mu    sync.Mutex
	state telephony.State
}

var _ telephony.CallHandle = (*callHandle)(nil)

func (h *callHandle) ID() string   { return h.id }
func (h *callHandle) From() string { return h.from }
func (h *callHandle) To() string   { return h.to }

func (h *callHandle) State() telephony.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == "" {
		return telephony.StateCreated
	}
	return h.state
}

func (h *callHandle) setState(s telephony.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

func (h *callHandle) Answer(ctx context.Context, media telephony.MediaParams) (telephony.AnswerResult, error) {
	params := map[string]any{
		"call_id": h.id,
		"node_id": h.nodeID,
		"media": map[string]bool{
			"audio": media.Audio,
			"video": media.Video,
		},
	}

	result, err := h.client.call(ctx, "calling.answer", params)
	if err != nil {
		var nf errNotFound
		if errors.As(err, &nf) {
			return telephony.AnswerResult{}, telephony.ErrCallNotFound
		}
		return telephony.AnswerResult{}, fmt.Errorf("answer call %s: %w", h.id, err)
	}

	h.setState(telephony.StateActive)

	var out struct {
		CallState    string                `json:"call_state"`
		RemoteStream *telephony.StreamInfo `json:"remote_stream"`
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &out); err == nil {
			if out.CallState != "" {
				h.setState(telephony.State(out.CallState))
			}
			return telephony.AnswerResult{RemoteStream: out.RemoteStream}, nil
		}
	}
	return telephony.AnswerResult{}, nil
}

func (h *callHandle) Hangup(ctx context.Context) error {
	params := map[string]any{
		"call_id": h.id,
		"node_id": h.nodeID,
		"reason":  "hangup",
	}

	if _, err := h.client.call(ctx, "calling.end", params); err != nil {
		var nf errNotFound
		if errors.As(err, &nf) {
			return telephony.ErrCallNotFound
		}
		return fmt.Errorf("hangup call %s: %w", h.id, err)
	}

	h.setState(telephony.StateEnded)
	return nil
}
