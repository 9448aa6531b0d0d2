package telephony

import (
	"context"
	"errors"
)

// ErrCallNotFound marks a platform command that failed because the call no
// longer exists upstream. Callers treat it as benign: the call is already gone.
var ErrCallNotFound = errors.New("telephony: call not found on platform")

// CallHandle is the live capability object the voice platform hands us for a
// realtime call. It is exclusively owned by the registry entry for that call;
// never shared or copied.
//
// Rules:
// - No platform SDK calls outside telephony adapters.
// - Answer/Hangup may block on the network; they take a context.
type CallHandle interface {
	ID() string
	From() string
	To() string
	State() State

	Answer(ctx context.Context, media MediaParams) (AnswerResult, error)
	Hangup(ctx context.Context) error
}

// MediaParams selects which media the platform should negotiate on answer.
type MediaParams struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// AudioOnly is the media configuration used for every answer in this relay.
func AudioOnly() MediaParams { return MediaParams{Audio: true} }

// AnswerResult carries stream metadata returned by a successful answer.
type AnswerResult struct {
	RemoteStream *StreamInfo `json:"remoteStream,omitempty"`
}

// StreamInfo is remote audio-stream metadata forwarded to observers.
// It never carries media payloads, only handles and status.
type StreamInfo struct {
	ID     string `json:"id,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Type   string `json:"type,omitempty"`
	Active bool   `json:"active,omitempty"`
	SDP    string `json:"sdp,omitempty"`
}
