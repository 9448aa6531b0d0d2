// Package observer maintains the websocket sessions through which browsers
// watch and command calls.
package observer

import (
	"encoding/json"
	"fmt"

	"call-relay/internal/telephony"
)

// Channel event names, server to client.
const (
	EventIncomingCall      = "incomingCall"
	EventCallActive        = "callActive"
	EventCallAnswered      = "callAnswered"
	EventCallEnded         = "callEnded"
	EventCallError         = "callError"
	EventCallStatus        = "callStatus"
	EventMediaChanges      = "mediaChanges"
	EventEnableAudioOutput = "enableAudioOutput"
	EventPong              = "pong"
)

// Channel event names, client to server.
const (
	EventAnswerCall      = "answerCall"
	EventHangupCall      = "hangupCall"
	EventCheckCallStatus = "checkCallStatus"
	EventPing            = "ping"
)

// Envelope is the wire frame for every channel message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// mustEnvelope is for server-built payloads, which always marshal.
func mustEnvelope(event string, data any) Envelope {
	env, err := newEnvelope(event, data)
	if err != nil {
		panic(err)
	}
	return env
}

type IncomingCallData struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type CallActiveData struct {
	CallID string `json:"callId"`
	State  string `json:"state"`
}

type CallAnsweredData struct {
	CallID       string                `json:"callId"`
	Status       string                `json:"status"`
	RemoteStream *telephony.StreamInfo `json:"remoteStream,omitempty"`
}

type CallEndedData struct {
	CallID string `json:"callId"`
}

type CallErrorData struct {
	CallID string `json:"callId"`
	Error  string `json:"error"`
}

type CallStatusData struct {
	CallID string `json:"callId"`
	State  string `json:"state"`
	Active bool   `json:"active"`
}

type MediaChangesData struct {
	CallID       string                `json:"callId"`
	EventType    string                `json:"eventType,omitempty"`
	RemoteStream *telephony.StreamInfo `json:"remoteStream,omitempty"`
}

type EnableAudioOutputData struct {
	CallID     string `json:"callId"`
	ForceAudio bool   `json:"forceAudio"`
}

type CommandData struct {
	CallID string `json:"callId"`
}

type PingData struct {
	CallID    string `json:"callId"`
	Timestamp int64  `json:"timestamp"`
}

type PongData struct {
	CallID            string `json:"callId"`
	OriginalTimestamp int64  `json:"originalTimestamp"`
	ServerTimestamp   int64  `json:"serverTimestamp"`
}
