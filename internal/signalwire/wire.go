package signalwire

import (
	"encoding/json"
	"fmt"
)

// rpcMessage is a JSON-RPC 2.0 frame; requests, responses, and event pushes
// all arrive in this shape.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) toError() error {
	if e.Code == codeNotFound {
		return errNotFound{message: e.Message}
	}
	return fmt.Errorf("signalwire rpc error %d: %s", e.Code, e.Message)
}

// codeNotFound is the platform's "call no longer exists" error code.
const codeNotFound = 404

type errNotFound struct{ message string }

func (e errNotFound) Error() string {
	return fmt.Sprintf("signalwire rpc error %d: %s", codeNotFound, e.message)
}

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// platformEvent is the payload of a calling.* push.
type platformEvent struct {
	EventType string      `json:"event_type"`
	Params    eventParams `json:"params"`
}

type eventParams struct {
	CallID    string `json:"call_id"`
	NodeID    string `json:"node_id"`
	CallState string `json:"call_state"`
	From      string `json:"from_number"`
	To        string `json:"to_number"`
}
