// Package signalwire is the adapter between the relay and the SignalWire
// realtime voice API. It speaks JSON-RPC over a websocket, surfaces incoming
// calls and state pushes as telephony events, and hands out call handles
// that issue answer/hangup commands back over the same connection.
package signalwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"call-relay/internal/telephony"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout    = 10 * time.Second
	requestTimeout = 15 * time.Second
	reconnectDelay = 5 * time.Second
)

// Config configures the realtime client.
type Config struct {
	ProjectID string
	Token     string
	SpaceURL  string
	Topics    []string
}

// Client maintains the realtime connection and pushes call events.
type Client struct {
	cfg Config
	log *slog.Logger

	events chan telephony.Event

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan rpcResponse

	// writeMu serializes socket writes; the websocket allows one writer.
	writeMu sync.Mutex
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Token == "" {
		return nil, errors.New("signalwire: project id and token are required")
	}
	if cfg.SpaceURL == "" {
		return nil, errors.New("signalwire: space url is required")
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{"default"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		events:  make(chan telephony.Event, 64),
		pending: make(map[string]chan rpcResponse),
	}, nil
}

// Events implements telephony.EventSource.
func (c *Client) Events() <-chan telephony.Event { return c.events }

// Run connects and processes pushes until ctx is done, reconnecting on
// connection loss. The events channel closes when Run returns.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	for {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("realtime session ended, reconnecting", "err", err, "delay", reconnectDelay.String())
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) endpoint() (string, error) {
	space := c.cfg.SpaceURL
	if !strings.Contains(space, "://") {
		space = "wss://" + space
	}
	u, err := url.Parse(space)
	if err != nil {
		return "", fmt.Errorf("parsing space url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		u.Scheme = "wss"
	}
	u.Path = "/api/relay/wss"
	return u.String(), nil
}

func (c *Client) runSession(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing realtime endpoint: %w", err)
	}
	return c.serveConn(ctx, conn)
}

// serveConn runs one connection's lifetime: reader first, then the connect
// and subscribe handshake. The reader must be up before the first request is
// sent or its response would never be consumed.
func (c *Client) serveConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.failPendingLocked()
		c.mu.Unlock()
	}()

	// Close the socket when ctx dies so the read loop unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg rpcMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			c.handleMessage(msg)
		}
	}()

	if err := c.authenticate(ctx); err != nil {
		return err
	}
	if err := c.subscribe(ctx); err != nil {
		return err
	}
	c.log.Info("realtime connected", "topics", strings.Join(c.cfg.Topics, ","))

	err := <-readErr
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("realtime connection closed: %w", err)
}

func (c *Client) authenticate(ctx context.Context) error {
	params := map[string]any{
		"authentication": map[string]string{
			"project": c.cfg.ProjectID,
			"token":   c.cfg.Token,
		},
	}
	if _, err := c.call(ctx, "signalwire.connect", params); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context) error {
	params := map[string]any{
		"protocol": "calling",
		"contexts": c.cfg.Topics,
	}
	if _, err := c.call(ctx, "signalwire.receive", params); err != nil {
		return fmt.Errorf("subscribing to topics: %w", err)
	}
	return nil
}

// call issues one JSON-RPC request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	req := rpcMessage{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}

	respCh := make(chan rpcResponse, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, errors.New("signalwire: not connected")
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	// The state lock is not held across the write; the reader must be able
	// to resolve pending requests while a slow write is in flight.
	c.writeMu.Lock()
	err = conn.WriteJSON(req)
	c.writeMu.Unlock()

	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.dropPending(id)
		return nil, fmt.Errorf("%s timed out", method)
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPendingLocked unblocks every in-flight request on disconnect.
func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		ch <- rpcResponse{err: errors.New("signalwire: connection lost")}
		delete(c.pending, id)
	}
}

func (c *Client) handleMessage(msg rpcMessage) {
	// Response to one of our requests.
	if msg.Method == "" && msg.ID != "" {
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		if msg.Error != nil {
			ch <- rpcResponse{err: msg.Error.toError()}
			return
		}
		ch <- rpcResponse{result: msg.Result}
		return
	}

	if msg.Method != "blade.broadcast" && msg.Method != "signalwire.event" {
		c.log.Debug("ignoring realtime message", "method", msg.Method)
		return
	}

	var ev platformEvent
	if err := json.Unmarshal(msg.Params, &ev); err != nil {
		c.log.Warn("malformed realtime event", "err", err)
		return
	}
	c.dispatchEvent(ev)
}

func (c *Client) dispatchEvent(ev platformEvent) {
	switch ev.EventType {
	case "calling.call.receive":
		handle := &callHandle{
			client: c,
			id:     ev.Params.CallID,
			nodeID: ev.Params.NodeID,
			from:   ev.Params.From,
			to:     ev.Params.To,
			state:  telephony.State(ev.Params.CallState),
		}
		c.emit(telephony.Event{
			Kind:   telephony.EventIncomingCall,
			CallID: ev.Params.CallID,
			From:   ev.Params.From,
			To:     ev.Params.To,
			State:  handle.State(),
			Handle: handle,
		})

	case "calling.call.state":
		c.emit(telephony.Event{
			Kind:   telephony.EventStateChange,
			CallID: ev.Params.CallID,
			State:  telephony.State(ev.Params.CallState),
		})

	case "calling.call.answered":
		c.emit(telephony.Event{Kind: telephony.EventCallAnswered, CallID: ev.Params.CallID})

	case "calling.call.ended":
		c.emit(telephony.Event{Kind: telephony.EventCallEnded, CallID: ev.Params.CallID})

	case "calling.call.failed":
		c.emit(telephony.Event{Kind: telephony.EventCallFailed, CallID: ev.Params.CallID})

	default:
		c.log.Debug("ignoring platform event", "event_type", ev.EventType)
	}
}

func (c *Client) emit(ev telephony.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("platform event queue full, dropping", "kind", ev.Kind, "call_id", ev.CallID)
	}
}
