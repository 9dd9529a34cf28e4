// Package wsrpc implements request/response correlation over a
// duplex, message-oriented transport such as a WebSocket: callers send
// a message carrying a numeric ID and block until the reply carrying
// that same ID arrives on a separate read loop.
//
// Each in-flight call owns a private one-shot channel instead of
// sharing one response channel guarded by a map lookup under a mutex
// held across the wait; the map only protects the bookkeeping, not the
// handoff itself, and a call can never observe more than one reply or
// be left hanging if the connection drops mid-flight.
package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/brindlewood/oneshot"
)

// Conn is the minimal duplex transport wsrpc needs. *websocket.Conn
// satisfies it directly.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Error is a protocol-level error reported by the remote side for a
// specific request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is an unsolicited, unkeyed message pushed by the remote side
// outside of the request/response flow (e.g. a subscribed event).
type Event struct {
	Type string          `json:"event_type"`
	Data json.RawMessage `json:"data"`
}

// response is the outcome of a single call, delivered exactly once
// through the call's private one-shot channel.
type response struct {
	success bool
	result  json.RawMessage
	err     *Error
}

// inboundMessage is the generic envelope read off the wire. A message
// with a non-zero ID and Type "result" completes a pending call; a
// message of Type "event" is published to Events.
type inboundMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *Event          `json:"event,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Client correlates outbound requests with inbound replies over a
// single Conn. Call ReadLoop in its own goroutine to drive it; Call
// can then be invoked concurrently from any number of goroutines.
type Client struct {
	conn   Conn
	connMu sync.Mutex
	msgID  atomic.Int64
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[int64]*oneshot.Sender[response]

	events chan Event
}

// NewClient wraps conn in a Client. eventBuf sizes the buffered Events
// channel; events are dropped rather than blocking the read loop once
// it is full.
func NewClient(conn Conn, eventBuf int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]*oneshot.Sender[response]),
		events:  make(chan Event, eventBuf),
	}
}

// Events returns the channel of unsolicited events pushed by the
// remote side.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Call assigns msg an "id" field, writes it, and blocks until the
// matching reply arrives or ctx is done. msg must be JSON-marshalable
// as an object (e.g. map[string]any); Call sets/overwrites its "id"
// key.
func (c *Client) Call(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	id := c.msgID.Add(1)
	msg["id"] = id

	sender, receiver := oneshot.Channel[response]()
	c.pendingMu.Lock()
	c.pending[id] = sender
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("wsrpc: write request: %w", err)
	}

	resp, err := receiver.RecvContext(ctx)
	if err != nil {
		return nil, err
	}
	if !resp.success {
		if resp.err != nil {
			return nil, resp.err
		}
		return nil, fmt.Errorf("wsrpc: request %d failed", id)
	}
	return resp.result, nil
}

// ReadLoop reads inboundMessages from conn until ReadJSON fails,
// dispatching results to their matching pending Call and events to
// Events. It returns the error that ended the loop; callers typically
// run it in its own goroutine and react to its return by reconnecting.
func (c *Client) ReadLoop() error {
	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.failAllPending()
			return err
		}

		switch msg.Type {
		case "result":
			c.pendingMu.Lock()
			sender, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.pendingMu.Unlock()
			if !ok {
				// No pending call for this ID: either it already
				// completed (a duplicate or late delivery) or it's
				// unsolicited. Either way, dropping it here is what
				// keeps delivery to at most one caller.
				c.logger.Debug("wsrpc: dropping result for unknown or already-resolved id", "id", msg.ID)
				continue
			}
			sender.Send(response{success: msg.Success, result: msg.Result, err: msg.Error})
		case "event":
			if msg.Event != nil {
				select {
				case c.events <- *msg.Event:
				default:
					c.logger.Warn("wsrpc: event channel full, dropping event", "type", msg.Event.Type)
				}
			}
		default:
			c.logger.Debug("wsrpc: unhandled message type", "type", msg.Type)
		}
	}
}

// failAllPending disconnects every in-flight Call, so they return
// ErrDisconnected instead of hanging once the connection is known
// dead.
func (c *Client) failAllPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*oneshot.Sender[response])
	c.pendingMu.Unlock()

	for _, sender := range pending {
		sender.Close()
	}
}

// Close fails any in-flight calls and closes the underlying Conn.
func (c *Client) Close() error {
	c.failAllPending()
	return c.conn.Close()
}
