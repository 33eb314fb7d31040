// Package localtransport provides an in-process loopback transport pair,
// used to wire a client and a server together in tests and embedded setups.
package localtransport

import (
	"context"
	"sync"

	"github.com/effective-security/mcpagent/mcp/transport"
)

// Transport is one end of an in-process pipe. Send delivers the message to
// the peer's message handler on the caller's goroutine.
type Transport struct {
	peer *Transport

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
}

// Pipe returns two connected transports.
func Pipe() (clientEnd, serverEnd *Transport) {
	a := &Transport{}
	b := &Transport{}
	a.peer = b
	b.peer = a
	return a, b
}

// Start implements Transport.Start
func (t *Transport) Start(ctx context.Context) error {
	// Does nothing in the stateless local transport
	return nil
}

// Send implements Transport.Send
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.peer.mu.RLock()
	handler := t.peer.messageHandler
	t.peer.mu.RUnlock()
	if handler != nil {
		handler(ctx, message)
	}
	return nil
}

// Close implements Transport.Close
func (t *Transport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}
