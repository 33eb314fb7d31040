// Package mcp implements a minimal MCP client and server over pluggable
// JSON-RPC transports.
package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "mcp")

// DefaultRequestTimeout bounds a single request/response exchange when the
// caller's context carries no deadline.
const DefaultRequestTimeout = 60 * time.Second

// Client is an MCP client over a Transport. All public methods are safe for
// concurrent use, requests are correlated by ID.
type Client struct {
	transport transport.Transport

	mu          sync.Mutex
	pending     map[int64]chan *transport.BaseJsonRpcMessage
	idCounter   int64
	initialized bool
}

// NewClient creates a client over the given transport.
func NewClient(tr transport.Transport) *Client {
	c := &Client{
		transport: tr,
		pending:   make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
	tr.SetMessageHandler(c.handleMessage)
	return c
}

func (c *Client) handleMessage(ctx context.Context, msg *transport.BaseJsonRpcMessage) {
	switch msg.Type {
	case transport.BaseMessageTypeJSONRPCResponseType,
		transport.BaseMessageTypeJSONRPCErrorType:
		id := msg.MessageID()
		c.mu.Lock()
		ch := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ch != nil {
			ch <- msg
		} else {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "unmatched_response",
				"id", id,
			)
		}
	case transport.BaseMessageTypeJSONRPCNotificationType:
		// notifications carry no correlation ID, nothing to route
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "notification",
			"method", msg.JsonRpcNotification.Method,
		)
	}
}

// request performs a single JSON-RPC exchange and returns the raw result.
func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal params")
		}
		rawParams = bs
	}

	id := atomic.AddInt64(&c.idCounter, 1)
	ch := make(chan *transport.BaseJsonRpcMessage, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	req := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      id,
	}
	if err := c.transport.Send(ctx, transport.NewBaseMessageRequest(req)); err != nil {
		return nil, errors.WithMessagef(err, "failed to send %q request", method)
	}

	select {
	case msg := <-ch:
		if msg.Type == transport.BaseMessageTypeJSONRPCErrorType {
			return nil, errors.Errorf("rpc error %d: %s",
				msg.JsonRpcError.Error.Code, msg.JsonRpcError.Error.Message)
		}
		return msg.JsonRpcResponse.Result, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "request %q aborted", method)
	}
}

// Initialize starts the transport and performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.transport.Start(ctx); err != nil {
		return errors.WithMessage(err, "failed to start transport")
	}

	params := InitializeParams{
		ProtocolVersion: transport.ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: Implementation{
			Name:    "mcpagent",
			Version: "1.0.0",
		},
	}
	raw, err := c.request(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var res InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return errors.Wrap(err, "invalid initialize result")
	}

	// the handshake completes with a notification
	n := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	}
	if err := c.transport.Send(ctx, transport.NewBaseMessageNotification(n)); err != nil {
		return errors.WithMessage(err, "failed to send initialized notification")
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "initialized",
		"server", res.ServerInfo.Name,
		"version", res.ServerInfo.Version,
	)
	return nil
}

// ListTools queries the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var res ToolsResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "invalid tools/list result")
	}
	return res.Tools, nil
}

// CallTool invokes a named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResponse, error) {
	raw, err := c.request(ctx, "tools/call", CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	var res ToolResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "invalid tools/call result")
	}
	return &res, nil
}

// Close shuts down the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
