// Package httptransport implements MCP transports over single-endpoint
// HTTP POST exchanges.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/mcp/transport", "httptransport")

// ClientTransport posts each JSON-RPC message to a remote MCP endpoint and
// feeds the response body back through the message handler.
type ClientTransport struct {
	url        string
	httpClient *http.Client
	headers    map[string]string

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
}

// NewClientTransport creates a client transport for the given endpoint URL.
func NewClientTransport(url string) *ClientTransport {
	return &ClientTransport{
		url:        url,
		httpClient: http.DefaultClient,
		headers:    make(map[string]string),
	}
}

// WithHTTPClient overrides the HTTP client.
func (t *ClientTransport) WithHTTPClient(client *http.Client) *ClientTransport {
	t.httpClient = client
	return t
}

// WithHeader adds a header to every request.
func (t *ClientTransport) WithHeader(key, value string) *ClientTransport {
	t.headers[key] = value
	return t
}

// Start implements Transport.Start
func (t *ClientTransport) Start(ctx context.Context) error {
	// Does nothing in the stateless http client transport
	return nil
}

// Send implements Transport.Send
func (t *ClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to post message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("server returned error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if len(body) == 0 {
		return nil
	}

	msg, err := transport.ParseMessage(body)
	if err != nil {
		return errors.Wrap(err, "received invalid response")
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, msg)
	}
	return nil
}

// Close implements Transport.Close
func (t *ClientTransport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ClientTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// ServerTransport implements a stateless HTTP server transport for MCP.
type ServerTransport struct {
	server         *http.Server
	endpoint       string
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	atomicCounter  int64
	addr           string
}

// NewServerTransport creates a server transport that listens on the specified endpoint.
func NewServerTransport(endpoint string) *ServerTransport {
	return &ServerTransport{
		endpoint:    endpoint,
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
		addr:        ":8080",
	}
}

// WithAddr sets the address to listen on.
func (t *ServerTransport) WithAddr(addr string) *ServerTransport {
	t.addr = addr
	return t
}

// Start implements Transport.Start
func (t *ServerTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.endpoint, t.handleRequest)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	return t.server.ListenAndServe()
}

// Send implements Transport.Send. The message is routed to the HTTP handler
// waiting on the matching request ID.
func (t *ServerTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		return nil
	}
	key := message.MessageID()

	t.mu.RLock()
	responseChannel := t.responseMap[key]
	t.mu.RUnlock()
	if responseChannel == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}
	responseChannel <- message
	return nil
}

// Close implements Transport.Close
func (t *ServerTransport) Close() error {
	if t.server != nil {
		if err := t.server.Close(); err != nil {
			return err
		}
	}
	if t.closeHandler != nil {
		t.closeHandler()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ServerTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ServerTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ServerTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *ServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := transport.ParseMessage(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// rewrite the wire ID with a locally unique key so that concurrent
	// posts do not collide on the response map
	var originalID int64
	key := atomic.AddInt64(&t.atomicCounter, 1)
	if msg.Type == transport.BaseMessageTypeJSONRPCRequestType {
		originalID = msg.JsonRpcRequest.ID
		msg.JsonRpcRequest.ID = key
	}

	responseChannel := make(chan *transport.BaseJsonRpcMessage, 1)
	t.mu.Lock()
	t.responseMap[key] = responseChannel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.responseMap, key)
		t.mu.Unlock()
	}()

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler == nil {
		http.Error(w, "no message handler", http.StatusInternalServerError)
		return
	}
	handler(ctx, msg)

	if msg.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		w.WriteHeader(http.StatusOK)
		return
	}

	select {
	case response := <-responseChannel:
		// restore the caller's ID
		switch response.Type {
		case transport.BaseMessageTypeJSONRPCResponseType:
			response.JsonRpcResponse.ID = originalID
		case transport.BaseMessageTypeJSONRPCErrorType:
			response.JsonRpcError.ID = originalID
		}
		jsonData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(jsonData); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "failed_to_write_response",
				"err", err.Error(),
			)
		}
	case <-ctx.Done():
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	}
}
