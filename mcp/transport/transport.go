package transport

import (
	"context"
	"encoding/json"
)

const ProtocolVersion = "2024-11-05"

// BaseMessageType identifies the kind of JSON-RPC message.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

type BaseJSONRPCRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      int64           `json:"id"`
}

type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	ID      int64           `json:"id"`
}

type JSONRPCErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type BaseJSONRPCError struct {
	Jsonrpc string             `json:"jsonrpc"`
	Error   JSONRPCErrorDetail `json:"error"`
	ID      int64              `json:"id"`
}

// BaseJsonRpcMessage is a tagged union over the four JSON-RPC message kinds.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

func NewBaseMessageRequest(req *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{Type: BaseMessageTypeJSONRPCRequestType, JsonRpcRequest: req}
}

func NewBaseMessageNotification(n *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{Type: BaseMessageTypeJSONRPCNotificationType, JsonRpcNotification: n}
}

func NewBaseMessageResponse(resp *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{Type: BaseMessageTypeJSONRPCResponseType, JsonRpcResponse: resp}
}

func NewBaseMessageError(err *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{Type: BaseMessageTypeJSONRPCErrorType, JsonRpcError: err}
}

// MessageID returns the correlation ID, or 0 for notifications.
func (m *BaseJsonRpcMessage) MessageID() int64 {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.ID
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.ID
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.ID
	}
	return 0
}

func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, nil
}

// ParseMessage decodes a raw JSON-RPC payload into the matching message kind.
// The decode order matters: a response has a result and an id, an error has
// an error object, a request has a method and an id, and a notification has
// only a method.
func ParseMessage(data []byte) (*BaseJsonRpcMessage, error) {
	var probe struct {
		Method string           `json:"method"`
		ID     *int64           `json:"id"`
		Result *json.RawMessage `json:"result"`
		Error  *json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch {
	case probe.Result != nil:
		var resp BaseJSONRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		return NewBaseMessageResponse(&resp), nil
	case probe.Error != nil:
		var errResp BaseJSONRPCError
		if err := json.Unmarshal(data, &errResp); err != nil {
			return nil, err
		}
		return NewBaseMessageError(&errResp), nil
	case probe.Method != "" && probe.ID != nil:
		var req BaseJSONRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return NewBaseMessageRequest(&req), nil
	default:
		var n BaseJSONRPCNotification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return NewBaseMessageNotification(&n), nil
	}
}

// Transport is the abstract message pipe between an MCP peer and this process.
type Transport interface {
	// Start begins processing messages, blocking transports run until Close.
	Start(ctx context.Context) error

	// Send transmits a message to the peer.
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close terminates the connection.
	Close() error

	// SetMessageHandler registers the callback for incoming messages.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))

	// SetErrorHandler registers the callback for transport-level errors.
	SetErrorHandler(handler func(error))

	// SetCloseHandler registers the callback invoked when the pipe closes.
	SetCloseHandler(handler func())
}
