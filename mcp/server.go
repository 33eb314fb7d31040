package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

// ToolHandler executes one tool call with raw JSON arguments.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolResponse, error)

type registeredTool struct {
	tool    Tool
	handler ToolHandler
}

// Server dispatches MCP requests to registered tools over a Transport.
type Server struct {
	transport transport.Transport
	name      string
	version   string

	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

// NewServer creates a server over the given transport.
func NewServer(tr transport.Transport, name, version string) *Server {
	s := &Server{
		transport: tr,
		name:      name,
		version:   version,
		tools:     make(map[string]*registeredTool),
	}
	tr.SetMessageHandler(s.handleMessage)
	return s
}

// RegisterTool adds a tool with a raw JSON schema.
func (s *Server) RegisterTool(name, description string, inputSchema json.RawMessage, handler ToolHandler) error {
	if name == "" {
		return errors.New("tool name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; !ok {
		s.order = append(s.order, name)
	}
	s.tools[name] = &registeredTool{
		tool: Tool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
		},
		handler: handler,
	}
	return nil
}

// RegisterTypedTool adds a tool whose input schema is derived from the
// argument struct type.
func RegisterTypedTool[T any](s *Server, name, description string, handler func(ctx context.Context, args T) (*ToolResponse, error)) error {
	var zero T
	schema, err := SchemaForType(reflect.TypeOf(zero))
	if err != nil {
		return errors.WithMessagef(err, "failed to build schema for tool %q", name)
	}
	return s.RegisterTool(name, description, schema, func(ctx context.Context, raw json.RawMessage) (*ToolResponse, error) {
		var args T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal arguments")
			}
		}
		return handler(ctx, args)
	})
}

// SchemaForType reflects a JSON schema for a tool argument struct.
func SchemaForType(t reflect.Type) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.ReflectFromType(t)
	schema.Version = ""
	bs, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return bs, nil
}

// Serve starts the transport and blocks for blocking transports.
func (s *Server) Serve(ctx context.Context) error {
	return s.transport.Start(ctx)
}

// Close shuts down the transport.
func (s *Server) Close() error {
	return s.transport.Close()
}

func (s *Server) handleMessage(ctx context.Context, msg *transport.BaseJsonRpcMessage) {
	switch msg.Type {
	case transport.BaseMessageTypeJSONRPCRequestType:
		s.handleRequest(ctx, msg.JsonRpcRequest)
	case transport.BaseMessageTypeJSONRPCNotificationType:
		// nothing to do for notifications/initialized and friends
	default:
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "unexpected_message",
			"type", msg.Type,
		)
	}
}

func (s *Server) handleRequest(ctx context.Context, req *transport.BaseJSONRPCRequest) {
	var result any
	var rpcErr *transport.JSONRPCErrorDetail

	switch req.Method {
	case "initialize":
		result = InitializeResult{
			ProtocolVersion: transport.ProtocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
			ServerInfo: Implementation{
				Name:    s.name,
				Version: s.version,
			},
		}
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, rpcErr = s.callTool(ctx, req.Params)
	default:
		rpcErr = &transport.JSONRPCErrorDetail{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + req.Method,
		}
	}

	if rpcErr != nil {
		s.send(ctx, transport.NewBaseMessageError(&transport.BaseJSONRPCError{
			Jsonrpc: "2.0",
			Error:   *rpcErr,
			ID:      req.ID,
		}))
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.send(ctx, transport.NewBaseMessageError(&transport.BaseJSONRPCError{
			Jsonrpc: "2.0",
			Error: transport.JSONRPCErrorDetail{
				Code:    CodeInternalError,
				Message: err.Error(),
			},
			ID: req.ID,
		}))
		return
	}
	s.send(ctx, transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
		Jsonrpc: "2.0",
		Result:  raw,
		ID:      req.ID,
	}))
}

func (s *Server) listTools() ToolsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := ToolsResponse{Tools: make([]Tool, 0, len(s.order))}
	for _, name := range s.order {
		res.Tools = append(res.Tools, s.tools[name].tool)
	}
	return res
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *transport.JSONRPCErrorDetail) {
	var call CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &transport.JSONRPCErrorDetail{
			Code:    CodeInvalidParams,
			Message: "invalid tools/call params: " + err.Error(),
		}
	}

	s.mu.RLock()
	reg := s.tools[call.Name]
	s.mu.RUnlock()
	if reg == nil {
		return nil, &transport.JSONRPCErrorDetail{
			Code:    CodeInvalidParams,
			Message: "unknown tool: " + call.Name,
		}
	}

	var rawArgs json.RawMessage
	if call.Arguments != nil {
		rawArgs, _ = json.Marshal(call.Arguments)
	}

	resp, err := reg.handler(ctx, rawArgs)
	if err != nil {
		// tool-side failures are reported as tool output, not rpc errors,
		// so that the caller can surface them to the model
		return &ToolResponse{
			Content: []Content{NewTextContent("tool error: " + err.Error())},
			IsError: true,
		}, nil
	}
	return resp, nil
}

func (s *Server) send(ctx context.Context, msg *transport.BaseJsonRpcMessage) {
	if err := s.transport.Send(ctx, msg); err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "failed_to_send",
			"err", err.Error(),
		)
	}
}

// ToolNames returns the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}
