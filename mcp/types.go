package mcp

import (
	"encoding/json"
	"strings"
)

// Tool describes a callable operation exposed by an MCP server.
// InputSchema is kept as raw JSON: remote schemas are arbitrary and are only
// introspected at the registry boundary.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolsResponse is the result payload of tools/list.
type ToolsResponse struct {
	Tools []Tool `json:"tools"`
}

type ContentType string

const (
	ContentTypeText ContentType = "text"
)

// Content is a single item of tool output.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ToolResponse is the result payload of tools/call.
type ToolResponse struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func NewToolResponse(content ...Content) *ToolResponse {
	return &ToolResponse{Content: content}
}

// Text joins all text content items.
func (r *ToolResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == ContentTypeText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// CallToolParams is the request payload of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Implementation identifies a peer in the initialize handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the request payload of initialize.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the response payload of initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// JSON-RPC error codes used by the server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)
