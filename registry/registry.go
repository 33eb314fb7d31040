// Package registry keeps the catalog of tools discovered across all
// connected tool servers.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "registry")

// ToolEntry is one registered tool and its owning connection.
type ToolEntry struct {
	Name        string
	ServerID    string
	Description string
	Schema      json.RawMessage
}

// Registry maps tool names to entries. Tool names are unique across all
// connections: when two servers expose the same name, the most recently
// registered one wins. Iteration follows registration order, which keeps
// the formatted catalog deterministic.
type Registry struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[string, *ToolEntry]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: orderedmap.New[string, *ToolEntry](),
	}
}

// Register replaces all entries owned by connectionID with the given tools.
func (r *Registry) Register(connectionID string, tools []mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// drop this connection's previous registration
	var stale []string
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ServerID == connectionID {
			stale = append(stale, pair.Key)
		}
	}
	for _, name := range stale {
		r.entries.Delete(name)
	}

	for _, tool := range tools {
		if prev, ok := r.entries.Get(tool.Name); ok {
			logger.KV(xlog.WARNING,
				"status", "tool_name_collision",
				"tool", tool.Name,
				"previous_server", prev.ServerID,
				"server", connectionID,
			)
			// re-insert so that the position reflects the latest registration
			r.entries.Delete(tool.Name)
		}
		r.entries.Set(tool.Name, &ToolEntry{
			Name:        tool.Name,
			ServerID:    connectionID,
			Description: tool.Description,
			Schema:      tool.InputSchema,
		})
	}
}

// Unregister removes all entries owned by connectionID.
func (r *Registry) Unregister(connectionID string) {
	r.Register(connectionID, nil)
}

// Resolve returns the entry for a tool name.
func (r *Registry) Resolve(name string) (*ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries.Get(name)
	return entry, ok
}

// DescribeAll returns all entries in registration order.
func (r *Registry) DescribeAll() []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]ToolEntry, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, *pair.Value)
	}
	return list
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}

type propertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type toolSchema struct {
	Properties *orderedmap.OrderedMap[string, propertySchema] `json:"properties"`
	Required   []string                                       `json:"required"`
}

// Format renders the catalog for an LLM prompt: every tool with its owning
// server, description and parameters, the required flag derived from the
// schema's "required" list.
func (r *Registry) Format() string {
	entries := r.DescribeAll()

	var blocks []string
	for _, entry := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (server: %s):\n", entry.Name, entry.ServerID)
		fmt.Fprintf(&b, "  Description: %s\n", entry.Description)
		b.WriteString("  Parameters:\n")

		var schema toolSchema
		if len(entry.Schema) > 0 {
			_ = json.Unmarshal(entry.Schema, &schema)
		}
		if schema.Properties == nil || schema.Properties.Len() == 0 {
			b.WriteString("    (no parameters)")
			blocks = append(blocks, b.String())
			continue
		}

		required := make(map[string]bool, len(schema.Required))
		for _, name := range schema.Required {
			required[name] = true
		}

		var params []string
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			typ := pair.Value.Type
			if typ == "" {
				typ = "any"
			}
			flag := "optional"
			if required[pair.Key] {
				flag = "required"
			}
			params = append(params, fmt.Sprintf("    - %s (%s, %s): %s", pair.Key, typ, flag, pair.Value.Description))
		}
		b.WriteString(strings.Join(params, "\n"))
		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n\n")
}
