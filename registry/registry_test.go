package registry_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"a": {"type": "number", "description": "First addend"},
		"b": {"type": "number", "description": "Second addend"},
		"note": {"type": "string", "description": "Optional note"}
	},
	"required": ["a", "b"]
}`)

func TestRegisterResolve(t *testing.T) {
	reg := registry.New()
	reg.Register("calc", []mcp.Tool{
		{Name: "add", Description: "Adds two numbers.", InputSchema: addSchema},
		{Name: "mul", Description: "Multiplies two numbers."},
	})

	entry, ok := reg.Resolve("add")
	require.True(t, ok)
	assert.Equal(t, "calc", entry.ServerID)
	assert.Equal(t, "Adds two numbers.", entry.Description)

	_, ok = reg.Resolve("sub")
	assert.False(t, ok)
	assert.Equal(t, 2, reg.Len())
}

func TestReRegisterReplaces(t *testing.T) {
	reg := registry.New()
	reg.Register("calc", []mcp.Tool{{Name: "add"}, {Name: "mul"}})
	reg.Register("calc", []mcp.Tool{{Name: "sub"}})

	_, ok := reg.Resolve("add")
	assert.False(t, ok)
	_, ok = reg.Resolve("sub")
	assert.True(t, ok)
	assert.Equal(t, 1, reg.Len())

	reg.Unregister("calc")
	assert.Equal(t, 0, reg.Len())
}

func TestCollisionLastWriteWins(t *testing.T) {
	reg := registry.New()
	reg.Register("alpha", []mcp.Tool{{Name: "search", Description: "alpha search"}})
	reg.Register("beta", []mcp.Tool{{Name: "search", Description: "beta search"}})

	entry, ok := reg.Resolve("search")
	require.True(t, ok)
	assert.Equal(t, "beta", entry.ServerID)
	assert.Equal(t, 1, reg.Len())
}

func TestDescribeAllOrder(t *testing.T) {
	reg := registry.New()
	reg.Register("s1", []mcp.Tool{{Name: "zeta"}, {Name: "alpha"}})
	reg.Register("s2", []mcp.Tool{{Name: "mid"}})

	entries := reg.DescribeAll()
	require.Len(t, entries, 3)
	assert.Equal(t, "zeta", entries[0].Name)
	assert.Equal(t, "alpha", entries[1].Name)
	assert.Equal(t, "mid", entries[2].Name)
}

func TestFormat(t *testing.T) {
	reg := registry.New()
	reg.Register("calc", []mcp.Tool{
		{Name: "add", Description: "Adds two numbers.", InputSchema: addSchema},
		{Name: "noop", Description: "Does nothing."},
	})

	out := reg.Format()
	assert.Contains(t, out, "add (server: calc):")
	assert.Contains(t, out, "Description: Adds two numbers.")
	assert.Contains(t, out, "- a (number, required): First addend")
	assert.Contains(t, out, "- b (number, required): Second addend")
	assert.Contains(t, out, "- note (string, optional): Optional note")
	assert.Contains(t, out, "(no parameters)")

	// deterministic output
	assert.Equal(t, out, reg.Format())
}
