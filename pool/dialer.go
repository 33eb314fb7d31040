package pool

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/mcp/transport/httptransport"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
)

// DefaultDialer builds MCP clients from server descriptors: stdio for
// command-based servers, streamable HTTP for URL-based ones.
func DefaultDialer(d config.ServerDescriptor) (Client, error) {
	switch {
	case d.Command != "":
		t := stdio.NewClientTransport(d.Command, d.Args...)
		for k, v := range d.Env {
			t = t.WithEnv(k + "=" + v)
		}
		return mcp.NewClient(t), nil
	case d.URL != "":
		return mcp.NewClient(httptransport.NewClientTransport(d.URL)), nil
	default:
		return nil, errors.Newf("server %q has neither command nor url", d.ID)
	}
}
