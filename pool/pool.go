// Package pool maintains connections to the configured tool servers and
// routes tool calls to them. Each server connects and fails independently;
// a broken server never takes the pool down.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "pool")

// Status describes the lifecycle of one server connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Client is the subset of the MCP client the pool needs.
// *mcp.Client satisfies it.
type Client interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResponse, error)
	Close() error
}

// Dialer builds an unconnected client for a server descriptor.
type Dialer func(d config.ServerDescriptor) (Client, error)

// State is a snapshot of one connection.
type State struct {
	ServerID string
	Status   Status
	// Reason holds the failure message when Status is StatusFailed.
	Reason string
}

type conn struct {
	id     string
	client Client
	status Status
	reason string
}

// Pool holds one connection per configured server.
type Pool struct {
	dial Dialer

	mu    sync.RWMutex
	conns map[string]*conn
	order []string
}

// New returns an empty pool that dials servers with the given Dialer.
func New(dial Dialer) *Pool {
	return &Pool{
		dial:  dial,
		conns: map[string]*conn{},
	}
}

// ConnectAll dials every descriptor concurrently and performs the MCP
// handshake. A failure marks that server StatusFailed and is reported in
// the returned states; it is never an error for the pool as a whole.
func (p *Pool) ConnectAll(ctx context.Context, descriptors []config.ServerDescriptor) []State {
	p.mu.Lock()
	for _, d := range descriptors {
		if _, ok := p.conns[d.ID]; ok {
			continue
		}
		p.conns[d.ID] = &conn{id: d.ID, status: StatusDisconnected}
		p.order = append(p.order, d.ID)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range descriptors {
		wg.Add(1)
		go func(d config.ServerDescriptor) {
			defer wg.Done()
			p.connect(ctx, d)
		}(d)
	}
	wg.Wait()

	return p.States()
}

func (p *Pool) connect(ctx context.Context, d config.ServerDescriptor) {
	p.setStatus(d.ID, StatusConnecting, "")

	client, err := p.dial(d)
	if err == nil {
		if err = client.Initialize(ctx); err != nil {
			_ = client.Close()
		}
	}
	if err != nil {
		metricskey.StatsConnectionsFailed.IncrCounter(1, d.ID)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "connect_failed",
			"server", d.ID,
			"err", err.Error())
		p.setStatus(d.ID, StatusFailed, err.Error())
		return
	}

	p.mu.Lock()
	c := p.conns[d.ID]
	c.client = client
	c.status = StatusConnected
	c.reason = ""
	p.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG, "status", "connected", "server", d.ID)
}

// DiscoverTools lists the tools a connected server advertises. A listing
// failure does not change the connection status.
func (p *Pool) DiscoverTools(ctx context.Context, serverID string) ([]mcp.Tool, error) {
	client, err := p.connected(serverID)
	if err != nil {
		return nil, err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to list tools on server %q", serverID)
	}
	return tools, nil
}

// Invoke calls a tool on a connected server and returns the textual
// result. Output is sanitized so it is always safe to re-encode.
func (p *Pool) Invoke(ctx context.Context, serverID, tool string, args map[string]any) (string, error) {
	client, err := p.connected(serverID)
	if err != nil {
		return "", err
	}

	started := time.Now()
	res, err := client.CallTool(ctx, tool, args)
	metricskey.PerfToolCall.MeasureSince(started, tool)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, serverID, tool)
		return "", errors.WithMessagef(err, "tool %q failed", tool)
	}
	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, serverID, tool)
		return "", errors.Newf("tool %q failed: %s", tool, llmutils.SanitizeText(res.Text()))
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, serverID, tool)
	return llmutils.SanitizeText(res.Text()), nil
}

// ConnectedIDs returns the servers currently connected, in configuration order.
func (p *Pool) ConnectedIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []string
	for _, id := range p.order {
		if p.conns[id].status == StatusConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// States returns a snapshot of every connection, in configuration order.
func (p *Pool) States() []State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]State, 0, len(p.order))
	for _, id := range p.order {
		c := p.conns[id]
		states = append(states, State{ServerID: id, Status: c.status, Reason: c.reason})
	}
	return states
}

// Status returns the status of one server, or StatusDisconnected for an
// unknown server.
func (p *Pool) Status(serverID string) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.conns[serverID]
	if !ok {
		return StatusDisconnected
	}
	return c.status
}

// DisconnectAll closes every connection. Close failures are logged and
// do not stop the remaining shutdowns.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		c := p.conns[id]
		if c.status != StatusConnected || c.client == nil {
			continue
		}
		if err := c.client.Close(); err != nil {
			logger.KV(xlog.WARNING,
				"reason", "disconnect_failed",
				"server", id,
				"err", err.Error())
		}
		c.client = nil
		c.status = StatusDisconnected
		c.reason = ""
	}
}

func (p *Pool) connected(serverID string) (Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.conns[serverID]
	if !ok {
		return nil, errors.Newf("unknown server %q", serverID)
	}
	if c.status != StatusConnected {
		return nil, errors.Newf("server %q is not connected: %s", serverID, c.status)
	}
	return c.client, nil
}

func (p *Pool) setStatus(serverID string, status Status, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.conns[serverID]
	c.status = status
	c.reason = reason
}
