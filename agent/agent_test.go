package agent_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/effective-security/mcpagent/history"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pool"
	"github.com/effective-security/mcpagent/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	verdict gateway.Verdict
	tasks   []gateway.Task

	repairParams map[string]any
	repairErr    error

	interpretResponse  string
	interpretedResults []gateway.TaskResult
	repairTemperatures []float64
}

func (f *fakeGateway) Classify(ctx context.Context, query, recentContext, catalog string) gateway.Verdict {
	return f.verdict
}

func (f *fakeGateway) Plan(ctx context.Context, query, recentContext, catalog string) []gateway.Task {
	return f.tasks
}

func (f *fakeGateway) Interpret(ctx context.Context, query string, results []gateway.TaskResult, recentContext string) string {
	f.interpretedResults = results
	return f.interpretResponse
}

func (f *fakeGateway) RepairParams(ctx context.Context, task gateway.Task, errMsg, catalog string, temperature float64) (map[string]any, error) {
	f.repairTemperatures = append(f.repairTemperatures, temperature)
	if f.repairErr != nil {
		return nil, f.repairErr
	}
	if f.repairParams != nil {
		return f.repairParams, nil
	}
	return task.Params, nil
}

type fakePool struct {
	connectStates []pool.State
	tools         map[string][]mcp.Tool
	invoke        func(serverID, tool string, args map[string]any) (string, error)

	invocations  int
	disconnected bool
}

func (f *fakePool) ConnectAll(ctx context.Context, descriptors []config.ServerDescriptor) []pool.State {
	return f.connectStates
}

func (f *fakePool) DiscoverTools(ctx context.Context, serverID string) ([]mcp.Tool, error) {
	tools, ok := f.tools[serverID]
	if !ok {
		return nil, errors.Newf("no tools for %q", serverID)
	}
	return tools, nil
}

func (f *fakePool) Invoke(ctx context.Context, serverID, tool string, args map[string]any) (string, error) {
	f.invocations++
	return f.invoke(serverID, tool, args)
}

func (f *fakePool) DisconnectAll() {
	f.disconnected = true
}

func schemaWith(props string) json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": ` + props + `}`)
}

func addTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: schemaWith(`{"a": {"type": "number"}, "b": {"type": "number"}}`),
	}
}

type harness struct {
	agent   *agent.Agent
	gateway *fakeGateway
	pool    *fakePool
	store   history.Store
}

func newHarness(t *testing.T, cfg *config.Config, gw *fakeGateway, p *fakePool) *harness {
	t.Helper()
	reg := registry.New()
	reg.Register("calc", []mcp.Tool{addTool()})
	store := history.NewMemoryStore(cfg.Conversation.MaxHistory)
	return &harness{
		agent:   agent.New(cfg, nil, gw, p, reg, store),
		gateway: gw,
		pool:    p,
		store:   store,
	}
}

func TestProcessRequest_NoTool(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictNoTool, Response: "2+2 is 4."},
	}
	p := &fakePool{invoke: func(string, string, map[string]any) (string, error) {
		return "", errors.New("must not be called")
	}}
	h := newHarness(t, config.DefaultConfig(), gw, p)

	resp, err := h.agent.ProcessRequest(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "2+2 is 4.", resp)
	assert.Equal(t, 0, p.invocations)

	turns, err := h.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "What is 2+2?", turns[0].Text)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.Equal(t, "2+2 is 4.", turns[1].Text)
	assert.Equal(t, turns[0].Ordinal+1, turns[1].Ordinal)
}

func TestProcessRequest_Clarification(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictClarification, Response: "Which table?"},
	}
	p := &fakePool{}
	h := newHarness(t, config.DefaultConfig(), gw, p)

	resp, err := h.agent.ProcessRequest(context.Background(), "query it")
	require.NoError(t, err)
	assert.Equal(t, "Which table?", resp)
	assert.Equal(t, 0, p.invocations)
}

func TestProcessRequest_ClarificationFallback(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictClarification},
	}
	h := newHarness(t, config.DefaultConfig(), gw, &fakePool{})

	resp, err := h.agent.ProcessRequest(context.Background(), "hmm")
	require.NoError(t, err)
	assert.Equal(t, agent.ClarificationFallback, resp)
}

func TestProcessRequest_EmptyPlan(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
	}
	p := &fakePool{}
	h := newHarness(t, config.DefaultConfig(), gw, p)

	resp, err := h.agent.ProcessRequest(context.Background(), "do something")
	require.NoError(t, err)
	assert.Equal(t, agent.NoPlanResponse, resp)
	assert.Equal(t, 0, p.invocations)
}

func TestProcessRequest_EmptyInput(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictNoTool, Response: "Hello!"},
	}
	h := newHarness(t, config.DefaultConfig(), gw, &fakePool{})

	for _, input := range []string{"", "   ", "\n"} {
		resp, err := h.agent.ProcessRequest(context.Background(), input)
		require.NoError(t, err)
		assert.NotEmpty(t, resp)
	}
}

func TestProcessRequest_EndToEnd(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "add", Params: map[string]any{"a": 2, "b": 2}, Description: "add the numbers"},
		},
		interpretResponse: "The answer is 4.",
	}
	p := &fakePool{invoke: func(serverID, tool string, args map[string]any) (string, error) {
		assert.Equal(t, "calc", serverID)
		assert.Equal(t, "add", tool)
		return "4", nil
	}}
	h := newHarness(t, config.DefaultConfig(), gw, p)

	resp, err := h.agent.ProcessRequest(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", resp)
	assert.Equal(t, 1, p.invocations)

	require.Len(t, gw.interpretedResults, 1)
	r := gw.interpretedResults[0]
	assert.Equal(t, "add", r.Tool)
	assert.True(t, r.Success)
	assert.Equal(t, "4", r.Result)
	assert.Equal(t, 1, r.Attempts)
}

func TestProcessRequest_RetryPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Execution.RetryStrategy = config.RetryStrategyConfig{
		MaxRetries:             3,
		ProgressiveTemperature: true,
		InitialTemperature:     0.1,
		TemperatureIncrement:   0.2,
	}
	cfg.Execution.FallbackEnabled = true
	cfg.ErrorHandling.RetryInterval = 0

	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "add", Params: map[string]any{"a": "x"}, Description: "broken add"},
			{Tool: "add", Params: map[string]any{"a": 1, "b": 2}, Description: "good add"},
		},
		interpretResponse: "partial",
	}
	calls := 0
	p := &fakePool{invoke: func(serverID, tool string, args map[string]any) (string, error) {
		calls++
		if calls <= 3 {
			return "", errors.New("bad params")
		}
		return "3", nil
	}}
	h := newHarness(t, cfg, gw, p)

	resp, err := h.agent.ProcessRequest(context.Background(), "add stuff")
	require.NoError(t, err)
	assert.Equal(t, "partial", resp)

	// the failing task is attempted exactly 3 times, repairs at 0.3, 0.5
	assert.Equal(t, 4, p.invocations)
	assert.InDeltaSlice(t, []float64{0.3, 0.5}, gw.repairTemperatures, 0.0001)

	// the batch continued to the second task
	require.Len(t, gw.interpretedResults, 2)
	assert.False(t, gw.interpretedResults[0].Success)
	assert.Equal(t, 3, gw.interpretedResults[0].Attempts)
	assert.Contains(t, gw.interpretedResults[0].Result, "bad params")
	assert.True(t, gw.interpretedResults[1].Success)
	assert.Equal(t, "3", gw.interpretedResults[1].Result)
}

func TestProcessRequest_NoAutoCorrectRetriesSameParams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ErrorHandling.AutoCorrectParams = false
	cfg.ErrorHandling.RetryInterval = 0

	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "add", Params: map[string]any{"a": 1}, Description: "add"},
		},
		interpretResponse: "done",
	}
	var seen []map[string]any
	p := &fakePool{invoke: func(serverID, tool string, args map[string]any) (string, error) {
		seen = append(seen, args)
		return "", errors.New("down")
	}}
	h := newHarness(t, cfg, gw, p)

	_, err := h.agent.ProcessRequest(context.Background(), "add")
	require.NoError(t, err)
	assert.Empty(t, gw.repairTemperatures)
	require.Len(t, seen, 3)
	for _, args := range seen {
		assert.Equal(t, map[string]any{"a": 1}, args)
	}
}

func TestProcessRequest_FallbackDisabledSkipsRemaining(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Execution.FallbackEnabled = false
	cfg.Execution.RetryStrategy.MaxRetries = 1
	cfg.ErrorHandling.RetryInterval = 0

	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "add", Params: nil, Description: "first"},
			{Tool: "add", Params: nil, Description: "second"},
			{Tool: "add", Params: nil, Description: "third"},
		},
		interpretResponse: "aborted",
	}
	p := &fakePool{invoke: func(string, string, map[string]any) (string, error) {
		return "", errors.New("down")
	}}
	h := newHarness(t, cfg, gw, p)

	_, err := h.agent.ProcessRequest(context.Background(), "do three things")
	require.NoError(t, err)
	assert.Equal(t, 1, p.invocations)

	require.Len(t, gw.interpretedResults, 3)
	assert.Contains(t, gw.interpretedResults[0].Result, "down")
	assert.Contains(t, gw.interpretedResults[1].Result, "skipped")
	assert.Contains(t, gw.interpretedResults[2].Result, "skipped")
}

func TestProcessRequest_UnknownTool(t *testing.T) {
	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "subtract", Params: nil, Description: "not registered"},
			{Tool: "add", Params: map[string]any{"a": 2, "b": 2}, Description: "add"},
		},
		interpretResponse: "partial",
	}
	p := &fakePool{invoke: func(string, string, map[string]any) (string, error) {
		return "4", nil
	}}
	h := newHarness(t, config.DefaultConfig(), gw, p)

	_, err := h.agent.ProcessRequest(context.Background(), "mixed batch")
	require.NoError(t, err)
	// the unknown tool is not invoked, the known one is
	assert.Equal(t, 1, p.invocations)

	require.Len(t, gw.interpretedResults, 2)
	assert.False(t, gw.interpretedResults[0].Success)
	assert.Contains(t, gw.interpretedResults[0].Result, `tool "subtract" not found`)
	assert.True(t, gw.interpretedResults[1].Success)
}

func TestProcessRequest_MaxTasksCap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Execution.MaxTasks = 2

	var tasks []gateway.Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, gateway.Task{Tool: "add", Params: map[string]any{"a": i}, Description: "add"})
	}
	gw := &fakeGateway{
		verdict:           gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks:             tasks,
		interpretResponse: "capped",
	}
	p := &fakePool{invoke: func(string, string, map[string]any) (string, error) {
		return "ok", nil
	}}
	h := newHarness(t, cfg, gw, p)

	_, err := h.agent.ProcessRequest(context.Background(), "do many things")
	require.NoError(t, err)
	assert.Equal(t, 2, p.invocations)
	assert.Len(t, gw.interpretedResults, 2)
}

func TestProcessRequest_Cancellation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ErrorHandling.RetryInterval = 0

	gw := &fakeGateway{
		verdict: gateway.Verdict{Kind: gateway.VerdictToolRequired},
		tasks: []gateway.Task{
			{Tool: "add", Params: nil, Description: "add"},
			{Tool: "add", Params: nil, Description: "never reached"},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePool{invoke: func(string, string, map[string]any) (string, error) {
		cancel()
		return "", errors.New("interrupted")
	}}
	h := newHarness(t, cfg, gw, p)

	_, err := h.agent.ProcessRequest(ctx, "long running")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.invocations)
}

func TestInitialize(t *testing.T) {
	gw := &fakeGateway{}
	p := &fakePool{
		connectStates: []pool.State{
			{ServerID: "calc", Status: pool.StatusConnected},
			{ServerID: "weather", Status: pool.StatusFailed, Reason: "refused"},
		},
		tools: map[string][]mcp.Tool{
			"calc": {addTool()},
		},
	}
	reg := registry.New()
	store := history.NewMemoryStore(10)
	a := agent.New(config.DefaultConfig(), []config.ServerDescriptor{{ID: "calc"}, {ID: "weather"}}, gw, p, reg, store)

	states, err := a.Initialize(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)

	// only the connected server's tools are registered
	assert.Equal(t, 1, reg.Len())
	entry, ok := reg.Resolve("add")
	require.True(t, ok)
	assert.Equal(t, "calc", entry.ServerID)

	a.Shutdown()
	assert.True(t, p.disconnected)
}
