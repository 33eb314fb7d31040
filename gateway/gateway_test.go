package gateway_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	responses []string
	err       error

	requests []*llms.Request
}

func (f *fakeCompleter) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

func (f *fakeCompleter) Complete(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	content := ""
	if len(f.responses) > 0 {
		content = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &llms.Response{Content: content}, nil
}

func newGateway(f *fakeCompleter) *gateway.Gateway {
	return gateway.New(f, config.DefaultConfig())
}

func TestClassify(t *testing.T) {
	tcases := []struct {
		name     string
		response string
		err      error
		expKind  gateway.VerdictKind
	}{
		{
			name:     "no_tool",
			response: `{"type": "NO_TOOL", "reason": "simple question", "response": "4"}`,
			expKind:  gateway.VerdictNoTool,
		},
		{
			name:     "clarification",
			response: `{"type": "CLARIFICATION", "response": "Which table?"}`,
			expKind:  gateway.VerdictClarification,
		},
		{
			name:     "tool",
			response: `{"type": "TOOL", "reason": "needs a lookup"}`,
			expKind:  gateway.VerdictToolRequired,
		},
		{
			name:     "wrapped in prose",
			response: "Sure, here you go: {\"type\": \"NO_TOOL\", \"response\": \"hi\"} hope that helps",
			expKind:  gateway.VerdictNoTool,
		},
		{
			name:     "unknown discriminant defaults to tool",
			response: `{"type": "SOMETHING_ELSE"}`,
			expKind:  gateway.VerdictToolRequired,
		},
		{
			name:     "unparseable defaults to tool",
			response: "I cannot decide.",
			expKind:  gateway.VerdictToolRequired,
		},
		{
			name:    "backend error defaults to tool",
			err:     errors.New("rate limited"),
			expKind: gateway.VerdictToolRequired,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeCompleter{responses: []string{tc.response}, err: tc.err}
			v := newGateway(f).Classify(context.Background(), "query", "", "catalog")
			assert.Equal(t, tc.expKind, v.Kind)
			if tc.err != nil {
				assert.Contains(t, v.Reason, "rate limited")
			}
		})
	}
}

func TestClassify_RequestShape(t *testing.T) {
	f := &fakeCompleter{responses: []string{`{"type": "TOOL"}`}}
	newGateway(f).Classify(context.Background(), "the query", "User: hi\n", "add (server: calc)")

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.True(t, req.JSONResponse)
	assert.InDelta(t, 0.1, req.Temperature, 0.0001)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llms.RoleSystem, req.Messages[0].Role)
	// the prompt always carries catalog and context
	assert.Contains(t, req.Messages[0].Content, "add (server: calc)")
	assert.Contains(t, req.Messages[0].Content, "User: hi")
	assert.Contains(t, req.Messages[0].Content, "the query")
}

func TestPlan(t *testing.T) {
	tasksJSON := `[{"tool": "add", "params": {"a": 2, "b": 2}, "description": "add the numbers"}]`

	tcases := []struct {
		name     string
		response string
		expCount int
	}{
		{name: "plain list", response: tasksJSON, expCount: 1},
		{name: "fenced block", response: "Here is the plan:\n```json\n" + tasksJSON + "\n```\nDone.", expCount: 1},
		{name: "empty list", response: "[]", expCount: 0},
		{name: "prose only", response: "I cannot plan this.", expCount: 0},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeCompleter{responses: []string{tc.response}}
			tasks := newGateway(f).Plan(context.Background(), "query", "", "catalog")
			assert.Len(t, tasks, tc.expCount)
			if tc.expCount > 0 {
				assert.Equal(t, "add", tasks[0].Tool)
				assert.Equal(t, "add the numbers", tasks[0].Description)
				assert.EqualValues(t, 2, tasks[0].Params["a"])
			}
		})
	}
}

func TestPlan_BackendError(t *testing.T) {
	f := &fakeCompleter{err: errors.New("backend down")}
	tasks := newGateway(f).Plan(context.Background(), "query", "", "catalog")
	assert.Empty(t, tasks)
}

func TestInterpret(t *testing.T) {
	f := &fakeCompleter{responses: []string{"The answer is 4."}}
	results := []gateway.TaskResult{
		{Tool: "add", Description: "add the numbers", Result: "4", Success: true, Attempts: 1},
	}
	out := newGateway(f).Interpret(context.Background(), "What is 2+2?", results, "")
	assert.Equal(t, "The answer is 4.", out)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.InDelta(t, 0.3, req.Temperature, 0.0001)
	assert.Contains(t, req.Messages[0].Content, `"tool": "add"`)
}

func TestInterpret_BackendError(t *testing.T) {
	f := &fakeCompleter{err: errors.New("quota exceeded")}
	out := newGateway(f).Interpret(context.Background(), "query", nil, "")
	assert.Contains(t, out, "quota exceeded")
}

func TestRepairParams(t *testing.T) {
	f := &fakeCompleter{responses: []string{`{"params": {"a": 3, "b": 1}}`}}
	task := gateway.Task{Tool: "add", Params: map[string]any{"a": "three"}, Description: "add"}

	params, err := newGateway(f).RepairParams(context.Background(), task, "a must be a number", "catalog", 0.3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, params["a"])

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.InDelta(t, 0.3, req.Temperature, 0.0001)
	assert.True(t, req.JSONResponse)
	assert.Contains(t, req.Messages[0].Content, "a must be a number")
}

func TestRepairParams_Errors(t *testing.T) {
	task := gateway.Task{Tool: "add"}

	f := &fakeCompleter{err: errors.New("backend down")}
	_, err := newGateway(f).RepairParams(context.Background(), task, "err", "catalog", 0.3)
	require.Error(t, err)

	f = &fakeCompleter{responses: []string{"not json"}}
	_, err = newGateway(f).RepairParams(context.Background(), task, "err", "catalog", 0.3)
	require.Error(t, err)

	f = &fakeCompleter{responses: []string{`{"other": 1}`}}
	_, err = newGateway(f).RepairParams(context.Background(), task, "err", "catalog", 0.3)
	assert.EqualError(t, err, "corrected parameters missing")
}
