// Package gateway wraps the completion backend with the three semantic
// operations the agent needs: classify, plan and interpret. Every
// operation is one request/response exchange; the retry policy lives in
// the caller.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "gateway")

// VerdictKind is the classification outcome discriminant.
type VerdictKind string

const (
	VerdictNoTool        VerdictKind = "NO_TOOL"
	VerdictClarification VerdictKind = "CLARIFICATION"
	VerdictToolRequired  VerdictKind = "TOOL"
)

// Verdict is the classification result. For NoTool, Response holds the
// direct answer; for Clarification, the question to ask.
type Verdict struct {
	Kind     VerdictKind `json:"type"`
	Reason   string      `json:"reason,omitempty"`
	Response string      `json:"response,omitempty"`
}

// Task is one planned tool invocation.
type Task struct {
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
}

// TaskResult is the outcome of one executed task, fed into interpretation.
type TaskResult struct {
	Tool        string `json:"tool"`
	Description string `json:"description"`
	Result      string `json:"result"`
	Success     bool   `json:"success"`
	Attempts    int    `json:"attempts,omitempty"`
}

const (
	classifyTemperature  = 0.1
	planTemperature      = 0.1
	interpretTemperature = 0.3
)

// Gateway exposes the semantic operations over a Completer.
type Gateway struct {
	completer           llms.Completer
	model               string
	maxCompletionTokens int
	maxResultLength     int
}

// New returns a Gateway using the given backend and LLM settings.
func New(completer llms.Completer, cfg *config.Config) *Gateway {
	return &Gateway{
		completer:           completer,
		model:               cfg.LLM.Model,
		maxCompletionTokens: cfg.LLM.MaxCompletionTokens,
		maxResultLength:     cfg.ResultDisplay.MaxResultLength,
	}
}

const classifyPrompt = `You analyze a user request and decide which execution mode fits best.

Available tools:
%s

Recent conversation:
%s

Current user request:
"%s"

Rules:
1. The request needs a calculation, database lookup, API call, file operation or similar -> TOOL
2. The request is ambiguous and needs more detail from the user -> CLARIFICATION
3. The request is a simple question answerable from existing knowledge -> NO_TOOL

Return the result as JSON:
{"type": "NO_TOOL|CLARIFICATION|TOOL", "reason": "why", "response": "answer or clarifying question for the user"}`

// Classify decides how to handle the request. Any backend or parse
// failure defaults to VerdictToolRequired, annotated with the reason:
// attempting a tool is safer than silently doing nothing.
func (g *Gateway) Classify(ctx context.Context, query, recentContext, catalog string) Verdict {
	content, err := g.complete(ctx, "classify", &llms.Request{
		Model: g.model,
		Messages: []llms.Message{
			llms.SystemMessage(fmt.Sprintf(classifyPrompt, catalog, recentContext, query)),
		},
		Temperature:         classifyTemperature,
		MaxCompletionTokens: g.maxCompletionTokens,
		JSONResponse:        true,
	})
	if err != nil {
		metricskey.StatsClassificationFallbacks.IncrCounter(1)
		logger.ContextKV(ctx, xlog.ERROR, "reason", "classify_failed", "err", err.Error())
		return Verdict{Kind: VerdictToolRequired, Reason: "classification failed: " + err.Error()}
	}

	var v Verdict
	if err := ljson.Unmarshal(llmutils.CleanJSON([]byte(content)), &v); err != nil {
		metricskey.StatsClassificationFallbacks.IncrCounter(1)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "classify_parse_failed",
			"content", llmutils.Truncate(content, 100),
			"err", err.Error())
		return Verdict{Kind: VerdictToolRequired, Reason: "unparseable classification: " + err.Error()}
	}

	if v.Kind != VerdictNoTool && v.Kind != VerdictClarification {
		v.Kind = VerdictToolRequired
	}

	logger.ContextKV(ctx, xlog.DEBUG, "verdict", v.Kind, "llm_reason", v.Reason)
	return v
}

const planPrompt = `You are an assistant carrying out the following task:

User request: %s

Available tools:
%s

Conversation context:
%s

List the tasks needed to fulfill the user request, in execution order.
Each task is a JSON object with:
- tool: the tool name to call
- params: the parameters to pass (object)
- description: what the task does

Respond with a pure JSON list:
[
  {"tool": "name", "params": {"param1": "value1"}, "description": "what it does"},
  ...
]`

// Plan decomposes the request into an ordered task list. Parsing is
// attempted on the whole body first, then on a fenced JSON block. An
// empty list is a valid "no plan" outcome, never an error.
func (g *Gateway) Plan(ctx context.Context, query, recentContext, catalog string) []Task {
	content, err := g.complete(ctx, "plan", &llms.Request{
		Model: g.model,
		Messages: []llms.Message{
			llms.UserMessage(fmt.Sprintf(planPrompt, query, catalog, recentContext)),
		},
		Temperature:         planTemperature,
		MaxCompletionTokens: g.maxCompletionTokens,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "plan_failed", "err", err.Error())
		return nil
	}

	tasks := parseTasks([]byte(content))
	if tasks == nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "plan_parse_failed",
			"content", llmutils.Truncate(content, 100))
	}
	return tasks
}

func parseTasks(body []byte) []Task {
	var tasks []Task
	if err := ljson.Unmarshal(llmutils.CleanJSON(body), &tasks); err == nil {
		return tasks
	}
	if llmutils.HasFencedBlock(string(body)) {
		block := llmutils.BytesTrimBackticks(body)
		if err := ljson.Unmarshal(llmutils.CleanJSON(block), &tasks); err == nil {
			return tasks
		}
	}
	return nil
}

const interpretPrompt = `Interpret the tool execution results below and answer the user request in natural language.

User request: %s

Tool execution results:
%s

Conversation context:
%s

Write the answer so it is easy for the user to understand.`

// Interpret synthesizes the final answer from the ordered task results.
// It always returns text: a backend failure produces an apology that
// carries the error message verbatim.
func (g *Gateway) Interpret(ctx context.Context, query string, results []TaskResult, recentContext string) string {
	display := make([]TaskResult, len(results))
	for i, r := range results {
		r.Result = llmutils.Truncate(r.Result, g.maxResultLength)
		display[i] = r
	}

	content, err := g.complete(ctx, "interpret", &llms.Request{
		Model: g.model,
		Messages: []llms.Message{
			llms.UserMessage(fmt.Sprintf(interpretPrompt, query, llmutils.ToJSONIndent(display), recentContext)),
		},
		Temperature:         interpretTemperature,
		MaxCompletionTokens: g.maxCompletionTokens,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "interpret_failed", "err", err.Error())
		return "The tasks were executed, but an error occurred while interpreting the results: " + err.Error()
	}
	return content
}

const repairPrompt = `A tool call failed. Propose corrected parameters for the same tool.

Tool: %s
Task: %s
Parameters used: %s
Error: %s

Available tools:
%s

Return only a JSON object with the corrected parameters:
{"params": {...}}`

type repairResponse struct {
	Params map[string]any `json:"params"`
}

// RepairParams asks the backend for corrected parameters after a failed
// call, at the caller-supplied temperature. The caller falls back to the
// unchanged parameters when repair fails.
func (g *Gateway) RepairParams(ctx context.Context, task Task, errMsg, catalog string, temperature float64) (map[string]any, error) {
	content, err := g.complete(ctx, "repair", &llms.Request{
		Model: g.model,
		Messages: []llms.Message{
			llms.UserMessage(fmt.Sprintf(repairPrompt,
				task.Tool, task.Description, llmutils.ToJSON(task.Params), errMsg, catalog)),
		},
		Temperature:         temperature,
		MaxCompletionTokens: g.maxCompletionTokens,
		JSONResponse:        true,
	})
	if err != nil {
		return nil, err
	}

	var r repairResponse
	if err := ljson.Unmarshal(llmutils.CleanJSON([]byte(content)), &r); err != nil {
		return nil, errors.WithMessage(err, "unparseable corrected parameters")
	}
	if r.Params == nil {
		return nil, errors.New("corrected parameters missing")
	}
	return r.Params, nil
}

func (g *Gateway) complete(ctx context.Context, operation string, req *llms.Request) (string, error) {
	started := time.Now()
	res, err := g.completer.Complete(ctx, req)
	metricskey.PerfLLMCall.MeasureSince(started, operation)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, operation)
		return "", err
	}
	return llmutils.SanitizeText(res.Content), nil
}
