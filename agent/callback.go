package agent

import (
	"context"

	"github.com/effective-security/mcpagent/gateway"
)

// Callback receives turn lifecycle events. Implementations must be safe
// for use from a single turn at a time; the agent serializes turns.
type Callback interface {
	OnTurnStart(ctx context.Context, input string)
	OnTurnEnd(ctx context.Context, input, response string)
	OnClassification(ctx context.Context, verdict gateway.Verdict)
	OnTaskStart(ctx context.Context, index, total int, task gateway.Task)
	OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult)
	OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error)
	OnToolNotFound(ctx context.Context, tool string)
	OnInterpretation(ctx context.Context, response string)
}

type noopCallback struct{}

func (noopCallback) OnTurnStart(ctx context.Context, input string)            {}
func (noopCallback) OnTurnEnd(ctx context.Context, input, response string)    {}
func (noopCallback) OnClassification(ctx context.Context, v gateway.Verdict)  {}
func (noopCallback) OnTaskStart(ctx context.Context, index, total int, task gateway.Task) {
}
func (noopCallback) OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult) {
}
func (noopCallback) OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error) {
}
func (noopCallback) OnToolNotFound(ctx context.Context, tool string)      {}
func (noopCallback) OnInterpretation(ctx context.Context, response string) {}
