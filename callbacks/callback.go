// Package callbacks provides ready-made implementations of the agent's
// turn event callback.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ agent.Callback = (*Noop)(nil)
	_ agent.Callback = (*Printer)(nil)
	_ agent.Callback = (*PackageLogger)(nil)
	_ agent.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agent.Callback
}

func NewFanout(callbacks ...agent.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agent.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnTurnStart(ctx context.Context, input string) {
	for _, callback := range l.callbacks {
		callback.OnTurnStart(ctx, input)
	}
}

func (l *Fanout) OnTurnEnd(ctx context.Context, input, response string) {
	for _, callback := range l.callbacks {
		callback.OnTurnEnd(ctx, input, response)
	}
}

func (l *Fanout) OnClassification(ctx context.Context, verdict gateway.Verdict) {
	for _, callback := range l.callbacks {
		callback.OnClassification(ctx, verdict)
	}
}

func (l *Fanout) OnTaskStart(ctx context.Context, index, total int, task gateway.Task) {
	for _, callback := range l.callbacks {
		callback.OnTaskStart(ctx, index, total, task)
	}
}

func (l *Fanout) OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult) {
	for _, callback := range l.callbacks {
		callback.OnTaskEnd(ctx, task, result)
	}
}

func (l *Fanout) OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error) {
	for _, callback := range l.callbacks {
		callback.OnTaskRetry(ctx, task, attempt, temperature, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

func (l *Fanout) OnInterpretation(ctx context.Context, response string) {
	for _, callback := range l.callbacks {
		callback.OnInterpretation(ctx, response)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnTurnStart(ctx context.Context, input string)                {}
func (l *Noop) OnTurnEnd(ctx context.Context, input, response string)        {}
func (l *Noop) OnClassification(ctx context.Context, verdict gateway.Verdict) {}
func (l *Noop) OnTaskStart(ctx context.Context, index, total int, task gateway.Task) {
}
func (l *Noop) OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult) {
}
func (l *Noop) OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)       {}
func (l *Noop) OnInterpretation(ctx context.Context, response string) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnTurnStart(ctx context.Context, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn Start\nInput: %s\n", input)
}

func (l *Printer) OnTurnEnd(ctx context.Context, input, response string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, "Turn End")
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, response)
	}
}

func (l *Printer) OnClassification(ctx context.Context, verdict gateway.Verdict) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Classification: %s", verdict.Kind)
	if verdict.Reason != "" {
		fmt.Fprintf(l.Out, " (%s)", verdict.Reason)
	}
	fmt.Fprintln(l.Out)
}

func (l *Printer) OnTaskStart(ctx context.Context, index, total int, task gateway.Task) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Step %d/%d] %s\n", index, total, task.Description)
	fmt.Fprintf(l.Out, "  -> running %s...\n", task.Tool)
}

func (l *Printer) OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if result.Success {
		fmt.Fprintf(l.Out, "[Done] %s\n", task.Description)
	} else {
		fmt.Fprintf(l.Out, "[Failed] %s: %s\n", task.Description, result.Result)
	}
	if l.Mode == ModeVerbose && result.Success {
		fmt.Fprintf(l.Out, "Output: %s\n", result.Result)
	}
}

func (l *Printer) OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Retry] %s after attempt %d: %s\n", task.Tool, attempt, err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnInterpretation(ctx context.Context, response string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Interpretation: %s\n", response)
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnTurnStart(ctx context.Context, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_start",
		"input", input,
	)
}

func (l *PackageLogger) OnTurnEnd(ctx context.Context, input, response string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_end",
		"response", response,
	)
}

func (l *PackageLogger) OnClassification(ctx context.Context, verdict gateway.Verdict) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "classification",
		"verdict", verdict.Kind,
		"llm_reason", verdict.Reason,
	)
}

func (l *PackageLogger) OnTaskStart(ctx context.Context, index, total int, task gateway.Task) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "task_start",
		"step", index,
		"total", total,
		"tool", task.Tool,
	)
}

func (l *PackageLogger) OnTaskEnd(ctx context.Context, task gateway.Task, result gateway.TaskResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "task_end",
		"tool", task.Tool,
		"success", result.Success,
		"attempts", result.Attempts,
	)
}

func (l *PackageLogger) OnTaskRetry(ctx context.Context, task gateway.Task, attempt int, temperature float64, err error) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "task_retry",
		"tool", task.Tool,
		"attempt", attempt,
		"temperature", temperature,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"tool", tool,
	)
}

func (l *PackageLogger) OnInterpretation(ctx context.Context, response string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "interpretation",
	)
}
