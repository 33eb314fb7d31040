package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/stretchr/testify/assert"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)

	ctx := context.Background()
	task := gateway.Task{Tool: "add", Description: "add the numbers"}

	cb.OnTurnStart(ctx, "What is 2+2?")
	cb.OnClassification(ctx, gateway.Verdict{Kind: gateway.VerdictToolRequired, Reason: "needs math"})
	cb.OnTaskStart(ctx, 1, 2, task)
	cb.OnTaskRetry(ctx, task, 1, 0.3, errors.New("bad params"))
	cb.OnTaskEnd(ctx, task, gateway.TaskResult{Tool: "add", Success: true, Result: "4", Attempts: 2})
	cb.OnToolNotFound(ctx, "subtract")
	cb.OnInterpretation(ctx, "The answer is 4.")
	cb.OnTurnEnd(ctx, "What is 2+2?", "The answer is 4.")

	res := buf.String()
	assert.Contains(t, res, "Input: What is 2+2?")
	assert.Contains(t, res, "Classification: TOOL (needs math)")
	assert.Contains(t, res, "[Step 1/2] add the numbers")
	assert.Contains(t, res, "[Retry] add after attempt 1: bad params")
	assert.Contains(t, res, "[Done] add the numbers")
	assert.Contains(t, res, "Output: 4")
	assert.Contains(t, res, "Tool Not Found: subtract")
	assert.Contains(t, res, "Interpretation: The answer is 4.")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	cb := callbacks.NewFanout(
		callbacks.NewPrinter(&buf1, callbacks.ModeDefault),
		callbacks.NewNoop(),
	)
	cb.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))

	cb.OnTurnStart(context.Background(), "hello")

	assert.Contains(t, buf1.String(), "Input: hello")
	assert.Contains(t, buf2.String(), "Input: hello")
}
