// Package agent runs the request-orchestration pipeline: classify the
// request, plan tool tasks, execute them against the connection pool and
// interpret the results into one response string.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/effective-security/mcpagent/history"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/pool"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "agent")

// Fixed responses for turns that cannot go through tool execution.
const (
	// NoPlanResponse is returned when planning yields no tasks.
	NoPlanResponse = "I could not produce a task list for this request. Can I help in another way?"
	// ClarificationFallback is returned when the classifier asks for
	// clarification without providing a question.
	ClarificationFallback = "I need more information to proceed. Could you give more detail?"
)

// Gateway is the semantic LLM surface the agent drives.
type Gateway interface {
	Classify(ctx context.Context, query, recentContext, catalog string) gateway.Verdict
	Plan(ctx context.Context, query, recentContext, catalog string) []gateway.Task
	Interpret(ctx context.Context, query string, results []gateway.TaskResult, recentContext string) string
	RepairParams(ctx context.Context, task gateway.Task, errMsg, catalog string, temperature float64) (map[string]any, error)
}

// Pool is the connection-pool surface the agent drives.
type Pool interface {
	ConnectAll(ctx context.Context, descriptors []config.ServerDescriptor) []pool.State
	DiscoverTools(ctx context.Context, serverID string) ([]mcp.Tool, error)
	Invoke(ctx context.Context, serverID, tool string, args map[string]any) (string, error)
	DisconnectAll()
}

// Catalog resolves tool names and renders the prompt catalog.
type Catalog interface {
	Register(connectionID string, tools []mcp.Tool)
	Resolve(name string) (*registry.ToolEntry, bool)
	Len() int
	Format() string
}

// Option configures an Agent.
type Option func(*Agent)

// WithCallback sets the turn event callback.
func WithCallback(cb Callback) Option {
	return func(a *Agent) { a.callback = cb }
}

// Agent is the orchestration engine. One turn runs at a time; a second
// ProcessRequest blocks until the first finishes.
type Agent struct {
	cfg      *config.Config
	servers  []config.ServerDescriptor
	gateway  Gateway
	pool     Pool
	catalog  Catalog
	store    history.Store
	callback Callback

	turnMu sync.Mutex
}

// New returns an agent over the given collaborators.
func New(cfg *config.Config, servers []config.ServerDescriptor, gw Gateway, p Pool, catalog Catalog, store history.Store, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		servers:  servers,
		gateway:  gw,
		pool:     p,
		catalog:  catalog,
		store:    store,
		callback: noopCallback{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize connects to every configured server and discovers their
// tools. Connection and discovery failures are isolated per server; the
// returned states report them. Discovery runs concurrently.
func (a *Agent) Initialize(ctx context.Context) ([]pool.State, error) {
	states := a.pool.ConnectAll(ctx, a.servers)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, s := range states {
		if s.Status != pool.StatusConnected {
			continue
		}
		wg.Add(1)
		go func(serverID string) {
			defer wg.Done()
			tools, err := a.pool.DiscoverTools(ctx, serverID)
			if err != nil {
				// the connection stays usable, it just offers no tools
				logger.ContextKV(ctx, xlog.WARNING,
					"reason", "discovery_failed",
					"server", serverID,
					"err", err.Error())
				return
			}
			mu.Lock()
			a.catalog.Register(serverID, tools)
			mu.Unlock()
		}(s.ServerID)
	}
	wg.Wait()

	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialized",
		"servers", len(states),
		"tools", a.catalog.Len())
	return states, nil
}

// Shutdown closes all connections.
func (a *Agent) Shutdown() {
	a.pool.DisconnectAll()
}

// ProcessRequest runs one conversation turn and always produces a
// response string for business failures; the error return covers only
// conversation-store faults and cancellation.
func (a *Agent) ProcessRequest(ctx context.Context, userQuery string) (string, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	started := time.Now()
	defer metricskey.PerfTurn.MeasureSince(started)

	a.callback.OnTurnStart(ctx, userQuery)
	logger.ContextKV(ctx, xlog.DEBUG, "query", slices.StringUpto(userQuery, 64))

	if _, err := a.store.Append(ctx, history.RoleUser, userQuery); err != nil {
		return "", errors.WithMessage(err, "failed to record user turn")
	}

	turns, err := a.store.Recent(ctx, a.cfg.Conversation.ContextLimit)
	if err != nil {
		return "", errors.WithMessage(err, "failed to read conversation history")
	}
	recentContext := history.FormatContext(turns, a.cfg.Conversation.DisplayLength)
	catalog := a.catalog.Format()

	verdict := a.gateway.Classify(ctx, userQuery, recentContext, catalog)
	a.callback.OnClassification(ctx, verdict)
	metricskey.StatsTurnsProcessed.IncrCounter(1, string(verdict.Kind))

	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch verdict.Kind {
	case gateway.VerdictNoTool:
		return a.respond(ctx, userQuery, verdict.Response)
	case gateway.VerdictClarification:
		question := verdict.Response
		if question == "" {
			question = ClarificationFallback
		}
		return a.respond(ctx, userQuery, question)
	}

	tasks := a.gateway.Plan(ctx, userQuery, recentContext, catalog)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		metricskey.StatsPlansEmpty.IncrCounter(1)
		return a.respond(ctx, userQuery, NoPlanResponse)
	}
	if maxTasks := a.cfg.Execution.MaxTasks; maxTasks > 0 && len(tasks) > maxTasks {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "task_list_capped", "planned", len(tasks), "max", maxTasks)
		tasks = tasks[:maxTasks]
	}

	results, err := a.executeTasks(ctx, tasks, catalog)
	if err != nil {
		return "", err
	}

	response := a.gateway.Interpret(ctx, userQuery, results, recentContext)
	a.callback.OnInterpretation(ctx, response)

	return a.respond(ctx, userQuery, response)
}

func (a *Agent) respond(ctx context.Context, userQuery, response string) (string, error) {
	if _, err := a.store.Append(ctx, history.RoleAssistant, response); err != nil {
		return "", errors.WithMessage(err, "failed to record assistant turn")
	}
	a.callback.OnTurnEnd(ctx, userQuery, response)
	return response, nil
}

// executeTasks runs the planned tasks sequentially, in order. One task's
// failure never terminates the loop unless fallback is disabled. The
// returned results preserve the planned order.
func (a *Agent) executeTasks(ctx context.Context, tasks []gateway.Task, catalog string) ([]gateway.TaskResult, error) {
	results := make([]gateway.TaskResult, 0, len(tasks))

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.callback.OnTaskStart(ctx, i+1, len(tasks), task)

		entry, ok := a.catalog.Resolve(task.Tool)
		if !ok {
			a.callback.OnToolNotFound(ctx, task.Tool)
			metricskey.StatsTasksFailed.IncrCounter(1, task.Tool)
			result := gateway.TaskResult{
				Tool:        task.Tool,
				Description: task.Description,
				Result:      fmt.Sprintf("error: tool %q not found", task.Tool),
			}
			a.callback.OnTaskEnd(ctx, task, result)
			results = append(results, result)
			continue
		}

		result, cancelled := a.executeTask(ctx, entry.ServerID, task, catalog)
		a.callback.OnTaskEnd(ctx, task, result)
		results = append(results, result)
		if cancelled {
			return nil, ctx.Err()
		}

		if !result.Success && !a.cfg.Execution.FallbackEnabled {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "fallback_disabled", "tool", task.Tool)
			for _, rest := range tasks[i+1:] {
				results = append(results, gateway.TaskResult{
					Tool:        rest.Tool,
					Description: rest.Description,
					Result:      "skipped: a previous task failed",
				})
			}
			break
		}
	}
	return results, nil
}

// executeTask runs one task with the retry policy: up to MaxRetries
// attempts, and between attempts a parameter repair at a progressively
// higher temperature when auto-correction is enabled. A direct retry
// without repair reuses the parameters unchanged.
func (a *Agent) executeTask(ctx context.Context, serverID string, task gateway.Task, catalog string) (result gateway.TaskResult, cancelled bool) {
	rs := a.cfg.Execution.RetryStrategy
	maxAttempts := rs.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	params := task.Params
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if a.cfg.Execution.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.Execution.Timeout)
		}
		output, err := a.pool.Invoke(callCtx, serverID, task.Tool, params)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			metricskey.StatsTasksSucceeded.IncrCounter(1, task.Tool)
			return gateway.TaskResult{
				Tool:        task.Tool,
				Description: task.Description,
				Result:      output,
				Success:     true,
				Attempts:    attempt,
			}, false
		}
		lastErr = err

		if ctx.Err() != nil {
			// the caller cancelled the turn, not a tool failure
			return gateway.TaskResult{
				Tool:        task.Tool,
				Description: task.Description,
				Result:      "cancelled: " + ctx.Err().Error(),
				Attempts:    attempt,
			}, true
		}

		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "task_failed",
			"tool", task.Tool,
			"attempt", attempt,
			"err", err.Error())
		if attempt == maxAttempts {
			break
		}

		metricskey.StatsTaskRetries.IncrCounter(1, task.Tool)
		if a.cfg.ErrorHandling.AutoCorrectParams {
			temperature := rs.InitialTemperature
			if rs.ProgressiveTemperature {
				temperature += rs.TemperatureIncrement * float64(attempt)
			}
			a.callback.OnTaskRetry(ctx, task, attempt, temperature, err)
			repairTask := task
			repairTask.Params = params
			corrected, rerr := a.gateway.RepairParams(ctx, repairTask, err.Error(), catalog, temperature)
			if rerr != nil {
				logger.ContextKV(ctx, xlog.WARNING, "reason", "param_repair_failed", "tool", task.Tool, "err", rerr.Error())
			} else {
				params = corrected
			}
		} else {
			a.callback.OnTaskRetry(ctx, task, attempt, 0, err)
		}

		if interval := a.cfg.ErrorHandling.RetryInterval; interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	metricskey.StatsTasksFailed.IncrCounter(1, task.Tool)
	return gateway.TaskResult{
		Tool:        task.Tool,
		Description: task.Description,
		Result:      "error: " + lastErr.Error(),
		Attempts:    maxAttempts,
	}, false
}
