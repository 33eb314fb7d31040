package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsTurnsProcessed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_turns_processed",
		Help:         "stats_agent_turns_processed provides total turns processed by the agent",
		RequiredTags: []string{"verdict"},
	}

	StatsClassificationFallbacks = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_agent_classification_fallbacks",
		Help: "stats_agent_classification_fallbacks provides total classifications that fell back to tool execution",
	}

	StatsPlansEmpty = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_agent_plans_empty",
		Help: "stats_agent_plans_empty provides total planning calls that produced no tasks",
	}

	StatsTasksSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_tasks_succeeded",
		Help:         "stats_agent_tasks_succeeded provides total tasks executed successfully",
		RequiredTags: []string{"tool"},
	}

	StatsTasksFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_tasks_failed",
		Help:         "stats_agent_tasks_failed provides total tasks that exhausted their retries",
		RequiredTags: []string{"tool"},
	}

	StatsTaskRetries = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_task_retries",
		Help:         "stats_agent_task_retries provides total task retry attempts",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_pool_tool_calls_succeeded",
		Help:         "stats_pool_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"server", "tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_pool_tool_calls_failed",
		Help:         "stats_pool_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"server", "tool"},
	}

	StatsConnectionsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_pool_connections_failed",
		Help:         "stats_pool_connections_failed provides total connection attempts failed",
		RequiredTags: []string{"server"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_gateway_llm_calls_failed",
		Help:         "stats_gateway_llm_calls_failed provides total LLM calls failed",
		RequiredTags: []string{"operation"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_pool_tool_call",
		Help:         "perf_pool_tool_call provides tool call latency",
		RequiredTags: []string{"tool"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_gateway_llm_call",
		Help:         "perf_gateway_llm_call provides LLM call latency",
		RequiredTags: []string{"operation"},
	}

	PerfTurn = metrics.Describe{
		Type: metrics.TypeSample,
		Name: "perf_agent_turn",
		Help: "perf_agent_turn provides full turn latency",
	}
)
