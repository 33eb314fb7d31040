// Package config loads the agent configuration and the tool-server
// descriptor file.
package config

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// LLMConfig specifies the text-completion backend defaults.
type LLMConfig struct {
	Provider            string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model               string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature         float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	ForceJSON           bool    `json:"force_json,omitempty" yaml:"force_json,omitempty"`
	MaxCompletionTokens int     `json:"max_completion_tokens,omitempty" yaml:"max_completion_tokens,omitempty" validate:"gte=0"`
}

// RetryStrategyConfig controls progressive-temperature parameter repair.
type RetryStrategyConfig struct {
	MaxRetries             int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=1"`
	ProgressiveTemperature bool    `json:"progressive_temperature,omitempty" yaml:"progressive_temperature,omitempty"`
	InitialTemperature     float64 `json:"initial_temperature,omitempty" yaml:"initial_temperature,omitempty" validate:"gte=0,lte=2"`
	TemperatureIncrement   float64 `json:"temperature_increment,omitempty" yaml:"temperature_increment,omitempty" validate:"gte=0"`
}

// ExecutionConfig controls the task-execution loop.
type ExecutionConfig struct {
	Timeout         time.Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	FallbackEnabled bool                `json:"fallback_enabled,omitempty" yaml:"fallback_enabled,omitempty"`
	MaxTasks        int                 `json:"max_tasks,omitempty" yaml:"max_tasks,omitempty" validate:"gte=1"`
	RetryStrategy   RetryStrategyConfig `json:"retry_strategy,omitempty" yaml:"retry_strategy,omitempty"`
}

// ConversationConfig bounds the conversation store.
type ConversationConfig struct {
	ContextLimit int `json:"context_limit,omitempty" yaml:"context_limit,omitempty" validate:"gte=1"`
	MaxHistory   int `json:"max_history,omitempty" yaml:"max_history,omitempty" validate:"gte=1"`
	// DisplayLength truncates each turn when building prompt context.
	DisplayLength int `json:"display_length,omitempty" yaml:"display_length,omitempty" validate:"gte=1"`
	// RedisAddr enables the Redis-backed store; empty keeps history in memory.
	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
}

// ErrorHandlingConfig controls parameter repair between retry attempts.
type ErrorHandlingConfig struct {
	AutoCorrectParams bool          `json:"auto_correct_params,omitempty" yaml:"auto_correct_params,omitempty"`
	RetryInterval     time.Duration `json:"retry_interval,omitempty" yaml:"retry_interval,omitempty"`
}

// ResultDisplayConfig bounds task output fed into interpretation.
type ResultDisplayConfig struct {
	MaxResultLength int `json:"max_result_length,omitempty" yaml:"max_result_length,omitempty" validate:"gte=1"`
}

// Config is the agent configuration.
type Config struct {
	LLM           LLMConfig           `json:"llm,omitempty" yaml:"llm,omitempty"`
	Execution     ExecutionConfig     `json:"execution,omitempty" yaml:"execution,omitempty"`
	Conversation  ConversationConfig  `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	ErrorHandling ErrorHandlingConfig `json:"error_handling,omitempty" yaml:"error_handling,omitempty"`
	ResultDisplay ResultDisplayConfig `json:"result_display,omitempty" yaml:"result_display,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:            "OPENAI",
			Model:               "gpt-4o-mini",
			Temperature:         0.2,
			ForceJSON:           true,
			MaxCompletionTokens: 5000,
		},
		Execution: ExecutionConfig{
			Timeout:         30 * time.Second,
			FallbackEnabled: true,
			MaxTasks:        10,
			RetryStrategy: RetryStrategyConfig{
				MaxRetries:             3,
				ProgressiveTemperature: true,
				InitialTemperature:     0.1,
				TemperatureIncrement:   0.2,
			},
		},
		Conversation: ConversationConfig{
			ContextLimit:  10,
			MaxHistory:    50,
			DisplayLength: 150,
			RedisPrefix:   "mcpagent",
		},
		ErrorHandling: ErrorHandlingConfig{
			AutoCorrectParams: true,
			RetryInterval:     time.Second,
		},
		ResultDisplay: ResultDisplayConfig{
			MaxResultLength: 1000,
		},
	}
}

// Load reads the agent configuration. A missing file yields the defaults,
// a malformed file is an error.
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()
	if file == "" {
		return cfg, nil
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load config %q", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}

// ServerDescriptor identifies one tool server and how to reach it.
// Either Command (stdio) or URL (streamable HTTP) is set.
type ServerDescriptor struct {
	ID      string            `json:"id" yaml:"id"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
}

type serversFile struct {
	MCPServers map[string]struct {
		Command string            `json:"command"`
		Args    []string          `json:"args"`
		Env     map[string]string `json:"env"`
		URL     string            `json:"url"`
	} `json:"mcpServers"`
	Servers []ServerDescriptor `json:"servers"`
}

// LoadServers reads the tool-server descriptor file. A missing or malformed
// file is fatal: the agent cannot operate without knowing its servers.
// Entries from the claude-style "mcpServers" map are returned in ID order
// for deterministic connect and discovery sequencing.
func LoadServers(file string) ([]ServerDescriptor, error) {
	bs, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read servers file %q", file)
	}

	var parsed serversFile
	if err := json.Unmarshal(bs, &parsed); err != nil {
		return nil, errors.WithMessagef(err, "failed to parse servers file %q", file)
	}

	var list []ServerDescriptor
	if len(parsed.MCPServers) > 0 {
		ids := make([]string, 0, len(parsed.MCPServers))
		for id := range parsed.MCPServers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			entry := parsed.MCPServers[id]
			list = append(list, ServerDescriptor{
				ID:      id,
				Command: entry.Command,
				Args:    entry.Args,
				Env:     entry.Env,
				URL:     entry.URL,
			})
		}
	} else {
		list = parsed.Servers
	}

	for i, d := range list {
		if d.ID == "" {
			return nil, errors.Errorf("server descriptor %d has no id", i)
		}
		if d.Command == "" && d.URL == "" {
			return nil, errors.Errorf("server %q has neither command nor url", d.ID)
		}
	}
	return list, nil
}
