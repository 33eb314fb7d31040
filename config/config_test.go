package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/effective-security/mcpagent/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Execution.RetryStrategy.MaxRetries)
	assert.Equal(t, 10, cfg.Conversation.ContextLimit)
	assert.Equal(t, 50, cfg.Conversation.MaxHistory)
	assert.Equal(t, 150, cfg.Conversation.DisplayLength)
	assert.Equal(t, 30*time.Second, cfg.Execution.Timeout)

	// missing file behaves like no file
	cfg, err = config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	data := `
llm:
  model: gpt-4o
  temperature: 0.5
execution:
  fallback_enabled: false
  max_tasks: 3
  retry_strategy:
    max_retries: 5
    initial_temperature: 0.2
conversation:
  context_limit: 4
  max_history: 20
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o600))

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.False(t, cfg.Execution.FallbackEnabled)
	assert.Equal(t, 3, cfg.Execution.MaxTasks)
	assert.Equal(t, 5, cfg.Execution.RetryStrategy.MaxRetries)
	assert.Equal(t, 0.2, cfg.Execution.RetryStrategy.InitialTemperature)
	assert.Equal(t, 4, cfg.Conversation.ContextLimit)
	// untouched values keep their defaults
	assert.Equal(t, 150, cfg.Conversation.DisplayLength)
}

func TestLoadServers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mcp_servers.json")
	data := `{
  "mcpServers": {
    "database": {"command": "mcp-dbserver", "args": ["--db", "shop.db"]},
    "analytics": {"url": "http://127.0.0.1:8001/mcp"}
  }
}`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o600))

	list, err := config.LoadServers(file)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// sorted by id
	assert.Equal(t, "analytics", list[0].ID)
	assert.Equal(t, "http://127.0.0.1:8001/mcp", list[0].URL)
	assert.Equal(t, "database", list[1].ID)
	assert.Equal(t, []string{"--db", "shop.db"}, list[1].Args)
}

func TestLoadServersErrors(t *testing.T) {
	_, err := config.LoadServers(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(file, []byte("{"), 0o600))
	_, err = config.LoadServers(file)
	require.Error(t, err)

	file2 := filepath.Join(dir, "empty_entry.json")
	require.NoError(t, os.WriteFile(file2, []byte(`{"servers":[{"id":"x"}]}`), 0o600))
	_, err = config.LoadServers(file2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither command nor url")
}
