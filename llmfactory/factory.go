// Package llmfactory builds completion backends from configuration.
package llmfactory

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llms/anthropic"
	"github.com/effective-security/mcpagent/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "llmfactory")

type Factory interface {
	DefaultCompleter() (llms.Completer, error)
	CompleterByName(name string) (llms.Completer, error)
	CompleterByProvider(typ llms.ProviderType) (llms.Completer, error)
}

// Load returns a factory configured from the given file.
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	byName map[string]llms.Completer
	lock   sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	return &factory{
		cfg:    cfg,
		byName: make(map[string]llms.Completer),
	}
}

// NewCompleter builds a completer from one provider config.
func NewCompleter(cfg *ProviderConfig) (llms.Completer, error) {
	switch typ := llms.ProviderType(strings.ToUpper(cfg.Provider)); typ {
	case llms.ProviderOpenAI, "":
		var opts []openai.Option
		if cfg.Token != "" {
			opts = append(opts, openai.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case llms.ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.Token != "" {
			opts = append(opts, anthropic.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	default:
		return nil, errors.Newf("unsupported provider: %s", cfg.Provider)
	}
}

// DefaultCompleter returns the first configured provider.
func (f *factory) DefaultCompleter() (llms.Completer, error) {
	if len(f.cfg.Providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	return f.CompleterByName(f.cfg.Providers[0].Name)
}

func (f *factory) CompleterByName(name string) (llms.Completer, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byName[name]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if cfg.Name == name {
			completer, err := NewCompleter(cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"provider", cfg.Provider,
				"model", cfg.DefaultModel,
				"name", cfg.Name)

			f.byName[name] = completer
			return completer, nil
		}
	}
	return nil, errors.Errorf("provider not found for name: %s", name)
}

func (f *factory) CompleterByProvider(typ llms.ProviderType) (llms.Completer, error) {
	for _, cfg := range f.cfg.Providers {
		if llms.ProviderType(strings.ToUpper(cfg.Provider)) == typ {
			return f.CompleterByName(cfg.Name)
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", typ)
}
