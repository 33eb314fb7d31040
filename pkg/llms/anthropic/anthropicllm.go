// Package anthropic implements the completion backend on the official
// Anthropic SDK.
package anthropic

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse = errors.New("anthropic: no response")
	ErrMissingToken  = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
)

// TokenEnvVarName is the environment variable holding the API key.
const TokenEnvVarName = "ANTHROPIC_API_KEY"

const DefaultMaxTokens = 4096

// Options configure the Anthropic client.
type Options struct {
	Token      string
	BaseURL    string
	HttpClient *http.Client
}

// Option mutates Options.
type Option func(*Options)

// WithToken sets the API key.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Options) { o.BaseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HttpClient = client }
}

// LLM is an Anthropic chat completion backend.
type LLM struct {
	client *anthropic.Client
}

var _ llms.Completer = (*LLM)(nil)

// New returns a new Anthropic completer. The API key comes from options
// or the ANTHROPIC_API_KEY environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:   os.Getenv(TokenEnvVarName),
		BaseURL: "https://api.anthropic.com",
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Token == "" {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(5 * time.Minute),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{client: &client}, nil
}

// GetProviderType implements the Completer interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// Complete implements the Completer interface. The Anthropic API has no
// JSON response mode; when req.JSONResponse is set the instruction is
// appended to the system prompt instead.
func (o *LLM) Complete(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	var systemPrompt string
	sdkMessages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llms.RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Content
		case llms.RoleUser:
			sdkMessages = append(sdkMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case llms.RoleAssistant:
			sdkMessages = append(sdkMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return nil, errors.Newf("anthropic: role %q not supported", m.Role)
		}
	}
	if req.JSONResponse {
		if systemPrompt != "" {
			systemPrompt += "\n"
		}
		systemPrompt += "Respond with a single JSON object and nothing else."
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    sdkMessages,
		MaxTokens:   values.NumbersCoalesce(int64(req.MaxCompletionTokens), DefaultMaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}

	result, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}

	var b strings.Builder
	for _, contentBlock := range result.Content {
		if content, ok := contentBlock.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(content.Text)
		}
	}
	if b.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &llms.Response{
		Content:      b.String(),
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}, nil
}
