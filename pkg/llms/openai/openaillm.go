// Package openai implements the completion backend on the official
// OpenAI SDK.
package openai

import (
	"context"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// TokenEnvVarName is the environment variable holding the API key.
const TokenEnvVarName = "OPENAI_API_KEY"

var ErrMissingToken = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")

// Options configure the OpenAI client.
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

// WithBaseURL overrides the API endpoint, for proxies and compatible servers.
func WithBaseURL(url string) Option {
	return func(o *Options) { o.BaseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HttpClient = client }
}

// LLM is an OpenAI chat completion backend.
type LLM struct {
	client openaisdk.Client
}

var _ llms.Completer = (*LLM)(nil)

// New returns a new OpenAI completer. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token: os.Getenv(TokenEnvVarName),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Token == "" {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	return &LLM{
		client: openaisdk.NewClient(sdkOpts...),
	}, nil
}

// GetProviderType implements the Completer interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// Complete implements the Completer interface.
func (o *LLM) Complete(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llms.RoleSystem:
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		case llms.RoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		case llms.RoleUser:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		default:
			return nil, errors.Newf("openai: role %q not supported", m.Role)
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(req.MaxCompletionTokens))
	}
	if req.JSONResponse {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	if len(result.Choices) == 0 {
		return nil, errors.New("openai: no response")
	}

	return &llms.Response{
		Content:      result.Choices[0].Message.Content,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}
