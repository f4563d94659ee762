package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel     = "gpt-3.5-turbo"
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "qwen/qwen-2.5-coder-32b-instruct:free"
)

// OpenAIProvider streams chat completions from any OpenAI-compatible API
// (OpenAI itself, OpenRouter, vLLM, ...).
type OpenAIProvider struct {
	name        string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	client      *openai.Client
}

func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	// Only the wait for response headers is bounded; a total client timeout
	// would cut long outputs off mid-stream.
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	return &OpenAIProvider{
		name:        cfg.Name,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      openai.NewClientWithConfig(clientConfig),
	}
}

// NewOpenRouterProvider is an OpenAIProvider pointed at OpenRouter.
func NewOpenRouterProvider(cfg ProviderConfig) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenRouterModel
	}
	return NewOpenAIProvider(cfg)
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) Open(ctx context.Context, body TranslateBody) (Stream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: API key required", p.name)
	}

	system, user := BuildPrompt(body)

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open stream: %w", p.name, err)
	}

	return &openAIStream{stream: stream}, nil
}

func (p *OpenAIProvider) IsAvailable(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("%s: API key not configured", p.name)
	}
	return nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		// Role-only and usage frames carry no text.
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			return resp.Choices[0].Delta.Content, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
