package translator

import (
	"context"
	"time"
)

// TranslateBody is the JSON payload of POST /api/translate.
type TranslateBody struct {
	InputLanguage  string `json:"inputLanguage"`
	OutputLanguage string `json:"outputLanguage"`
	InputCode      string `json:"inputCode"`
}

type ProviderConfig struct {
	Name        string        `mapstructure:"name" json:"name"`
	Kind        string        `mapstructure:"kind" json:"kind"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Temperature float32       `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Stream yields translated text in arrival order. Recv returns io.EOF once
// the upstream has finished.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider is an upstream model that can stream a translation.
type Provider interface {
	Name() string
	Open(ctx context.Context, body TranslateBody) (Stream, error)
	IsAvailable(ctx context.Context) error
}
