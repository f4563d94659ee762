package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/codeconvert/internal/orchestrator"
	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/internal/validator"
)

const EnvPrefix = "CODECONVERT"

// Provider kinds accepted in the providers list.
const (
	KindOpenAI     = "openai"
	KindOpenRouter = "openrouter"
	KindOllama     = "ollama"
)

type Config struct {
	Server       ServerConfig                    `mapstructure:"server"`
	Client       ClientConfig                    `mapstructure:"client"`
	Providers    []translator.ProviderConfig     `mapstructure:"providers"`
	Orchestrator orchestrator.OrchestratorConfig `mapstructure:"orchestrator"`
	CORS         CORSConfig                      `mapstructure:"cors"`
	Log          LogConfig                       `mapstructure:"log"`
	RateLimit    RateLimitConfig                 `mapstructure:"rate_limit"`
	Cache        CacheConfig                     `mapstructure:"cache"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxInputLength int           `mapstructure:"max_input_length"`
	StripThinking  bool          `mapstructure:"strip_thinking"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the peer address is always the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type ClientConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	HeaderTimeout  time.Duration `mapstructure:"header_timeout"`
	MaxInputLength int           `mapstructure:"max_input_length"`
	Clipboard      bool          `mapstructure:"clipboard"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Streams can take minutes; zero leaves writes unbounded.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.max_input_length", validator.DefaultMaxInputLength)
	v.SetDefault("server.strip_thinking", true)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("client.endpoint", "http://localhost:3001")
	v.SetDefault("client.header_timeout", 60*time.Second)
	v.SetDefault("client.max_input_length", validator.DefaultMaxInputLength)
	v.SetDefault("client.clipboard", true)

	v.SetDefault("orchestrator.timeout", 30*time.Second)
	v.SetDefault("orchestrator.max_attempts", 2)
	v.SetDefault("orchestrator.retry_delay", 500*time.Millisecond)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID", "X-Provider", "X-Upstream-Attempts", "X-Cache"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 12*60*60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.db_path", "./data/codeconvert.db")
}

// Load merges CODECONVERT_* environment variables, the config file and the
// built-in defaults, highest precedence first. An empty path looks for
// codeconvert.yaml in the working directory and ~/.config/codeconvert; a
// missing file is not an error in that case.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("codeconvert")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/codeconvert")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = defaultProviders()
	}
	applyProviderDefaults(cfg.Providers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultProviders uses every hosted provider whose API key is present in
// the environment, then a local Ollama.
func defaultProviders() []translator.ProviderConfig {
	var list []translator.ProviderConfig
	if os.Getenv("OPENAI_API_KEY") != "" {
		list = append(list, translator.ProviderConfig{Kind: KindOpenAI})
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		list = append(list, translator.ProviderConfig{Kind: KindOpenRouter})
	}
	return append(list, translator.ProviderConfig{Kind: KindOllama})
}

func applyProviderDefaults(providers []translator.ProviderConfig) {
	for i := range providers {
		p := &providers[i]
		p.Kind = strings.ToLower(p.Kind)
		if p.Name == "" {
			p.Name = p.Kind
		}
		if p.APIKey != "" {
			continue
		}
		// Config file wins; the provider's usual variable is the fallback.
		switch p.Kind {
		case KindOpenAI:
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		case KindOpenRouter:
			p.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
	}
}

func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		switch p.Kind {
		case KindOpenAI, KindOpenRouter, KindOllama:
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
	}

	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", p)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}
	return nil
}
