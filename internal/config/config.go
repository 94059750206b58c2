// Package config holds the run configuration: defaults, an optional TOML
// file, and secrets from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"doc_summarizer/internal/tokens"
)

var (
	// ErrUnknownModel is returned when no token limit is known for the model
	// and none is configured.
	ErrUnknownModel = tokens.ErrUnknownModel

	// ErrConfigNil is returned when the config is nil.
	ErrConfigNil = errors.New("config is nil")

	// ErrModelRequired is returned when the model name is empty.
	ErrModelRequired = errors.New("model is required in config")
)

// Defaults for a summarization run.
const (
	DefaultModel             = "gpt-3.5-turbo"
	DefaultChoices           = 1
	DefaultCheckpoint        = "summarizer.json"
	DefaultGenre             = "detailed textbook"
	DefaultTopic             = "[not specified]"
	DefaultLanguage          = "English"
	DefaultLogDir            = "./logs"
	DefaultMaxCompressRounds = 16
)

// Environment variables read by FromEnv.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
)

// Elasticsearch configures log, metrics and event shipping. No addresses
// disables shipping.
type Elasticsearch struct {
	Addresses   []string `toml:"addresses"`
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	EventsIndex string   `toml:"events_index"`
}

// Config is the full configuration of one run.
//
// Zero values fall back to the Default* constants through the getters, so a
// partially filled Config (from flags or a file) is always usable.
type Config struct {
	Model   string `toml:"model"`
	Choices int    `toml:"choices"`

	// Checkpoint is a file path, a *.db/*.sqlite path, or a sqlite:// or
	// postgres:// URL. CheckpointName keys the snapshot in database stores.
	Checkpoint     string `toml:"checkpoint"`
	CheckpointName string `toml:"checkpoint_name"`

	Genre    string `toml:"genre"`
	Topic    string `toml:"topic"`
	Language string `toml:"language"`
	Context  string `toml:"context"`

	LogDir  string `toml:"log_dir"`
	Verbose bool   `toml:"verbose"`

	// TokenLimit overrides the per-model limit table.
	TokenLimit        int     `toml:"token_limit"`
	MaxCompressRounds int     `toml:"max_compress_rounds"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	MaxOutputTokens   int     `toml:"max_output_tokens"`

	OpenAIBaseURL string        `toml:"openai_base_url"`
	Elasticsearch Elasticsearch `toml:"elasticsearch"`

	OpenAIKey    string `toml:"-"`
	AnthropicKey string `toml:"-"`
}

// Default returns a Config with every default filled in.
func Default() *Config {
	return &Config{
		Model:             DefaultModel,
		Choices:           DefaultChoices,
		Checkpoint:        DefaultCheckpoint,
		Genre:             DefaultGenre,
		Topic:             DefaultTopic,
		Language:          DefaultLanguage,
		LogDir:            DefaultLogDir,
		MaxCompressRounds: DefaultMaxCompressRounds,
	}
}

// LoadFile decodes a TOML file over the defaults. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config %s: %s", path, strict.String())
		}
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv fills secrets and the OpenAI base URL from the environment.
// Values already set are kept.
func (c *Config) FromEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = getenv(EnvOpenAIKey)
	}
	if c.AnthropicKey == "" {
		c.AnthropicKey = getenv(EnvAnthropicKey)
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = getenv(EnvOpenAIBaseURL)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Model == "" {
		return ErrModelRequired
	}
	if c.Choices < 0 {
		return fmt.Errorf("choices must be positive, got %d", c.Choices)
	}
	if c.TokenLimit < 0 {
		return fmt.Errorf("token limit must be positive, got %d", c.TokenLimit)
	}
	if _, err := c.ResolveTokenLimit(); err != nil {
		return err
	}
	return nil
}

// ResolveTokenLimit returns TokenLimit when set, otherwise the table entry for Model.
func (c *Config) ResolveTokenLimit() (int, error) {
	if c.TokenLimit > 0 {
		return c.TokenLimit, nil
	}
	return tokens.Limit(c.Model)
}

// GetChoices returns the number of final text candidates, using default if not set.
func (c *Config) GetChoices() int {
	if c.Choices <= 0 {
		return DefaultChoices
	}
	return c.Choices
}

func (c *Config) GetCheckpoint() string {
	if c.Checkpoint == "" {
		return DefaultCheckpoint
	}
	return c.Checkpoint
}

func (c *Config) GetGenre() string {
	if c.Genre == "" {
		return DefaultGenre
	}
	return c.Genre
}

func (c *Config) GetTopic() string {
	if c.Topic == "" {
		return DefaultTopic
	}
	return c.Topic
}

func (c *Config) GetLanguage() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}

// GetMaxCompressRounds returns the compression round cap, using default if not set.
func (c *Config) GetMaxCompressRounds() int {
	if c.MaxCompressRounds <= 0 {
		return DefaultMaxCompressRounds
	}
	return c.MaxCompressRounds
}
