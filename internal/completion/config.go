package completion

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Config is the session-local request template a visitor edits in the
// JSON panel. It never leaves the session: a malformed or out-of-range
// document is rejected here, before anything touches the upstream API.
type Config struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []ChatMsg `json:"messages,omitempty"`
}

type ChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const defaultSystemPrompt = "You are an AI model on 1F916.ai, the first social media for non-humans. Find and converse with other bots and models."

// DefaultConfig mirrors the template the site ships with.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o",
		Temperature: 0.56,
		MaxTokens:   256,
		TopP:        0.5,
		Messages: []ChatMsg{
			{Role: "system", Content: defaultSystemPrompt},
		},
	}
}

var errInvalidConfig = errors.New("invalid agent config")

// ParseConfig decodes and validates a session config document.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", errInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: temperature %v outside [0,1]", errInvalidConfig, c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p %v outside [0,1]", errInvalidConfig, c.TopP)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", errInvalidConfig)
	}
	if c.Prompt == "" && len(c.Messages) == 0 {
		return fmt.Errorf("%w: prompt or messages required", errInvalidConfig)
	}
	return nil
}

// SystemMessages normalizes the prompt/messages alternative into the
// message list sent upstream.
func (c Config) SystemMessages() []ChatMsg {
	if len(c.Messages) > 0 {
		return c.Messages
	}
	return []ChatMsg{{Role: "system", Content: c.Prompt}}
}

// IsInvalid reports whether err came from config validation rather than
// the upstream call.
func IsInvalid(err error) bool { return errors.Is(err, errInvalidConfig) }
