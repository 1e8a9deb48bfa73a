// Package generator turns natural-language questions into SQL text by calling
// an external model. Nothing it returns is trusted.
package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/port"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultTimeout = 30 * time.Second
)

// Config selects and configures a generator backend.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	SchemaHint  string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// New builds the generator named by cfg.Provider. An empty provider returns
// nil so the pipeline runs without generation.
func New(cfg Config) (port.SQLGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case ProviderGemini:
		return NewGeminiGenerator(cfg)
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown generator %q (expected %q or %q)", cfg.Provider, ProviderGemini, ProviderOpenAI)
	}
}
