package llm

import (
	"fmt"

	"nur/internal/config"
	"nur/internal/llm/anthropic"
	"nur/internal/llm/openai"
	"nur/internal/observability"
)

// NewFromConfig builds the configured Provider, wiring its HTTP transport
// through observability.NewHTTPClient the same way the teacher instruments
// every outbound LLM call for tracing.
func NewFromConfig(cfg config.LLMConfig) (Provider, error) {
	httpClient := observability.NewHTTPClient(nil)
	switch cfg.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.APIKey, cfg.BaseURL, httpClient), nil
	case "openai":
		return openai.New(cfg.APIKey, cfg.BaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
