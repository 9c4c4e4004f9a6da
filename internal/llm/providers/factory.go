// Package providers builds an agentrt.ToolCapableProvider from
// configuration, selecting among the Anthropic, OpenAI-style, and Ollama
// adapters. Ollama is the OpenAI adapter pointed at a local base URL.
package providers

import (
	"fmt"
	"net/http"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/llm/anthropic"
	openaillm "github.com/quiet-coder-io/domainos/internal/llm/openai"
)

// Build constructs a tool-capable provider for name ("anthropic" | "openai" |
// "ollama"), falling back to cfg.Providers.Default when name is empty.
func Build(cfg config.Config, name string, httpClient *http.Client) (agentrt.ToolCapableProvider, error) {
	if name == "" {
		name = cfg.Providers.Default
	}
	switch name {
	case "anthropic":
		return anthropic.NewToolAdapter(anthropic.New(cfg.Providers.Anthropic, httpClient)), nil
	case "openai":
		return openaillm.NewToolAdapter(openaillm.New(cfg.Providers.OpenAI, httpClient)), nil
	case "ollama":
		oc := cfg.Providers.Ollama
		if oc.BaseURL == "" {
			oc.BaseURL = "http://localhost:11434/v1"
		}
		return openaillm.NewToolAdapter(openaillm.New(oc, httpClient)), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
}
