package registry

import (
	"net/http"

	"github.com/ineyio/flowgate"
	"github.com/ineyio/flowgate/provider/anthropic"
	"github.com/ineyio/flowgate/provider/ollama"
	"github.com/ineyio/flowgate/provider/openai"
)

// Builtin returns the shipped backends in declaration order. The order is
// part of the contract: the first configured backend is the default.
func Builtin() []Entry {
	return []Entry{
		{
			ID:           anthropic.ID,
			Aliases:      []string{"claude"},
			DisplayName:  anthropic.DisplayName,
			DefaultModel: anthropic.DefaultModel,
			Models: []string{
				"claude-sonnet-4-20250514",
				"claude-opus-4-20250514",
				"claude-3-5-sonnet-20241022",
				"claude-3-5-haiku-20241022",
			},
			Config: func(env flowgate.Env) flowgate.ProviderConfig {
				return flowgate.ProviderConfig{
					APIKey:  env.Get("ANTHROPIC_API_KEY"),
					Model:   env.Get("ANTHROPIC_MODEL"),
					BaseURL: env.Get("ANTHROPIC_BASE_URL"),
				}
			},
			New: func(cfg flowgate.ProviderConfig, c *http.Client) flowgate.Provider {
				return anthropic.New(cfg, anthropic.WithHTTPClient(c))
			},
		},
		{
			ID:           openai.ID,
			Aliases:      []string{"gpt", "chatgpt"},
			DisplayName:  openai.DisplayName,
			DefaultModel: openai.DefaultModel,
			Models: []string{
				"gpt-4o",
				"gpt-4o-mini",
				"gpt-4-turbo",
				"gpt-4.1",
				"gpt-4.1-mini",
			},
			Config: func(env flowgate.Env) flowgate.ProviderConfig {
				return flowgate.ProviderConfig{
					APIKey:  env.Get("OPENAI_API_KEY"),
					Model:   env.Get("OPENAI_MODEL"),
					BaseURL: env.Get("OPENAI_BASE_URL"),
				}
			},
			New: func(cfg flowgate.ProviderConfig, c *http.Client) flowgate.Provider {
				return openai.New(cfg, openai.WithHTTPClient(c))
			},
		},
		{
			ID:          ollama.ID,
			Aliases:     []string{"local"},
			DisplayName: ollama.DisplayName,
			Config: func(env flowgate.Env) flowgate.ProviderConfig {
				return flowgate.ProviderConfig{
					BaseURL:     env.Get("OLLAMA_BASE_URL"),
					Model:       env.First("OLLAMA_TEXT_MODEL", "OLLAMA_MODEL"),
					VisionModel: env.Get("OLLAMA_VISION_MODEL"),
				}
			},
			New: func(cfg flowgate.ProviderConfig, c *http.Client) flowgate.Provider {
				return ollama.New(cfg, ollama.WithHTTPClient(c))
			},
		},
	}
}
