package llm

import (
	"fmt"
	"time"
)

// ModelTier selects which configured model a client uses. The light tier
// serves the cheap stage-one classifier; the heavy tier serves stage-two
// classification, structuring, and summarization.
type ModelTier string

const (
	TierLight ModelTier = "light"
	TierHeavy ModelTier = "heavy"
)

// FactoryConfig holds the parameters needed to create a Client.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// OpenAIHeavyModel is the OpenAI model for the heavy tier.
	OpenAIHeavyModel string
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
	// AnthropicHeavyModel is the Anthropic model for the heavy tier.
	AnthropicHeavyModel string
}

// NewClient creates a Client for the given tier based on the configuration.
// Supports "openai" and "anthropic" providers. Returns an error for
// unsupported or empty provider values.
func NewClient(cfg FactoryConfig, tier ModelTier) (Client, error) {
	switch cfg.Provider {
	case "openai":
		providerCfg := cfg.OpenAI
		if tier == TierHeavy && cfg.OpenAIHeavyModel != "" {
			providerCfg.Model = cfg.OpenAIHeavyModel
		}
		return NewOpenAIProvider(providerCfg, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		providerCfg := cfg.Anthropic
		if tier == TierHeavy && cfg.AnthropicHeavyModel != "" {
			providerCfg.Model = cfg.AnthropicHeavyModel
		}
		return NewAnthropicProvider(providerCfg, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
