package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_OpenAI(t *testing.T) {
	t.Parallel()

	cfg := FactoryConfig{
		Provider:    "openai",
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Temperature: 0.0,
		OpenAI: OpenAIConfig{
			APIKey:  "sk-test-key",
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
		},
		OpenAIHeavyModel: "gpt-4o",
	}

	t.Run("light tier uses base model", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(cfg, TierLight)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "openai", client.Provider())
		assert.Equal(t, "gpt-4o-mini", client.Model())
	})

	t.Run("heavy tier uses heavy model", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(cfg, TierHeavy)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "openai", client.Provider())
		assert.Equal(t, "gpt-4o", client.Model())
	})

	t.Run("heavy tier falls back to base model when unset", func(t *testing.T) {
		t.Parallel()

		noHeavy := cfg
		noHeavy.OpenAIHeavyModel = ""

		client, err := NewClient(noHeavy, TierHeavy)

		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", client.Model())
	})
}

func TestNewClient_Anthropic(t *testing.T) {
	t.Parallel()

	cfg := FactoryConfig{
		Provider:    "anthropic",
		Timeout:     45 * time.Second,
		MaxRetries:  2,
		Temperature: 0.0,
		Anthropic: AnthropicConfig{
			APIKey:  "sk-ant-test-key",
			Model:   "claude-3-5-haiku-20241022",
			BaseURL: "https://api.anthropic.com",
		},
		AnthropicHeavyModel: "claude-3-5-sonnet-20241022",
	}

	t.Run("light tier uses base model", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(cfg, TierLight)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "anthropic", client.Provider())
		assert.Equal(t, "claude-3-5-haiku-20241022", client.Model())
	})

	t.Run("heavy tier uses heavy model", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(cfg, TierHeavy)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "anthropic", client.Provider())
		assert.Equal(t, "claude-3-5-sonnet-20241022", client.Model())
	})
}

func TestNewClient_Unknown(t *testing.T) {
	t.Parallel()

	cfg := FactoryConfig{
		Provider: "unknown-provider",
	}

	client, err := NewClient(cfg, TierLight)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestNewClient_EmptyProvider(t *testing.T) {
	t.Parallel()

	cfg := FactoryConfig{
		Provider: "",
	}

	client, err := NewClient(cfg, TierLight)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}
