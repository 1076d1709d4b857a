package agent

import (
	"context"
	"fmt"

	"maestro/config"
	"maestro/llm"
)

// resolveModel finds the model config for a model key
func resolveModel(cfg *config.Config, modelKey string) (*config.Model, string, error) {
	for i := range cfg.Models {
		m := &cfg.Models[i]
		supportedModels, ok := config.SupportedModels[m.Provider]
		if !ok {
			continue
		}

		for _, allowedKey := range m.AllowedModels {
			if allowedKey == modelKey {
				actualModel, ok := supportedModels[modelKey]
				if !ok {
					return nil, "", fmt.Errorf("model key '%s' not found in supported models for provider '%s'", modelKey, m.Provider)
				}
				return m, actualModel, nil
			}
		}
	}

	return nil, "", fmt.Errorf("no model config found for model '%s'", modelKey)
}

// createProvider creates the appropriate LLM provider based on config. The
// second return value reports whether the caller owns the provider and must
// close it.
func createProvider(ctx context.Context, modelConfig *config.Model) (llm.Provider, bool, error) {
	switch modelConfig.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(modelConfig.APIKey), false, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(modelConfig.APIKey), false, nil
	case config.ProviderGemini:
		provider, err := llm.NewGeminiProvider(ctx, modelConfig.APIKey)
		if err != nil {
			return nil, false, err
		}
		return provider, true, nil
	default:
		return nil, false, fmt.Errorf("unknown provider: %s", modelConfig.Provider)
	}
}
