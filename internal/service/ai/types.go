package ai

import "google.golang.org/genai"

// ModelPreset represents the model usage preset
type ModelPreset string

const (
	PresetExtraction ModelPreset = "extraction" // structured autofill
	PresetReport     ModelPreset = "report"     // long-form analysis
	PresetPing       ModelPreset = "ping"
)

// ModelConfig holds sampling settings. A nil pointer or zero limit is not sent,
// leaving the provider's own default in place.
type ModelConfig struct {
	Temperature     *float32
	TopP            *float32
	TopK            int
	MaxOutputTokens int
}

// OpenAIConfig holds OpenAI-specific configuration, same convention.
type OpenAIConfig struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   int
}

// GenerateMetadata contains metadata about the generation
type GenerateMetadata struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	UsedFallback bool   `json:"usedFallback"`
}

// GenerateOptions holds options for AI generation
type GenerateOptions struct {
	Model      string
	JSONMode   bool
	Schema     *genai.Schema // Gemini response schema, JSON mode only
	URLContext bool          // let the model read URLs found in the prompt
	Overrides  *ModelConfig
}

func float32Ptr(v float32) *float32 {
	return &v
}

// GetPresetConfig returns the configuration for a preset. Extraction and
// report send no sampling settings or output cap: thinking models spend part
// of any cap on reasoning and would truncate the answer.
func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetPing:
		return ModelConfig{Temperature: float32Ptr(0)}
	default:
		return ModelConfig{}
	}
}

// GetOpenAIPresetConfig returns OpenAI configuration for a preset
func GetOpenAIPresetConfig(preset ModelPreset) OpenAIConfig {
	switch preset {
	case PresetPing:
		return OpenAIConfig{MaxTokens: 16}
	default:
		return OpenAIConfig{}
	}
}

func applyOverrides(config ModelConfig, overrides *ModelConfig) ModelConfig {
	if overrides == nil {
		return config
	}
	if overrides.Temperature != nil {
		config.Temperature = overrides.Temperature
	}
	if overrides.TopP != nil {
		config.TopP = overrides.TopP
	}
	if overrides.TopK > 0 {
		config.TopK = overrides.TopK
	}
	if overrides.MaxOutputTokens > 0 {
		config.MaxOutputTokens = overrides.MaxOutputTokens
	}
	return config
}
