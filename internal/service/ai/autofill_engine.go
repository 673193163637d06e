package ai

import (
	"context"
	"strings"

	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/prompt"
	"go.uber.org/zap"
)

// AutofillEngine turns a list of URLs into seller/buyer profile fields.
type AutofillEngine struct {
	invoker       ModelInvoker
	promptBuilder *prompt.PromptBuilder
	logger        *zap.Logger
	preset        ModelPreset
}

func NewAutofillEngine(invoker ModelInvoker, builder *prompt.PromptBuilder, logger *zap.Logger) *AutofillEngine {
	return &AutofillEngine{
		invoker:       invoker,
		promptBuilder: builder,
		logger:        logger,
		preset:        PresetExtraction,
	}
}

// Fetch makes exactly one model call. Blank entries are dropped from the
// prompt; an empty list is still sent.
func (e *AutofillEngine) Fetch(ctx context.Context, urls []string) (*domain.AutofillResult, *GenerateMetadata, error) {
	data := prompt.AutofillData{URLs: compactURLs(urls)}

	promptText, err := e.promptBuilder.BuildAutofill(data)
	if err != nil {
		e.logger.Error("Failed to render autofill template, using fallback", zap.Error(err))
		promptText = prompt.FallbackAutofillPrompt(data)
	}

	var result domain.AutofillResult
	opts := &GenerateOptions{
		Schema:     prompt.AutofillSchema(),
		URLContext: true,
	}

	metadata, err := e.invoker.GenerateJSON(ctx, promptText, e.preset, &result, opts)
	if err != nil {
		e.logger.Error("Autofill generation failed",
			zap.Int("url_count", len(data.URLs)),
			zap.Error(err),
		)
		return nil, nil, err
	}

	if metadata != nil {
		e.logger.Info("Autofill completed",
			zap.String("provider", metadata.Provider),
			zap.String("model", metadata.Model),
			zap.Bool("used_fallback", metadata.UsedFallback),
			zap.Int("url_count", len(data.URLs)),
			zap.Float64("confidence", result.Confidence),
		)
	}

	return &result, metadata, nil
}

func compactURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
