package ai

import (
	"context"

	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/prompt"
	"go.uber.org/zap"
)

type ReportEngine struct {
	invoker       ModelInvoker
	promptBuilder *prompt.PromptBuilder
	logger        *zap.Logger
	preset        ModelPreset
}

func NewReportEngine(invoker ModelInvoker, builder *prompt.PromptBuilder, logger *zap.Logger) *ReportEngine {
	return &ReportEngine{
		invoker:       invoker,
		promptBuilder: builder,
		logger:        logger,
		preset:        PresetReport,
	}
}

// Generate returns the model's markdown untouched, whitespace included.
func (e *ReportEngine) Generate(ctx context.Context, seller domain.SellerInfo, buyer domain.BuyerInfo) (string, *GenerateMetadata, error) {
	data := prompt.DeepReportData{Seller: seller, Buyer: buyer}

	promptText, err := e.promptBuilder.BuildDeepReport(data)
	if err != nil {
		e.logger.Error("Failed to render report template, using fallback", zap.Error(err))
		promptText = prompt.FallbackDeepReportPrompt(data)
	}

	text, metadata, err := e.invoker.GenerateText(ctx, promptText, e.preset, &GenerateOptions{URLContext: true})
	if err != nil {
		e.logger.Error("Deep report generation failed",
			zap.String("seller_company", seller.Company),
			zap.String("buyer_company", buyer.Company),
			zap.Error(err),
		)
		return "", nil, err
	}

	if metadata != nil {
		e.logger.Info("Deep report generated",
			zap.String("provider", metadata.Provider),
			zap.String("model", metadata.Model),
			zap.Bool("used_fallback", metadata.UsedFallback),
			zap.Int("length", len(text)),
		)
	}

	return text, metadata, nil
}
