package ai

import (
	"context"

	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/prompt"
	"go.uber.org/zap"
)

// IntelService exposes the two model-backed operations. Calls are independent
// and safe for concurrent use.
type IntelService struct {
	modelManager *ModelManager
	autofill     *AutofillEngine
	report       *ReportEngine
	logger       *zap.Logger
}

func NewIntelService(modelManager *ModelManager, logger *zap.Logger) *IntelService {
	svc := NewIntelServiceWithInvoker(modelManager, prompt.DefaultPromptBuilder(), logger)
	svc.modelManager = modelManager
	return svc
}

func NewIntelServiceWithInvoker(invoker ModelInvoker, builder *prompt.PromptBuilder, logger *zap.Logger) *IntelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = prompt.DefaultPromptBuilder()
	}
	return &IntelService{
		autofill: NewAutofillEngine(invoker, builder, logger),
		report:   NewReportEngine(invoker, builder, logger),
		logger:   logger,
	}
}

func (s *IntelService) FetchAutofillData(ctx context.Context, urls []string) (*domain.AutofillResult, *GenerateMetadata, error) {
	return s.autofill.Fetch(ctx, urls)
}

func (s *IntelService) GenerateDeepReport(ctx context.Context, seller domain.SellerInfo, buyer domain.BuyerInfo) (string, *GenerateMetadata, error) {
	return s.report.Generate(ctx, seller, buyer)
}

// CircuitStatus maps each guarded operation to its breaker state. It is
// empty when circuit breaking is off or the service has no ModelManager.
func (s *IntelService) CircuitStatus() map[string]string {
	states := make(map[string]string)
	if s.modelManager == nil {
		return states
	}
	for preset, snap := range s.modelManager.CircuitStatus() {
		states[string(preset)] = snap.State.String()
	}
	return states
}
