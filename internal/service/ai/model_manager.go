package ai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/kapu/sales-intel-go/internal/constants"
	"github.com/kapu/sales-intel-go/internal/util"
	apperrors "github.com/kapu/sales-intel-go/pkg/errors"
	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	statusCodePattern    = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodePattern    = regexp.MustCompile(`(?:"code":|Error )(\d{3})`)
	leadingStatusPattern = regexp.MustCompile(`^(\d{3})\s`)
)

// ModelInvoker is what the autofill and report engines need from the model layer.
type ModelInvoker interface {
	GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error)
	GenerateText(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (string, *GenerateMetadata, error)
}

// ModelManager routes model calls to the primary provider and, when
// configured, a fallback. Circuit breaking is off unless requested, and then
// each preset has its own breaker so one operation's outage never rejects the
// other.
type ModelManager struct {
	primary  Provider
	fallback Provider
	logger   *zap.Logger
	breakers map[ModelPreset]*util.Breaker
}

type ModelManagerConfig struct {
	GeminiAPIKey         string
	OpenAIAPIKey         string
	DefaultGeminiModel   string
	DefaultOpenAIModel   string
	EnableFallback       bool
	EnableCircuitBreaker bool
}

// ManagerOption customizes a ModelManager at construction.
type ManagerOption func(mm *ModelManager)

// WithCircuitBreaker guards each of the given presets with its own breaker.
func WithCircuitBreaker(presets ...ModelPreset) ManagerOption {
	return func(mm *ModelManager) {
		for _, preset := range presets {
			mm.breakers[preset] = util.NewBreaker(
				string(preset),
				constants.CircuitBreakerConfig.FailureThreshold,
				constants.CircuitBreakerConfig.Cooldown,
				mm.logger,
			).WithHealthCheck(constants.CircuitBreakerConfig.HealthCheckInterval, mm.healthCheckPing)
		}
	}
}

func NewModelManager(ctx context.Context, cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = constants.DefaultGeminiModel
	}

	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = constants.DefaultOpenAIModel
	}

	var fallback Provider
	if cfg.EnableFallback {
		if openaiProvider := NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger); openaiProvider != nil {
			fallback = openaiProvider
			logger.Info("OpenAI fallback enabled", zap.String("model", defaultOpenAI))
		}
	}
	if fallback == nil {
		logger.Info("OpenAI fallback disabled")
	}

	var opts []ManagerOption
	if cfg.EnableCircuitBreaker {
		opts = append(opts, WithCircuitBreaker(PresetExtraction, PresetReport))
		logger.Info("Model circuit breakers enabled")
	}

	return NewModelManagerWithProviders(NewGeminiProvider(geminiClient, defaultGemini, logger), fallback, logger, opts...), nil
}

// NewModelManagerWithProviders wires explicit providers. fallback may be nil.
func NewModelManagerWithProviders(primary, fallback Provider, logger *zap.Logger, opts ...ManagerOption) *ModelManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	mm := &ModelManager{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		breakers: make(map[ModelPreset]*util.Breaker),
	}
	for _, opt := range opts {
		opt(mm)
	}

	return mm
}

// GenerateJSON requests a JSON answer and decodes it into dest.
func (mm *ModelManager) GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error) {
	var options GenerateOptions
	if opts != nil {
		options = *opts
	}
	options.JSONMode = true

	result, metadata, err := mm.generate(ctx, prompt, preset, &options)
	if err != nil {
		return nil, err
	}

	if err := mm.decodeJSON(result.Text, metadata, dest); err != nil {
		return nil, err
	}
	return metadata, nil
}

// GenerateText returns the model's free-text answer verbatim.
func (mm *ModelManager) GenerateText(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (string, *GenerateMetadata, error) {
	var options GenerateOptions
	if opts != nil {
		options = *opts
	}
	options.JSONMode = false
	options.Schema = nil

	result, metadata, err := mm.generate(ctx, prompt, preset, &options)
	if err != nil {
		return "", nil, err
	}
	return result.Text, metadata, nil
}

// generate calls the primary provider once and, when configured, the fallback
// once. With no fallback the primary error is returned as is.
// generate calls the primary provider once and, when configured, the fallback
// once. With no fallback the primary error is returned as is.
func (mm *ModelManager) generate(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (ProviderResult, *GenerateMetadata, error) {
	breaker := mm.breakers[preset]
	if breaker != nil && !breaker.Allow() {
		snap := breaker.Snapshot()
		mm.logger.Error("AI service unavailable (circuit open)",
			zap.String("preset", string(preset)),
			zap.Int("failure_count", snap.Failures),
		)
		return ProviderResult{}, nil, apperrors.NewCircuitOpenError(snap.Failures, snap.RetryAt)
	}

	if mm.primary == nil {
		return ProviderResult{}, nil, fmt.Errorf("model provider is not configured")
	}

	primaryResult, primaryErr := mm.primary.Generate(ctx, prompt, preset, opts)
	if primaryErr == nil {
		mm.recordSuccess(breaker)
		return primaryResult, &GenerateMetadata{
			Provider: mm.primary.Name(),
			Model:    primaryResult.Model,
		}, nil
	}

	if mm.fallback == nil || ctx.Err() != nil {
		mm.recordFailure(breaker, primaryErr)
		return ProviderResult{}, nil, primaryErr
	}

	mm.logger.Warn("Primary provider failed, trying fallback",
		zap.String("primary", mm.primary.Name()),
		zap.String("fallback", mm.fallback.Name()),
		zap.Error(primaryErr),
	)

	fallbackResult, fallbackErr := mm.fallback.Generate(ctx, prompt, preset, opts)
	if fallbackErr == nil {
		mm.recordSuccess(breaker)
		return fallbackResult, &GenerateMetadata{
			Provider:     mm.fallback.Name(),
			Model:        fallbackResult.Model,
			UsedFallback: true,
		}, nil
	}

	mm.recordFailure(breaker, fallbackErr)

	return ProviderResult{}, nil, fmt.Errorf("%w; fallback %s: %w", primaryErr, mm.fallback.Name(), fallbackErr)
}

func (mm *ModelManager) decodeJSON(text string, metadata *GenerateMetadata, dest any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%s API returned empty response", metadata.Provider)
	}

	cleaned := trimmed
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSpace(cleaned)
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		mm.logger.Error("Failed to unmarshal JSON response",
			zap.String("provider", metadata.Provider),
			zap.Error(err),
			zap.String("response_preview", util.TruncateString(cleaned, 200)),
		)
		return fmt.Errorf("invalid JSON from %s: %w", metadata.Provider, err)
	}

	return nil
}

func (mm *ModelManager) recordSuccess(breaker *util.Breaker) {
	if breaker != nil {
		breaker.Success()
	}
}

func (mm *ModelManager) recordFailure(breaker *util.Breaker, err error) {
	if breaker == nil || !isServiceFailure(err) {
		return
	}

	cooldown := constants.CircuitBreakerConfig.Cooldown
	if isRateLimitError(err) {
		cooldown = constants.CircuitBreakerConfig.RateLimitCooldown
	}
	breaker.Failure(cooldown)
}

func (mm *ModelManager) healthCheckPing() bool {
	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()

	primaryOK := mm.primary != nil && mm.primary.Ping(ctx)
	fallbackOK := mm.fallback != nil && mm.fallback.Ping(ctx)

	mm.logger.Info("Model health check",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
	)

	return primaryOK || fallbackOK
}

// CircuitStatus returns one snapshot per guarded preset; empty when circuit
// breaking is disabled.
func (mm *ModelManager) CircuitStatus() map[ModelPreset]util.BreakerSnapshot {
	status := make(map[ModelPreset]util.BreakerSnapshot, len(mm.breakers))
	for preset, breaker := range mm.breakers {
		status[preset] = breaker.Snapshot()
	}
	return status
}

func (mm *ModelManager) ResetCircuit() {
	for _, breaker := range mm.breakers {
		breaker.Reset()
	}
}

func statusCodeOf(err error) int {
	var openaiErr *openai.Error
	if stderrors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}

	msg := err.Error()
	if matches := geminiCodePattern.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code
		}
	}
	if matches := leadingStatusPattern.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code
		}
	}
	return 0
}

// isServiceFailure reports outages worth counting against the circuit:
// timeouts, rate limits and 5xx answers. Bad requests and parse errors are not.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}

	if isRateLimitError(err) {
		return true
	}

	if code := statusCodeOf(err); code != 0 {
		return code >= 500 && code < 600
	}

	return statusCodePattern.MatchString(msg)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	if statusCodeOf(err) == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "quota")
}
