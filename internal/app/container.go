package app

import (
	"context"
	"fmt"

	"github.com/kapu/sales-intel-go/internal/config"
	"github.com/kapu/sales-intel-go/internal/prompt"
	"github.com/kapu/sales-intel-go/internal/server"
	"github.com/kapu/sales-intel-go/internal/service/ai"
	"github.com/kapu/sales-intel-go/internal/service/archive"
	"github.com/kapu/sales-intel-go/internal/service/cache"
	"github.com/kapu/sales-intel-go/internal/service/database"
	"github.com/kapu/sales-intel-go/internal/service/preview"
	"go.uber.org/zap"
)

// Container bundles the assembled services behind the HTTP server.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	ModelManager *ai.ModelManager
	Intel        *ai.IntelService
	Server       *server.Server

	closers []func()
}

// BuildIntel wires only the model stack. Command line tools use it directly.
func BuildIntel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.ModelManager, *ai.IntelService, error) {
	if err := prompt.DefaultPromptBuilder().Preload(); err != nil {
		return nil, nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	modelManager, err := ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:         cfg.Gemini.APIKey,
		OpenAIAPIKey:         cfg.OpenAI.APIKey,
		DefaultGeminiModel:   cfg.Gemini.Model,
		DefaultOpenAIModel:   cfg.OpenAI.Model,
		EnableFallback:       cfg.OpenAI.EnableFallback,
		EnableCircuitBreaker: cfg.Gemini.CircuitBreaker,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model manager: %w", err)
	}

	return modelManager, ai.NewIntelService(modelManager, logger), nil
}

// Build assembles every service. Redis and PostgreSQL are only dialed when
// enabled; anything opened before a failure is closed in reverse order.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	modelManager, intel, err := BuildIntel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := server.Options{
		Port:         cfg.Server.Port,
		Mode:         cfg.Server.Mode,
		AllowOrigins: cfg.Server.AllowOrigins,
		HealthChecks: map[string]func(ctx context.Context) error{},
	}

	if cfg.Redis.Enabled {
		cacheSvc, err := cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		closers = append(closers, func() {
			_ = cacheSvc.Close()
		})
		if cfg.Redis.AutofillTTL > 0 {
			opts.Cache = cache.NewAutofillCache(cacheSvc, cfg.Redis.AutofillTTL, logger)
		} else {
			logger.Info("Autofill cache disabled by non-positive TTL")
		}
		opts.HealthChecks["redis"] = cacheSvc.Ping
	} else {
		logger.Info("Autofill cache disabled")
	}

	if cfg.Postgres.Enabled {
		postgresSvc, err := database.NewPostgresService(database.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres service: %w", err)
		}
		closers = append(closers, func() {
			_ = postgresSvc.Close()
		})

		reportArchive := archive.NewReportArchive(postgresSvc, logger)
		if err := reportArchive.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare report archive: %w", err)
		}
		opts.Archive = reportArchive
		opts.HealthChecks["postgres"] = postgresSvc.Ping
	} else {
		logger.Info("Report archive disabled")
	}

	if cfg.Preview.Enabled {
		opts.Previews = preview.NewFetcher(cfg.Preview.Timeout, cfg.Preview.Concurrency, logger)
	}

	container = &Container{
		Config:       cfg,
		Logger:       logger,
		ModelManager: modelManager,
		Intel:        intel,
		Server:       server.New(intel, opts, logger),
		closers:      closers,
	}

	logger.Info("Application container built",
		zap.String("model", cfg.Gemini.Model),
		zap.Bool("fallback", cfg.OpenAI.EnableFallback),
		zap.Bool("cache", opts.Cache != nil),
		zap.Bool("archive", opts.Archive != nil),
		zap.Bool("previews", opts.Previews != nil),
	)

	return container, nil
}

// Close releases backing connections in reverse order of creation.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
