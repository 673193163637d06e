package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/service/ai"
	"github.com/kapu/sales-intel-go/internal/service/cache"
	"go.uber.org/zap"
)

// IntelService is the model-backed core the API exposes.
type IntelService interface {
	FetchAutofillData(ctx context.Context, urls []string) (*domain.AutofillResult, *ai.GenerateMetadata, error)
	GenerateDeepReport(ctx context.Context, seller domain.SellerInfo, buyer domain.BuyerInfo) (string, *ai.GenerateMetadata, error)
}

type AutofillCache interface {
	Get(ctx context.Context, urls []string) (*cache.AutofillEntry, bool, error)
	Set(ctx context.Context, urls []string, entry cache.AutofillEntry) error
	Invalidate(ctx context.Context, urls []string) error
}

type ReportArchive interface {
	Save(ctx context.Context, report *domain.Report) error
	Get(ctx context.Context, id string) (*domain.Report, error)
	List(ctx context.Context, limit int) ([]*domain.Report, error)
}

type PreviewFetcher interface {
	FetchAll(ctx context.Context, urls []string) []domain.LinkPreview
}

// Options carries the optional collaborators. Leave an interface field nil to
// disable that feature.
type Options struct {
	Port         int
	Mode         string
	AllowOrigins []string

	Cache    AutofillCache
	Archive  ReportArchive
	Previews PreviewFetcher

	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]func(ctx context.Context) error
}

type Server struct {
	intel    IntelService
	cache    AutofillCache
	archive  ReportArchive
	previews PreviewFetcher
	checks   map[string]func(ctx context.Context) error

	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	validate   *validator.Validate
	origins    map[string]struct{}
	logger     *zap.Logger
	startedAt  time.Time
}

func New(intel IntelService, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	s := &Server{
		intel:     intel,
		cache:     opts.Cache,
		archive:   opts.Archive,
		previews:  opts.Previews,
		checks:    opts.HealthChecks,
		validate:  validator.New(),
		origins:   make(map[string]struct{}, len(opts.AllowOrigins)),
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, origin := range opts.AllowOrigins {
		s.origins[origin] = struct{}{}
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), s.cors())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/autofill", s.handleAutofill)
		api.POST("/reports", s.handleCreateReport)
		api.GET("/reports", s.handleListReports)
		api.GET("/reports/:id", s.handleGetReport)
	}

	router.GET("/ws/reports", s.handleReportStream)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// checkOrigin accepts same-origin and non-browser clients, plus the configured
// origins. "*" allows everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := s.origins["*"]; ok {
		return true
	}
	if _, ok := s.origins[origin]; ok {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := s.origins["*"]; ok {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := s.origins[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
