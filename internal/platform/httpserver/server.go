package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	proposalengine "fangov/contexts/governance/proposal-engine"
	_ "fangov/docs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	Addr        string
	CORSOrigins []string
	Metrics     http.Handler
}

type Server struct {
	engine     *gin.Engine
	http       *http.Server
	logger     *slog.Logger
	addr       string
	governance proposalengine.Module
}

func New(governance proposalengine.Module, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	if len(opts.CORSOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-User-Id"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	s := &Server{
		engine:     engine,
		logger:     logger,
		addr:       addr,
		governance: governance,
	}
	s.registerRoutes(opts.Metrics)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
	s.engine.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	)))

	v1 := s.engine.Group("/v1/proposals")
	v1.POST("", s.handleCreateProposal)
	v1.GET("/:proposal_id", s.handleGetProposal)
	v1.POST("/:proposal_id/options", s.handleAddOption)
	v1.DELETE("/:proposal_id/options/:option_id", s.handleDeleteOption)
	v1.POST("/:proposal_id/open", s.handleOpen)
	v1.POST("/:proposal_id/close", s.handleClose)
	v1.POST("/:proposal_id/finalize", s.handleFinalize)
	v1.POST("/:proposal_id/votes", s.handleCastVote)
	v1.GET("/:proposal_id/results", s.handleResults)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request served",
			"event", "http_request_served",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

// requireUser reads the caller identity set by the upstream gateway.
func requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
	if userID == "" {
		writeError(c, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}
