package restapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/engine"
	"github.com/isdmx/codejudge/sandbox"
)

const readHeaderTimeout = 10 * time.Second

// Submitter is the engine surface the HTTP layer depends on.
type Submitter interface {
	Submit(ctx context.Context, clientID string, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error)
	Mode() string
}

// Server is the REST boundary.
type Server struct {
	logger     *zap.Logger
	engine     Submitter
	router     *gin.Engine
	httpServer *http.Server
}

// New creates a Server and registers its routes.
func New(cfg *config.Config, logger *zap.Logger, submitter Submitter) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	s := &Server{
		logger: logger,
		engine: submitter,
		router: router,
	}

	router.Use(gin.CustomRecovery(s.recover), s.accessLog, cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "X-Forwarded-For"},
		MaxAge:          12 * time.Hour,
	}))

	api := router.Group("/api")
	api.POST("/execute", s.handleExecute)
	api.GET("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("starting REST server", zap.String("addr", ln.Addr().String()))
	go func() {
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("REST server stopped", zap.Error(serveErr))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping REST server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleExecute(c *gin.Context) {
	var req sandbox.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sandbox.Failed("Invalid request: "+err.Error(), 0))
		return
	}

	clientID := ClientIdentity(c)
	result, err := s.engine.Submit(c.Request.Context(), clientID, req)
	switch {
	case errors.Is(err, engine.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, sandbox.Failed(engine.RateLimitMessage, 0))
	case err != nil:
		s.logger.Error("execution request failed", zap.String("client", clientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, sandbox.Failed("Server error: "+err.Error(), 0))
	case result.Success:
		c.JSON(http.StatusOK, result)
	default:
		c.JSON(http.StatusBadRequest, result)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK - Execution mode: %s", s.engine.Mode())
}

func (s *Server) recover(c *gin.Context, p any) {
	s.logger.Error("panic in REST handler", zap.Any("panic", p), zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, sandbox.Failed("Server error: internal error", 0))
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request served",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)))
}

// ClientIdentity returns the first X-Forwarded-For entry when present,
// otherwise the remote IP of the connection.
func ClientIdentity(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return c.RemoteIP()
}
