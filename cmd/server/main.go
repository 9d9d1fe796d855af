package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/engine"
	"github.com/isdmx/codejudge/logger"
	"github.com/isdmx/codejudge/mcpserver"
	"github.com/isdmx/codejudge/ratelimit"
	"github.com/isdmx/codejudge/restapi"
	"github.com/isdmx/codejudge/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			// Execution engine
			sandbox.NewLanguageTableFromConfig,
			sandbox.NewRouterFromConfig,
			ratelimit.NewFromConfig,
			newEngine,

			// Boundaries
			newRESTServer,
			newMCPServer,
		),

		fx.Invoke(
			registerAdmissionStore,
			registerImagePreload,
			registerTransport,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newEngine(log *zap.Logger, admitter ratelimit.Admitter, router *sandbox.Router) *engine.Engine {
	return engine.New(log, admitter, router)
}

func newRESTServer(cfg *config.Config, log *zap.Logger, e *engine.Engine) (*restapi.Server, error) {
	return restapi.New(cfg, log, e)
}

func newMCPServer(cfg *config.Config, log *zap.Logger, e *engine.Engine, languages *sandbox.LanguageTable) (*mcpserver.MCPServer, error) {
	return mcpserver.New(cfg, log, e, languages)
}

func registerAdmissionStore(lc fx.Lifecycle, log *zap.Logger, admitter ratelimit.Admitter) {
	bucket, ok := admitter.(*ratelimit.RedisBucket)
	if !ok {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := bucket.Ping(ctx); err != nil {
				// requests are admitted while the store is unreachable
				log.Warn("redis admission store unreachable", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return bucket.Close()
		},
	})
}

func registerImagePreload(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, languages *sandbox.LanguageTable) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := sandbox.PreloadImages(ctx, log, cfg, languages); err != nil {
					log.Warn("image preload failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func registerTransport(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	log *zap.Logger,
	cfg *config.Config,
	rest *restapi.Server,
	mcp *mcpserver.MCPServer,
) {
	switch cfg.Server.Transport {
	case "rest":
		lc.Append(fx.Hook{
			OnStart: rest.Start,
			OnStop:  rest.Stop,
		})
	case "stdio":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcp.ServeStdio(); err != nil {
						log.Error("MCP stdio server stopped", zap.Error(err))
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcp.ServeHTTP(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("MCP HTTP server stopped", zap.Error(err))
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
			OnStop: mcp.Shutdown,
		})
	default:
		panic("unsupported transport: " + cfg.Server.Transport)
	}
}
