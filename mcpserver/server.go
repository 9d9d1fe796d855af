package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/engine"
	"github.com/isdmx/codejudge/sandbox"
)

// stdioClient identifies the single client of a stdio session.
const stdioClient = "stdio"

type clientKey struct{}

// Submitter is the engine surface the MCP tools depend on.
type Submitter interface {
	Submit(ctx context.Context, clientID string, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error)
	Mode() string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	engine     Submitter
	languages  []string
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, submitter Submitter, languages *sandbox.LanguageTable) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		engine:    submitter,
		languages: languages.IDs(),
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.mode", submitter.Mode()),
		zap.String("sandbox.runtime", cfg.Sandbox.Runtime),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Bool("ratelimit.enabled", cfg.RateLimit.Enabled),
		zap.Strings("languages", s.languages),
	)

	s.mcpServer = server.NewMCPServer("codejudge", "Online judge code execution engine")

	s.registerExecuteCodeTool()
	s.registerExecutionModeTool()

	if cfg.Server.Transport == "http" {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer,
			server.WithHTTPContextFunc(withRemoteClient))
	}

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Compile (if needed) and run a program, returning its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Program source code",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Program language",
					"enum":        s.languages,
				},
				"input": map[string]any{
					"type":        "string",
					"description": "Data fed to the program on stdin (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// registerExecutionModeTool registers the execution_mode tool
func (s *MCPServer) registerExecutionModeTool() {
	tool := mcp.Tool{
		Name:        "execution_mode",
		Description: "Report whether programs run directly on the host or in containers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecutionMode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	req := sandbox.ExecutionRequest{
		Code:     code,
		Language: language,
		Input:    request.GetString("input", ""),
	}
	clientID := clientIdentity(ctx)

	s.logger.Info("code execution requested",
		zap.String("client", clientID),
		zap.String("language", language),
		zap.Bool("has_input", req.Input != ""))

	result, err := s.engine.Submit(ctx, clientID, req)
	if errors.Is(err, engine.ErrRateLimited) {
		return textResult(engine.RateLimitMessage, true), nil
	}
	if err != nil {
		s.logger.Error("code execution failed", zap.Error(err), zap.String("language", language))
		return textResult(fmt.Sprintf("Execution failed: %v", err), true), nil
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	s.logger.Info("code execution completed",
		zap.String("language", language),
		zap.Bool("success", result.Success),
		zap.Int64("execution_time_ms", result.ExecutionTimeMillis))

	return textResult(string(resultJSON), !result.Success), nil
}

// handleExecutionMode handles the execution_mode tool
func (s *MCPServer) handleExecutionMode(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(s.engine.Mode(), false), nil
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}
}

// withRemoteClient records the caller address of an HTTP request: the
// first X-Forwarded-For hop when present, else the remote host.
func withRemoteClient(ctx context.Context, r *http.Request) context.Context {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return context.WithValue(ctx, clientKey{}, first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return context.WithValue(ctx, clientKey{}, host)
}

// clientIdentity keys admission control on the caller address, never on
// the MCP session.
func clientIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(clientKey{}).(string); ok && id != "" {
		return id
	}
	return stdioClient
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	if s.httpServer == nil {
		return errors.New("MCP HTTP transport not configured")
	}
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it was started.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping MCP HTTP server")
	return s.httpServer.Shutdown(ctx)
}
