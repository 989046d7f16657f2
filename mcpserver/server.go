package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/contextbox/config"
	"github.com/isdmx/contextbox/sandbox"
)

// Tool names
const (
	ToolCreateSandbox  = "create_sandbox"
	ToolRunInSandbox   = "run_in_sandbox"
	ToolGetGlobals     = "get_sandbox_globals"
	ToolDisposeSandbox = "dispose_sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	mcpServer   *server.MCPServer
}

// runResponse is the JSON body returned by run_in_sandbox
type runResponse struct {
	SessionID  string             `json:"session_id,omitempty"`
	Value      any                `json:"value,omitempty"`
	Display    string             `json:"display"`
	Console    []sandbox.LogEntry `json:"console,omitempty"`
	Error      *sandbox.ErrorInfo `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("engine.max_call_stack_size", s.config.Engine.MaxCallStackSize),
		zap.Bool("engine.release_memory_on_dispose", s.config.Engine.ReleaseMemoryOnDispose),
		zap.Bool("engine.enable_console", s.config.Engine.EnableConsole),
		zap.Int("engine.script_cache_size", s.config.Engine.ScriptCacheSize),
		zap.Int("executor.timeout_sec", s.config.Executor.TimeoutSec),
		zap.Int("executor.max_sessions", s.config.Executor.MaxSessions),
		zap.Bool("metrics.enabled", s.config.Metrics.Enabled),
	)

	s.mcpServer = server.NewMCPServer("contextbox", "JavaScript sandboxes with isolated global scope")

	s.registerCreateSandboxTool()
	s.registerRunInSandboxTool()
	s.registerGetGlobalsTool()
	s.registerDisposeSandboxTool()

	return s, nil
}

func (s *MCPServer) registerCreateSandboxTool() {
	tool := mcp.Tool{
		Name:        ToolCreateSandbox,
		Description: "Create a sandbox whose global scope persists across runs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"globals": map[string]any{
					"type":        "object",
					"description": "Initial global bindings (optional)",
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleCreateSandbox)
}

func (s *MCPServer) registerRunInSandboxTool() {
	tool := mcp.Tool{
		Name:        ToolRunInSandbox,
		Description: "Run JavaScript in a sandbox. Without session_id the code runs in a fresh throwaway sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "JavaScript source",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Sandbox returned by create_sandbox (optional)",
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Origin name used in error positions and stack traces (optional)",
				},
				"timeout_sec": map[string]any{
					"type":        "integer",
					"description": "Overrides the configured timeout (optional)",
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunInSandbox)
}

func (s *MCPServer) registerGetGlobalsTool() {
	tool := mcp.Tool{
		Name:        ToolGetGlobals,
		Description: "Return the global bindings of a sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Sandbox returned by create_sandbox",
				},
			},
			Required: []string{"session_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGetGlobals)
}

func (s *MCPServer) registerDisposeSandboxTool() {
	tool := mcp.Tool{
		Name:        ToolDisposeSandbox,
		Description: "Release a sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Sandbox returned by create_sandbox",
				},
			},
			Required: []string{"session_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleDisposeSandbox)
}

func (s *MCPServer) handleCreateSandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var globals map[string]any
	if raw, ok := request.GetArguments()["globals"]; ok && raw != nil {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("globals parameter must be an object")
		}
		globals = m
	}

	id, err := s.sandboxExec.CreateSession(ctx, globals)
	if err != nil {
		s.logger.Error("sandbox creation failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Sandbox creation failed: %v", err)), nil
	}

	return s.jsonResult(map[string]any{"session_id": id})
}

func (s *MCPServer) handleRunInSandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	req := sandbox.ExecuteRequest{
		SessionID:  request.GetString("session_id", ""),
		Code:       code,
		Filename:   request.GetString("filename", ""),
		TimeoutSec: request.GetInt("timeout_sec", 0),
	}

	s.logger.Info("running script",
		zap.String("session_id", req.SessionID),
		zap.String("filename", req.Filename),
		zap.Int("code_len", len(code)))

	result, err := s.sandboxExec.Execute(ctx, req)
	if err != nil {
		s.logger.Error("script execution failed",
			zap.Error(err),
			zap.String("session_id", req.SessionID))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	resp := runResponse{
		SessionID:  result.SessionID,
		Value:      result.Value,
		Display:    result.Display,
		Console:    result.Console,
		Error:      result.Error,
		DurationMS: result.Duration.Milliseconds(),
	}

	out, err := s.jsonResult(resp)
	if err != nil {
		// Values holding functions or cycles do not encode; fall back to
		// the display string.
		resp.Value = nil
		if resp.Error != nil {
			resp.Error.Value = nil
		}
		out, err = s.jsonResult(resp)
		if err != nil {
			return nil, err
		}
	}
	out.IsError = result.Error != nil

	return out, nil
}

func (s *MCPServer) handleGetGlobals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	globals, err := s.sandboxExec.Globals(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	out, err := s.jsonResult(globals)
	if err != nil {
		names := make(map[string]string, len(globals))
		for k, v := range globals {
			names[k] = fmt.Sprintf("%v", v)
		}
		return s.jsonResult(names)
	}
	return out, nil
}

func (s *MCPServer) handleDisposeSandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	if err := s.sandboxExec.CloseSession(ctx, id); err != nil {
		if errors.Is(err, sandbox.ErrSessionNotFound) {
			return errorResult(err.Error()), nil
		}
		return nil, err
	}

	return s.jsonResult(map[string]any{"session_id": id, "disposed": true})
}

func (s *MCPServer) jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
	}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: true,
	}
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

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
