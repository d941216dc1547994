// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codescout/codescout/application/service"
	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/provider"
	"github.com/codescout/codescout/internal/log"
)

// Error codes reported to MCP clients.
const (
	CodeNotGitRepo        = "NOT_GIT_REPO"
	CodeNotInitialized    = "NOT_INITIALIZED"
	CodeInvalidConfig     = "INVALID_CONFIG"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeStorageError      = "STORAGE_ERROR"
	CodeEmbeddingError    = "EMBEDDING_ERROR"
	CodeUnknown           = "UNKNOWN"
)

// IndexOperations provides repository index operations for MCP tools.
type IndexOperations interface {
	Init(ctx context.Context, repoPath, persistDir string, embedding index.EmbeddingConfig, vectorCfg vector.Config) (index.Summary, error)
	Update(ctx context.Context, repoPath, persistDir string) (index.Summary, error)
	Status(ctx context.Context, repoPath, persistDir string) (service.StatusReport, error)
	Search(ctx context.Context, repoPath, persistDir string, params service.SearchParams) (service.SearchReport, error)
}

// Server wraps the MCP server with codescout tools. The persist
// directory and index defaults are fixed at construction; every tool
// call names its repository explicitly, so the server holds no mutable
// per-repo state.
type Server struct {
	mcpServer  *server.MCPServer
	ops        IndexOperations
	persistDir string
	embedding  index.EmbeddingConfig
	vectorCfg  vector.Config
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(ops IndexOperations, persistDir string, embedding index.EmbeddingConfig, vectorCfg vector.Config, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		ops:        ops,
		persistDir: persistDir,
		embedding:  embedding,
		vectorCfg:  vectorCfg,
		logger:     logger,
	}

	mcpServer := server.NewMCPServer(
		"codescout",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.mcpServer = mcpServer
	return s
}

// registerTools registers all codescout tools with the MCP server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	initTool := mcp.NewTool("init",
		mcp.WithDescription("Build a semantic search index for a local git repository"),
		mcp.WithString("repo_path",
			mcp.Required(),
			mcp.Description("Path to the git repository"),
		),
		mcp.WithString("device",
			mcp.Description("Compute device preference: auto, cuda, mps, or cpu"),
		),
		mcp.WithString("metric",
			mcp.Description("Similarity metric: ip or l2"),
		),
		mcp.WithString("search_mode",
			mcp.Description("Search mode: exact or approx"),
		),
		mcp.WithNumber("sample_rate",
			mcp.Description("Approximate search sampling rate in (0, 1]"),
		),
		mcp.WithNumber("max_vram_mb",
			mcp.Description("Search working-memory cap in MiB; 0 means unbounded"),
		),
	)
	mcpServer.AddTool(initTool, s.handleInit)

	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Semantically search an indexed repository"),
		mcp.WithString("repo_path",
			mcp.Required(),
			mcp.Description("Path to the git repository"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default: 10)"),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Refresh the index before searching (default: true)"),
		),
		mcp.WithString("device",
			mcp.Description("Per-call compute device override"),
		),
		mcp.WithString("metric",
			mcp.Description("Per-call similarity metric override"),
		),
		mcp.WithString("search_mode",
			mcp.Description("Per-call search mode override"),
		),
		mcp.WithNumber("sample_rate",
			mcp.Description("Per-call sampling rate override"),
		),
		mcp.WithNumber("max_vram_mb",
			mcp.Description("Per-call working-memory cap override"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	statusTool := mcp.NewTool("status",
		mcp.WithDescription("Report what is indexed for a repository"),
		mcp.WithString("repo_path",
			mcp.Required(),
			mcp.Description("Path to the git repository"),
		),
	)
	mcpServer.AddTool(statusTool, s.handleStatus)

	updateTool := mcp.NewTool("update",
		mcp.WithDescription("Rebuild a repository's index from scratch"),
		mcp.WithString("repo_path",
			mcp.Required(),
			mcp.Description("Path to the git repository"),
		),
	)
	mcpServer.AddTool(updateTool, s.handleUpdate)
}

func (s *Server) handleInit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoPath, err := request.RequireString("repo_path")
	if err != nil {
		return s.errorResult(CodeInvalidConfig, "repo_path is required"), nil
	}

	ctx = log.WithNewCorrelationID(ctx)
	vectorCfg := s.vectorCfg
	applyVectorArgs(&vectorCfg, request)

	summary, err := s.ops.Init(ctx, repoPath, s.persistDir, s.embedding, vectorCfg)
	if err != nil {
		s.logger.ErrorContext(ctx, "init failed", slog.Any("error", err))
		return s.toolError(err), nil
	}
	return jsonResult(summary)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoPath, err := request.RequireString("repo_path")
	if err != nil {
		return s.errorResult(CodeInvalidConfig, "repo_path is required"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return s.errorResult(CodeInvalidConfig, "query is required"), nil
	}

	ctx = log.WithNewCorrelationID(ctx)
	params := service.SearchParams{
		Query:       query,
		TopK:        request.GetInt("top_k", service.DefaultTopK),
		SkipRefresh: !request.GetBool("refresh", true),
		Options:     searchOptions(request),
	}

	report, err := s.ops.Search(ctx, repoPath, s.persistDir, params)
	if err != nil {
		s.logger.ErrorContext(ctx, "search failed", slog.Any("error", err))
		return s.toolError(err), nil
	}
	return jsonResult(report)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoPath, err := request.RequireString("repo_path")
	if err != nil {
		return s.errorResult(CodeInvalidConfig, "repo_path is required"), nil
	}

	ctx = log.WithNewCorrelationID(ctx)
	report, err := s.ops.Status(ctx, repoPath, s.persistDir)
	if err != nil {
		s.logger.ErrorContext(ctx, "status failed", slog.Any("error", err))
		return s.toolError(err), nil
	}
	return jsonResult(report)
}

func (s *Server) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoPath, err := request.RequireString("repo_path")
	if err != nil {
		return s.errorResult(CodeInvalidConfig, "repo_path is required"), nil
	}

	ctx = log.WithNewCorrelationID(ctx)
	summary, err := s.ops.Update(ctx, repoPath, s.persistDir)
	if err != nil {
		s.logger.ErrorContext(ctx, "update failed", slog.Any("error", err))
		return s.toolError(err), nil
	}
	return jsonResult(summary)
}

// applyVectorArgs overrides vector config fields from tool arguments.
func applyVectorArgs(cfg *vector.Config, request mcp.CallToolRequest) {
	if device := request.GetString("device", ""); device != "" {
		cfg.Device = device
	}
	if metric := request.GetString("metric", ""); metric != "" {
		cfg.Metric = vector.Metric(metric)
	}
	if mode := request.GetString("search_mode", ""); mode != "" {
		cfg.SearchMode = vector.SearchMode(mode)
	}
	if rate := request.GetFloat("sample_rate", 0); rate != 0 {
		cfg.Approx.SampleRate = rate
	}
	if vram := request.GetInt("max_vram_mb", -1); vram >= 0 {
		cfg.MaxVRAMMB = vram
	}
}

// searchOptions maps per-call tool arguments to search overrides.
func searchOptions(request mcp.CallToolRequest) []vector.SearchOption {
	var opts []vector.SearchOption
	if device := request.GetString("device", ""); device != "" {
		opts = append(opts, vector.WithDevice(device))
	}
	if metric := request.GetString("metric", ""); metric != "" {
		opts = append(opts, vector.WithMetric(vector.Metric(metric)))
	}
	if mode := request.GetString("search_mode", ""); mode != "" {
		opts = append(opts, vector.WithSearchMode(vector.SearchMode(mode)))
	}
	if rate := request.GetFloat("sample_rate", 0); rate != 0 {
		opts = append(opts, vector.WithSampleRate(rate))
	}
	if vram := request.GetInt("max_vram_mb", -1); vram >= 0 {
		opts = append(opts, vector.WithMaxVRAMMB(vram))
	}
	return opts
}

// toolError maps a service error onto a coded MCP error result.
func (s *Server) toolError(err error) *mcp.CallToolResult {
	return s.errorResult(errorCode(err), err.Error())
}

func (s *Server) errorResult(code, message string) *mcp.CallToolResult {
	payload, err := json.Marshal(map[string]string{
		"code":    code,
		"message": message,
	})
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(string(payload))
}

// errorCode classifies an error for MCP clients.
func errorCode(err error) string {
	var embeddingErr *provider.EmbeddingError
	switch {
	case errors.Is(err, index.ErrNotGitRepo):
		return CodeNotGitRepo
	case errors.Is(err, index.ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, vector.ErrInvalidConfig):
		return CodeInvalidConfig
	case errors.Is(err, vector.ErrDimensionMismatch):
		return CodeDimensionMismatch
	case errors.Is(err, vector.ErrStorageCorruption):
		return CodeStorageError
	case errors.As(err, &embeddingErr):
		return CodeEmbeddingError
	default:
		return CodeUnknown
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
