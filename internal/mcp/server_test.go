package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codescout/codescout/application/service"
	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
)

// fakeOps implements IndexOperations with canned results and call capture.
type fakeOps struct {
	initErr   error
	searchErr error

	lastVectorCfg vector.Config
	lastParams    service.SearchParams
	lastRepoPath  string
	lastPersist   string
}

func (f *fakeOps) Init(_ context.Context, repoPath, persistDir string, _ index.EmbeddingConfig, vectorCfg vector.Config) (index.Summary, error) {
	f.lastRepoPath = repoPath
	f.lastPersist = persistDir
	f.lastVectorCfg = vectorCfg
	if f.initErr != nil {
		return index.Summary{}, f.initErr
	}
	return index.Summary{RepoRoot: repoPath, FilesIndexed: 2, ChunksIndexed: 5}, nil
}

func (f *fakeOps) Update(_ context.Context, repoPath, persistDir string) (index.Summary, error) {
	f.lastRepoPath = repoPath
	f.lastPersist = persistDir
	return index.Summary{RepoRoot: repoPath, FilesIndexed: 3, ChunksIndexed: 9}, nil
}

func (f *fakeOps) Status(_ context.Context, repoPath, persistDir string) (service.StatusReport, error) {
	f.lastRepoPath = repoPath
	f.lastPersist = persistDir
	return service.StatusReport{RepoRoot: repoPath, FilesIndexed: 4, ChunksIndexed: 12}, nil
}

func (f *fakeOps) Search(_ context.Context, repoPath, persistDir string, params service.SearchParams) (service.SearchReport, error) {
	f.lastRepoPath = repoPath
	f.lastPersist = persistDir
	f.lastParams = params
	if f.searchErr != nil {
		return service.SearchReport{}, f.searchErr
	}
	return service.SearchReport{
		Query: params.Query,
		Results: []vector.Result{
			{Path: "auth/jwt.go", LineStart: 1, LineEnd: 40, Score: 0.92},
		},
	}, nil
}

func testServer(ops *fakeOps) *Server {
	cfg := vector.DefaultConfig()
	cfg.Device = "cpu"
	return NewServer(ops, "/tmp/persist", index.EmbeddingConfig{Model: "test"}, cfg, "0.1.0-test", nil)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.MCPServer().HandleMessage(context.Background(), raw)
	resp, ok := result.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T: %+v", result, result)
	}
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatalf("unmarshal result into %T: %v", dst, err)
	}
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

// textFromContent extracts the text string from the first content item.
// It round-trips through JSON because in-process responses may hold the
// content as a map rather than a typed struct.
func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	b, err := json.Marshal(result.Content[0])
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	var tc struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &tc); err != nil {
		t.Fatalf("unmarshal text content: %v", err)
	}
	return tc.Text
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer(&fakeOps{})
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	if result.ServerInfo.Name != "codescout" {
		t.Errorf("expected server name codescout, got %s", result.ServerInfo.Name)
	}
	if result.ServerInfo.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", result.ServerInfo.Version)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability to be present")
	}
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer(&fakeOps{})
	sendMessage(t, srv, "initialize", 1, initializeParams())

	resp := sendMessage(t, srv, "tools/list", 2, nil)

	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	if len(result.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(result.Tools))
	}

	tools := map[string]mcp.Tool{}
	for _, tool := range result.Tools {
		tools[tool.Name] = tool
	}
	for _, name := range []string{"init", "search", "status", "update"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing tool: %s", name)
		}
	}

	searchTool := tools["search"]
	props := searchTool.InputSchema.Properties
	if props == nil {
		t.Fatal("search tool has no properties")
	}
	for _, param := range []string{"repo_path", "query", "top_k", "refresh", "metric"} {
		if _, ok := props[param]; !ok {
			t.Errorf("search tool missing %s parameter", param)
		}
	}
}

func TestServer_Init(t *testing.T) {
	ops := &fakeOps{}
	srv := testServer(ops)
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "init", map[string]any{
		"repo_path":   "/work/repo",
		"metric":      "l2",
		"sample_rate": 0.5,
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}
	if ops.lastRepoPath != "/work/repo" {
		t.Errorf("expected repo path /work/repo, got %s", ops.lastRepoPath)
	}
	if ops.lastPersist != "/tmp/persist" {
		t.Errorf("expected persist dir /tmp/persist, got %s", ops.lastPersist)
	}
	if ops.lastVectorCfg.Metric != vector.MetricL2 {
		t.Errorf("expected metric override l2, got %s", ops.lastVectorCfg.Metric)
	}
	if ops.lastVectorCfg.Approx.SampleRate != 0.5 {
		t.Errorf("expected sample rate 0.5, got %f", ops.lastVectorCfg.Approx.SampleRate)
	}

	var summary index.Summary
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.ChunksIndexed != 5 {
		t.Errorf("expected 5 chunks, got %d", summary.ChunksIndexed)
	}
}

func TestServer_InitMissingRepoPath(t *testing.T) {
	srv := testServer(&fakeOps{})
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "init", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error response")
	}
	if !strings.Contains(textFromContent(t, result), CodeInvalidConfig) {
		t.Errorf("expected %s code, got: %s", CodeInvalidConfig, textFromContent(t, result))
	}
}

func TestServer_InitNotGitRepo(t *testing.T) {
	ops := &fakeOps{initErr: fmt.Errorf("%w: /work/repo", index.ErrNotGitRepo)}
	srv := testServer(ops)
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "init", map[string]any{"repo_path": "/work/repo"})
	if !result.IsError {
		t.Fatal("expected error response")
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Code != CodeNotGitRepo {
		t.Errorf("expected code %s, got %s", CodeNotGitRepo, payload.Code)
	}
}

func TestServer_Search(t *testing.T) {
	ops := &fakeOps{}
	srv := testServer(ops)
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "search", map[string]any{
		"repo_path": "/work/repo",
		"query":     "jwt validation",
		"top_k":     3,
		"refresh":   false,
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}
	if ops.lastParams.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", ops.lastParams.TopK)
	}
	if !ops.lastParams.SkipRefresh {
		t.Error("expected refresh=false to skip the refresh")
	}

	var report service.SearchReport
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Path != "auth/jwt.go" {
		t.Errorf("unexpected results: %+v", report.Results)
	}
}

func TestServer_SearchNotInitialized(t *testing.T) {
	ops := &fakeOps{searchErr: fmt.Errorf("%w: run init first", index.ErrNotInitialized)}
	srv := testServer(ops)
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "search", map[string]any{
		"repo_path": "/work/repo",
		"query":     "anything",
	})
	if !result.IsError {
		t.Fatal("expected error response")
	}
	if !strings.Contains(textFromContent(t, result), CodeNotInitialized) {
		t.Errorf("expected %s code, got: %s", CodeNotInitialized, textFromContent(t, result))
	}
}

func TestServer_Status(t *testing.T) {
	srv := testServer(&fakeOps{})
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "status", map[string]any{"repo_path": "/work/repo"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var report service.StatusReport
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &report); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if report.FilesIndexed != 4 {
		t.Errorf("expected 4 files, got %d", report.FilesIndexed)
	}
}

func TestServer_Update(t *testing.T) {
	srv := testServer(&fakeOps{})
	sendMessage(t, srv, "initialize", 1, initializeParams())

	result := callTool(t, srv, "update", map[string]any{"repo_path": "/work/repo"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var summary index.Summary
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.ChunksIndexed != 9 {
		t.Errorf("expected 9 chunks, got %d", summary.ChunksIndexed)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: x", index.ErrNotGitRepo), CodeNotGitRepo},
		{fmt.Errorf("%w: x", index.ErrNotInitialized), CodeNotInitialized},
		{fmt.Errorf("%w: x", vector.ErrInvalidConfig), CodeInvalidConfig},
		{fmt.Errorf("%w: x", vector.ErrDimensionMismatch), CodeDimensionMismatch},
		{fmt.Errorf("%w: x", vector.ErrStorageCorruption), CodeStorageError},
		{fmt.Errorf("plain failure"), CodeUnknown},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Errorf("errorCode(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}

// Ensure the fake satisfies the interface at compile time.
var _ IndexOperations = (*fakeOps)(nil)
