// Package mcp exposes agent creation and lookup as MCP tools over JSON-RPC.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/orchestrator"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server implements the MCP tool endpoint.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	store        *history.Store
	registry     *registry.Registry
	logger       *slog.Logger

	toolHandlers map[string]ToolHandler
}

// ToolHandler handles one tool call.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// NewServer creates a new MCP Server.
func NewServer(orch *orchestrator.Orchestrator, store *history.Store, reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orchestrator: orch,
		store:        store,
		registry:     reg,
		logger:       logger,
		toolHandlers: make(map[string]ToolHandler),
	}

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.toolHandlers["era_create_agent"] = s.handleCreateAgent
	s.toolHandlers["era_list_utilities"] = s.handleListUtilities
	s.toolHandlers["era_get_session"] = s.handleGetSession
	s.toolHandlers["era_get_documentation"] = s.handleGetDocumentation
}

// HandleToolCall runs the named tool.
func (s *Server) HandleToolCall(ctx context.Context, toolName string, args map[string]any) (any, error) {
	handler, ok := s.toolHandlers[toolName]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}
	return handler(ctx, args)
}

type sessionSummary struct {
	SessionID string        `json:"session_id"`
	AgentName string        `json:"agent_name"`
	Outcome   types.Outcome `json:"outcome"`
	Attempts  int           `json:"attempts"`
	FinalCode string        `json:"final_code,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

func summarize(sess *types.Session) *sessionSummary {
	return &sessionSummary{
		SessionID: sess.ID,
		AgentName: sess.AgentName,
		Outcome:   sess.Outcome,
		Attempts:  len(sess.Attempts),
		FinalCode: sess.FinalCode,
		LastError: sess.LastError(),
	}
}

func (s *Server) handleCreateAgent(ctx context.Context, args map[string]any) (any, error) {
	req := &types.CreateRequest{
		AgentName: stringArg(args, "name"),
		Prompt:    stringArg(args, "prompt"),
		Language:  stringArg(args, "language"),
		Force:     boolArg(args, "force", false),
	}
	if n, ok := args["max_attempts"].(float64); ok {
		req.MaxAttempts = int(n)
	}
	if raw, ok := args["utilities"].([]any); ok {
		for _, u := range raw {
			if name, ok := u.(string); ok {
				req.Utilities = append(req.Utilities, name)
			}
		}
	}

	sess, err := s.orchestrator.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return summarize(sess), nil
}

func (s *Server) handleListUtilities(_ context.Context, args map[string]any) (any, error) {
	type utility struct {
		Name         string            `json:"name"`
		Kind         types.UtilityKind `json:"kind"`
		Description  string            `json:"description"`
		Dependencies []string          `json:"dependencies,omitempty"`
	}

	entries := s.registry.List(boolArg(args, "include_agents", true))
	out := make([]utility, 0, len(entries))
	for _, e := range entries {
		out = append(out, utility{
			Name:         e.Name,
			Kind:         e.Kind,
			Description:  e.Description,
			Dependencies: e.Dependencies,
		})
	}
	return out, nil
}

func (s *Server) handleGetSession(_ context.Context, args map[string]any) (any, error) {
	id := stringArg(args, "session_id")
	if id == "" {
		return nil, errors.New("session_id is required")
	}
	return s.store.Get(id)
}

func (s *Server) handleGetDocumentation(_ context.Context, args map[string]any) (any, error) {
	return s.registry.DocumentationBundle(boolArg(args, "include_agents", true)), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// GetToolDefinitions returns the list of available MCP tools.
func (s *Server) GetToolDefinitions() []*types.MCPToolDefinition {
	return []*types.MCPToolDefinition{
		{
			Name:        "era_create_agent",
			Description: "Generate, run and store a JavaScript agent from a natural-language prompt",
			InputSchema: object(map[string]any{
				"name":         prop("string", "Agent name, usable as an identifier"),
				"prompt":       prop("string", "What the agent should do"),
				"language":     prop("string", "javascript or typescript"),
				"max_attempts": prop("integer", "Generate-execute attempts before giving up"),
				"utilities": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Utilities to inject instead of detecting them from the code",
				},
				"force": prop("boolean", "Rebuild an agent that already exists"),
			}, "name", "prompt"),
		},
		{
			Name:        "era_list_utilities",
			Description: "List builtin utilities and previously generated agents",
			InputSchema: object(map[string]any{
				"include_agents": prop("boolean", "Include generated agents (default true)"),
			}),
		},
		{
			Name:        "era_get_session",
			Description: "Get a creation session with all of its attempts",
			InputSchema: object(map[string]any{
				"session_id": prop("string", "Session ID"),
			}, "session_id"),
		},
		{
			Name:        "era_get_documentation",
			Description: "Get the utility documentation given to the code generator",
			InputSchema: object(map[string]any{
				"include_agents": prop("boolean", "Include generated agents (default true)"),
			}),
		},
	}
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// ServeHTTP implements http.Handler for the MCP server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req types.MCPRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, nil, codeParseError, "invalid JSON")
		return
	}
	if req.Method == "" {
		s.respondError(w, req.ID, codeInvalidRequest, "method is required")
		return
	}

	// Notifications carry no ID and get no response body.
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.respondResult(w, req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "era", "version": "0.1.0"},
		})
	case "ping":
		s.respondResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.respondResult(w, req.ID, map[string]any{
			"tools": s.GetToolDefinitions(),
		})
	case "tools/call":
		var call types.MCPToolCall
		if err := json.Unmarshal(req.Params, &call); err != nil || call.Name == "" {
			s.respondError(w, req.ID, codeInvalidParams, "params must name a tool")
			return
		}
		if _, ok := s.toolHandlers[call.Name]; !ok {
			s.respondError(w, req.ID, codeInvalidParams, "unknown tool: "+call.Name)
			return
		}

		result, err := s.HandleToolCall(r.Context(), call.Name, call.Arguments)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", call.Name, "error", err)
			s.respondResult(w, req.ID, &types.MCPToolResult{
				Content: []types.MCPContent{{Type: "text", Text: err.Error()}},
				IsError: true,
			})
			return
		}
		s.respondResult(w, req.ID, toolResult(result))
	default:
		s.respondError(w, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func toolResult(v any) *types.MCPToolResult {
	if text, ok := v.(string); ok {
		return &types.MCPToolResult{Content: []types.MCPContent{{Type: "text", Text: text}}}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &types.MCPToolResult{
			Content: []types.MCPContent{{Type: "text", Text: "failed to encode result: " + err.Error()}},
			IsError: true,
		}
	}
	return &types.MCPToolResult{Content: []types.MCPContent{{Type: "text", Text: string(data)}}}
}

func (s *Server) respondResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.respondJSON(w, &types.MCPResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) respondError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.respondJSON(w, &types.MCPResponse{JSONRPC: "2.0", ID: id, Error: &types.MCPError{Code: code, Message: message}})
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write MCP response", "error", err)
	}
}
