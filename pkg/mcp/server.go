// Package mcp serves the advisory use cases and gateway statistics as MCP
// tools over JSON-RPC 2.0 on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/agroguard/agroguard/pkg/audit"
	"github.com/agroguard/agroguard/pkg/budget"
	"github.com/agroguard/agroguard/pkg/models"
	"github.com/agroguard/agroguard/pkg/tracker"
)

// Advisor produces decision results.
type Advisor interface {
	Handle(ctx context.Context, req models.Request) (models.Result, models.Decision)
}

// CacheStatter provides cache statistics.
type CacheStatter interface {
	Stats() models.CacheStats
}

// Server is a line-delimited JSON-RPC MCP server.
type Server struct {
	advisor   Advisor
	tracker   tracker.Tracker
	cache     CacheStatter
	enforcer  *budget.Enforcer
	auditor   *audit.Logger
	providers []string
	version   string
	logger    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithTracker enables the stats tool.
func WithTracker(t tracker.Tracker) Option { return func(s *Server) { s.tracker = t } }

// WithCache enables the cache stats tool.
func WithCache(c CacheStatter) Option { return func(s *Server) { s.cache = c } }

// WithBudget enables the budget tool for the named providers.
func WithBudget(e *budget.Enforcer, providers []string) Option {
	return func(s *Server) {
		s.enforcer = e
		s.providers = providers
	}
}

// WithAuditor enables the audit search tool.
func WithAuditor(a *audit.Logger) Option { return func(s *Server) { s.auditor = a } }

// WithLogger sets the logger. It must not write to the protocol stream.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// New creates a Server.
func New(a Advisor, version string, opts ...Option) *Server {
	s := &Server{advisor: a, version: version, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads requests from r line by line and writes responses to w until r
// is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != "2.0" {
			s.write(w, rpcError(req.ID, CodeInvalidRequest, "jsonrpc must be 2.0"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "agroguard", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	}
	if len(req.ID) == 0 {
		return nil
	}
	return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
