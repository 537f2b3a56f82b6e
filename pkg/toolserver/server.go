// Package toolserver serves a set of tools over the JSON-RPC WebSocket
// protocol in pkg/protocol. It is the reference tool-execution server used
// by cmd/browserd and by the session and agent tests.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/entrhq/autopilot/pkg/protocol"
)

// Server dispatches protocol requests to tools. Each WebSocket connection is
// one session and its requests are handled in order.
type Server struct {
	name    string
	version string
	tools   []Tool
	byName  map[string]Tool
	logger  *slog.Logger

	calls    atomic.Int64
	sessions atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a server. Tool names must be unique.
func New(name, version string, tools []Tool, opts ...Option) (*Server, error) {
	s := &Server{
		name:    name,
		version: version,
		byName:  make(map[string]Tool, len(tools)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, t := range tools {
		if _, exists := s.byName[t.Name()]; exists {
			return nil, fmt.Errorf("tool %s already registered", t.Name())
		}
		s.byName[t.Name()] = t
		s.tools = append(s.tools, t)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serve)
}

// Calls returns how many tools/call requests reached a tool.
func (s *Server) Calls() int64 {
	return s.calls.Load()
}

// Sessions returns how many sessions have been opened.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

func (s *Server) serve(ws *websocket.Conn) {
	defer ws.Close()

	ctx := ws.Request().Context()
	sessionID := uuid.NewString()
	log := s.logger.With("session", sessionID, "remote", ws.Request().RemoteAddr)
	log.Info("session opened")

	for {
		var frame []byte
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("session closed")
			} else {
				log.Warn("session ended", "error", err)
			}
			return
		}

		resp := s.handle(ctx, sessionID, frame, log)
		if err := websocket.JSON.Send(ws, resp); err != nil {
			log.Warn("failed to send response", "id", resp.ID, "error", err)
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, sessionID string, frame []byte, log *slog.Logger) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return protocol.NewError(0, protocol.CodeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != protocol.Version || req.Method == "" {
		return protocol.NewError(req.ID, protocol.CodeInvalidRequest, "invalid request")
	}

	switch req.Method {
	case protocol.MethodInitialize:
		s.sessions.Add(1)
		return s.result(req.ID, protocol.InitializeResult{
			ServerName:    s.name,
			ServerVersion: s.version,
			SessionID:     sessionID,
		})

	case protocol.MethodListTools:
		tools := make([]protocol.Tool, 0, len(s.tools))
		for _, t := range s.tools {
			tools = append(tools, protocol.Tool{
				Name:        t.Name(),
				Description: t.Description(),
				InputSchema: t.Schema(),
			})
		}
		return s.result(req.ID, protocol.ListToolsResult{Tools: tools})

	case protocol.MethodCallTool:
		var params protocol.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error())
		}
		tool, ok := s.byName[params.Name]
		if !ok {
			return protocol.NewError(req.ID, protocol.CodeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
		}
		return s.result(req.ID, s.execute(ctx, tool, params.Arguments, log))

	case protocol.MethodPing:
		return s.result(req.ID, struct{}{})

	default:
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) execute(ctx context.Context, tool Tool, arguments map[string]any, log *slog.Logger) protocol.CallToolResult {
	s.calls.Add(1)

	raw, err := json.Marshal(arguments)
	if err != nil {
		return protocol.TextResult("invalid arguments: "+err.Error(), true)
	}

	log.Info("calling tool", "tool", tool.Name())
	out, err := tool.Execute(ctx, raw)
	if err != nil {
		log.Warn("tool failed", "tool", tool.Name(), "error", err)
		return protocol.TextResult(err.Error(), true)
	}
	return protocol.TextResult(out, false)
}

func (s *Server) result(id uint64, v any) *protocol.Response {
	resp, err := protocol.NewResult(id, v)
	if err != nil {
		return protocol.NewError(id, protocol.CodeInternalError, err.Error())
	}
	return resp
}
