// Package mcpserver exposes a tool catalog over line-delimited JSON-RPC 2.0
// on a reader/writer pair, typically stdin and stdout.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/bridge"
	"github.com/harun/sdkbridge/pkg/toolexecutor"
	"github.com/harun/sdkbridge/pkg/toolgen"
)

// maxLine bounds a single request line
const maxLine = 4 << 20

// ToolService lists and executes tools
type ToolService interface {
	ListTools(policy *toolexecutor.ToolPolicy) []toolgen.Descriptor
	Execute(ctx context.Context, toolName string, params map[string]any, execCtx *toolexecutor.ExecutionContext) bridge.Result
}

// HandlerFunc handles one method call
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *RPCError)

// Config tunes a Server
type Config struct {
	Name    string
	Version string
	Policy  *toolexecutor.ToolPolicy
	// Confirmed lets clients run tools flagged for confirmation
	Confirmed bool
	// Concurrency bounds in-flight requests; 1 when zero
	Concurrency int
}

// Server dispatches JSON-RPC requests to registered handlers
type Server struct {
	tools   ToolService
	cfg     Config
	logger  zerolog.Logger
	methods map[string]HandlerFunc
	writeMu sync.Mutex
}

// New creates a server with the initialize, ping, tools/list and tools/call
// methods registered
func New(tools ToolService, cfg Config, logger zerolog.Logger) *Server {
	if cfg.Name == "" {
		cfg.Name = "sdkbridge"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Server{
		tools:   tools,
		cfg:     cfg,
		logger:  logger.With().Str("component", "mcpserver").Logger(),
		methods: make(map[string]HandlerFunc),
	}
	s.Register("initialize", s.initialize)
	s.Register("ping", func(context.Context, json.RawMessage) (any, *RPCError) {
		return map[string]any{}, nil
	})
	s.Register("tools/list", s.listTools)
	s.Register("tools/call", s.callTool)
	observability.EnsureRegistered()
	return s
}

// Register adds or replaces a method handler
func (s *Server) Register(method string, h HandlerFunc) {
	s.methods[method] = h
}

// Serve reads requests until r is exhausted or ctx is done. Requests run
// concurrently up to Config.Concurrency; responses are written whole, one
// per line. When r is an io.Closer it is closed as soon as ctx ends or a
// response cannot be written, which unblocks a pending read. Other readers
// are only checked between lines.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	interrupted := func() bool { return false }
	if closer, ok := r.(io.Closer); ok {
		closed := make(chan struct{})
		stop := context.AfterFunc(gctx, func() {
			defer close(closed)
			closer.Close()
		})
		interrupted = func() bool {
			if stop() {
				return false
			}
			<-closed
			return true
		}
	}

	s.logger.Info().Str("name", s.cfg.Name).Msg("MCP server listening")

	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		g.Go(func() error {
			resp := s.Handle(gctx, line)
			if resp == nil {
				return nil
			}
			return s.write(w, resp)
		})
	}

	closedEarly := interrupted()
	err := g.Wait()
	if err == nil && !closedEarly {
		err = scanner.Err()
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	s.logger.Info().Err(err).Msg("MCP server stopped")
	return err
}

func (s *Server) write(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(errorResponse(resp.ID, InternalError, err.Error()))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// Handle processes one raw request line. Notifications return nil.
func (s *Server) Handle(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		observability.RecordProtocolRequest("invalid", false)
		return errorResponse(nil, ParseError, "Parse error")
	}
	if req.Method == "" {
		observability.RecordProtocolRequest("invalid", false)
		return errorResponse(req.ID, InvalidRequest, "Invalid request: missing method field")
	}

	logger := s.logger.With().Str("method", req.Method).Logger()

	h, ok := s.methods[req.Method]
	if !ok {
		if req.IsNotification() {
			logger.Debug().Msg("Ignoring notification")
			return nil
		}
		observability.RecordProtocolRequest("unknown", false)
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	ctx = tracing.NewRequestContext(ctx)
	result, rpcErr := h(ctx, req.Params)
	observability.RecordProtocolRequest(req.Method, rpcErr == nil)

	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		logger.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("Request failed")
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

func (s *Server) initialize(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    s.cfg.Name,
			"version": s.cfg.Version,
		},
	}, nil
}

func (s *Server) listTools(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	descs := s.tools.ListTools(s.cfg.Policy)
	tools := make([]Tool, len(descs))
	for i, d := range descs {
		tools[i] = Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
			Annotations: &ToolAnnotations{
				DestructiveHint: d.Flags.Destructive,
				ReadOnlyHint:    !d.Flags.Destructive && !d.Flags.LongRunning,
			},
		}
	}
	return map[string]any{"tools": tools}, nil
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p CallParams
	if len(params) == 0 {
		return nil, &RPCError{Code: InvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid params", Data: err.Error()}
	}
	if p.Name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "missing tool name"}
	}

	res := s.tools.Execute(ctx, p.Name, p.Arguments, &toolexecutor.ExecutionContext{
		Caller:     "mcp",
		ToolPolicy: s.cfg.Policy,
		Confirmed:  s.cfg.Confirmed,
	})
	return CallResult{
		Content: []Content{{Type: "text", Text: res.Text()}},
		IsError: !res.OK(),
	}, nil
}
