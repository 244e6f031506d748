package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
)

// ToolHandler executes one registered tool against raw JSON arguments and
// returns a JSON-marshalable result or a user-facing error.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool bundles a handler with its advertised descriptor.
type Tool struct {
	Descriptor ToolDescriptor
	Handler    ToolHandler
}

// Dispatcher is the shared tool registry backing both transports: it owns
// no transport-specific state, only the "method name -> behavior" mapping,
// so stdio and HTTP+SSE can both route through it identically.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *logger.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{tools: make(map[string]Tool), log: log}
}

// Register adds a tool to the registry. Re-registering a name replaces it.
func (d *Dispatcher) Register(tool Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[tool.Descriptor.Name] = tool
}

// ListTools returns descriptors for every registered tool in map iteration
// order, which Go randomizes; the result is not sorted.
func (d *Dispatcher) ListTools() []ToolDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t.Descriptor)
	}
	return out
}

// Handle routes a single JSON-RPC request to the appropriate built-in
// method or tool handler and returns the Response to send back.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return NewResult(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]string{"name": "research-mcp-server", "version": "1.0"},
		})
	case "tools/list":
		return NewResult(req.ID, map[string]any{"tools": d.ListTools()})
	case "tools/call":
		return d.handleToolCall(ctx, req)
	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, "malformed tools/call params", err.Error())
	}

	d.mu.RLock()
	tool, ok := d.tools[params.Name]
	d.mu.RUnlock()
	if !ok {
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool %q", params.Name), nil)
	}

	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		d.log.Errorf("mcp: tool %q failed: %v", params.Name, err)
		return NewError(req.ID, CodeInternalError, err.Error(), nil)
	}
	return NewResult(req.ID, result)
}
