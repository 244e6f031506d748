package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
)

func testDispatcher() *Dispatcher {
	d := NewDispatcher(logger.New(logger.LevelError))
	d.Register(Tool{
		Descriptor: ToolDescriptor{Name: "echo", Description: "echoes its input"},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var m map[string]any
			json.Unmarshal(args, &m)
			return m, nil
		},
	})
	return d
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := testDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: ProtocolVersion, ID: json.RawMessage("1"), Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}

func TestDispatcher_ToolsCall(t *testing.T) {
	d := testDispatcher()
	req := Request{
		JSONRPC: ProtocolVersion,
		ID:      json.RawMessage("2"),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"echo","arguments":{"x":1}}`),
	}
	resp := d.Handle(context.Background(), req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := testDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: ProtocolVersion, ID: json.RawMessage("3"), Method: "bogus"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found error, got %+v", resp.Error)
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := testDispatcher()
	req := Request{
		JSONRPC: ProtocolVersion,
		ID:      json.RawMessage("4"),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"nope","arguments":{}}`),
	}
	resp := d.Handle(context.Background(), req)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found error for unknown tool, got %+v", resp.Error)
	}
}

func TestStdioServer_ProcessesMultipleLines(t *testing.T) {
	d := testDispatcher()
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","method":"tools/list"}` + "\n")
	var out bytes.Buffer
	srv := NewStdioServer(d, in, &out, logger.New(logger.LevelError))
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one response (notification suppressed), got %d: %q", len(lines), out.String())
	}
}

func TestStdioServer_InvalidJSONReturnsParseError(t *testing.T) {
	d := testDispatcher()
	in := strings.NewReader("not json\n")
	var out bytes.Buffer
	srv := NewStdioServer(d, in, &out, logger.New(logger.LevelError))
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "-32700") {
		t.Fatalf("expected a parse error response, got %q", out.String())
	}
}
