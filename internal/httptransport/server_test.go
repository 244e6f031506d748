package httptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/eventstore"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/mcp"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	log := logger.New(logger.LevelError)
	d := mcp.NewDispatcher(log)
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "ping"},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return "pong", nil
		},
	})
	events := eventstore.New(time.Hour, 100, log, 0)

	s := New(Options{Addr: "127.0.0.1:0", Dispatcher: d, Events: events, Logger: log})
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestHandleRPC_DispatchesAndAccepts(t *testing.T) {
	_, srv := testServer(t)

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp, err := http.Post(srv.URL+"/mcp/rpc?session_id=abc", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 Accepted, got %d", resp.StatusCode)
	}
}

func TestHandleRPC_RejectsMissingSessionID(t *testing.T) {
	_, srv := testServer(t)
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp, err := http.Post(srv.URL+"/mcp/rpc", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleSSE_DeliversSessionEvent(t *testing.T) {
	_, srv := testServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp/sse?session_id=xyz", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(line, "event: session") {
		t.Fatalf("expected first SSE line to announce the session, got %q", line)
	}
}
