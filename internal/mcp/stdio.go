package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
)

// StdioServer reads newline-delimited JSON-RPC requests from r and writes
// responses to w, matching the MCP stdio transport convention. Each line
// is handled synchronously and in order; concurrent tool execution happens
// inside the Dispatcher's own tool handlers, not across stdio lines.
type StdioServer struct {
	dispatcher *Dispatcher
	in         io.Reader
	out        io.Writer
	log        *logger.Logger
}

// NewStdioServer constructs a StdioServer bound to in/out.
func NewStdioServer(dispatcher *Dispatcher, in io.Reader, out io.Writer, log *logger.Logger) *StdioServer {
	return &StdioServer{dispatcher: dispatcher, in: in, out: out, log: log}
}

// Serve blocks, processing one JSON-RPC message per line until in is
// exhausted or ctx is cancelled.
func (s *StdioServer) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := encoder.Encode(NewError(nil, CodeParseError, "invalid JSON", err.Error())); encErr != nil {
				return encErr
			}
			continue
		}

		resp := s.dispatcher.Handle(ctx, req)
		if req.IsNotification() {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
