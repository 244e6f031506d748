// Package httptransport implements the HTTP+SSE transport: CORS-enabled
// endpoints for opening a streaming session and for posting JSON-RPC
// requests that get dispatched and pushed back down that session's
// stream. Adapted from the teacher's dashboard server (CORS middleware,
// per-client subscriber-channel fan-out, a long-lived http.Server with
// WriteTimeout disabled), generalized from a metrics/log broadcaster into
// a per-session JSON-RPC event channel backed by the event store for
// reconnect replay.
package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/eventstore"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/mcp"
)

// Server is the HTTP+SSE transport. Each connected client is tracked as a
// session keyed by a google/uuid value; POSTed JSON-RPC requests are
// dispatched and their response is delivered through the session's SSE
// channel rather than the POST's own response body, mirroring the
// teacher's "POST mutates state, GET streams it" split.
type Server struct {
	dispatcher *mcp.Dispatcher
	events     *eventstore.Store
	log        *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session

	httpServer *http.Server
}

type session struct {
	id   string
	ch   chan []byte
	done chan struct{}
}

// Options configures a Server.
type Options struct {
	Addr       string
	Dispatcher *mcp.Dispatcher
	Events     *eventstore.Store
	Logger     *logger.Logger
}

// New constructs a Server bound to opts.Addr. Call Serve to start it.
func New(opts Options) *Server {
	s := &Server{
		dispatcher: opts.Dispatcher,
		events:     opts.Events,
		log:        opts.Logger,
		sessions:   make(map[string]*session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/sse", s.withCORS(s.handleSSE))
	mux.HandleFunc("/mcp/rpc", s.withCORS(s.handleRPC))

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		WriteTimeout: 0, // long-lived SSE streams must not be cut off
		ReadTimeout:  30 * time.Second,
	}
	return s
}

// Serve blocks, running the HTTP server until it is closed.
func (s *Server) Serve() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the HTTP server and every open session channel down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, sess := range s.sessions {
		close(sess.done)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// handleSSE opens (or resumes) a session and streams JSON-RPC responses
// down to the client as they're produced by handleRPC.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess := s.getOrCreateSession(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: session\ndata: %s\n\n", sessionID)
	flusher.Flush()

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		s.events.HydrateStream(sessionID)
		s.replay(w, flusher, sessionID, lastID)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.done:
			return
		case msg, ok := <-sess.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) replay(w http.ResponseWriter, flusher http.Flusher, sessionID, lastEventIDStr string) {
	var lastID int64
	fmt.Sscanf(lastEventIDStr, "%d", &lastID)

	for _, ev := range s.events.ReplayAfter(sessionID, lastID) {
		payload, err := json.Marshal(ev.Message)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.EventID, payload)
	}
	flusher.Flush()
}

func (s *Server) getOrCreateSession(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &session{id: id, ch: make(chan []byte, 32), done: make(chan struct{})}
	s.sessions[id] = sess
	return sess
}

// handleRPC dispatches a JSON-RPC request and pushes its response down the
// named session's SSE channel rather than returning it in the POST body.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	var req mcp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	resp := s.dispatcher.Handle(r.Context(), req)
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	eventID := s.events.Append(sessionID, resp)

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		select {
		case sess.ch <- payload:
		default:
			s.log.Errorf("httptransport: session %s channel full, dropping event %d", sessionID, eventID)
		}
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"accepted":true,"eventId":%d}`, eventID)
}
