// Package api implements the HTTP control surface: queue access, transport
// queries, send operations and monitor CRUD, behind bearer-token auth.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openclaw/wa-bridge/internal/monitor"
	"github.com/openclaw/wa-bridge/internal/queue"
	"github.com/openclaw/wa-bridge/internal/transport"
)

// Server is the control surface. It binds to loopback only.
type Server struct {
	apiToken string
	port     int

	queue    *queue.Queue
	monitors *monitor.Registry
	client   transport.Client
	state    *transport.State
	log      zerolog.Logger

	server *http.Server
}

// NewServer assembles the control surface.
func NewServer(
	apiToken string,
	port int,
	q *queue.Queue,
	monitors *monitor.Registry,
	client transport.Client,
	state *transport.State,
	log zerolog.Logger,
) *Server {
	return &Server{
		apiToken: apiToken,
		port:     port,
		queue:    q,
		monitors: monitors,
		client:   client,
		state:    state,
		log:      log,
	}
}

// Handler builds the route table wrapped in the auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Connection
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /qr", s.handleQR)

	// Event queue
	mux.HandleFunc("GET /events", s.handleEventsDrain)
	mux.HandleFunc("GET /events/peek", s.handleEventsPeek)

	// Chats
	mux.HandleFunc("GET /chats", s.handleChats)
	mux.HandleFunc("GET /chats/{chatID}/messages", s.handleChatMessages)

	// Contacts
	mux.HandleFunc("GET /contacts", s.handleContacts)
	mux.HandleFunc("GET /contacts/search", s.handleContactsSearch)

	// Groups
	mux.HandleFunc("GET /groups", s.handleGroups)
	mux.HandleFunc("GET /groups/search", s.handleGroupsSearch)
	mux.HandleFunc("GET /groups/{groupID}/info", s.handleGroupInfo)

	// Messaging
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /send-group", s.handleSendGroup)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /messages/{messageID}/media", s.handleMedia)

	// Monitors
	mux.HandleFunc("GET /monitor", s.handleMonitorList)
	mux.HandleFunc("POST /monitor", s.handleMonitorAdd)
	mux.HandleFunc("DELETE /monitor/{contactID}", s.handleMonitorRemove)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return s.withAuth(mux)
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.Handler(),
	}
	s.log.Info().Int("port", s.port).Msg("control surface listening")
	return s.server.ListenAndServe()
}

// Stop shuts the server down, refusing new connections.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// withAuth enforces the static bearer token. An empty token disables
// authentication entirely.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		expected := "Bearer " + s.apiToken
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireConnected short-circuits with 503 when the transport is not ready.
func (s *Server) requireConnected(w http.ResponseWriter) bool {
	if !s.state.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not connected")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
