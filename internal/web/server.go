package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const authTokenLength = 32

// Backend is the part of the connection actor the UI bridge drives.
type Backend interface {
	SubmitOutgoingMessage(ctx context.Context, text string) (actor.SendResult, error)
	ShareRoster(ctx context.Context) error
	ResetPeers(ctx context.Context) error
	Status(ctx context.Context) (actor.Status, error)
}

// Server represents the web server
type Server struct {
	addr       string
	authToken  string
	backend    Backend
	hub        *Hub
	router     *httprouter.Router
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates a new web server. Chat events reach browsers through hub,
// which the caller also registers as the connection actor's UI.
func NewServer(addr string, hub *Hub, backend Backend, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Component("web")
	}

	token, err := generateAuthToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}

	s := &Server{
		addr:      addr,
		authToken: token,
		backend:   backend,
		hub:       hub,
		router:    httprouter.New(),
		log:       log,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.handle(http.MethodGet, "/health", s.handleHealth)
	s.handle(http.MethodGet, "/metrics", s.handleMetrics)

	s.handle(http.MethodGet, "/ws", s.authenticated(s.handleWebSocket))
	s.handle(http.MethodGet, "/api/status", s.authenticated(s.handleStatus))
	s.handle(http.MethodPost, "/api/messages", s.authenticated(s.handleSend))
	s.handle(http.MethodPost, "/api/roster/share", s.authenticated(s.handleShareRoster))
	s.handle(http.MethodPost, "/api/peers/reset", s.authenticated(s.handleResetPeers))
}

func (s *Server) handle(method, pattern string, h httprouter.Handle) {
	s.router.Handle(method, pattern, instrument(pattern, h))
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Token returns the token clients must present.
func (s *Server) Token() string {
	return s.authToken
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.NewStdLogger(s.log, slog.LevelError),
	}

	go s.hub.Run()
	defer s.hub.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web ui listening on http://%s/?token=%s", ln.Addr(), s.authToken)
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) authenticated(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token != s.authToken {
			s.log.Warn("rejected %s %s: invalid auth token", r.Method, r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	promhttp.Handler().ServeHTTP(w, r)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // token already checked
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}

	client := NewClient(s.hub, conn, s.backend, s.log)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

type sendRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	res, err := s.backend.SubmitOutgoingMessage(r.Context(), req.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, &WebMessage{
		Type:    MessageTypeSent,
		Body:    req.Body,
		AckID:   res.AckID,
		Relayed: res.Relayed,
		Reached: res.Reached,
	})
}

func (s *Server) handleShareRoster(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.backend.ShareRoster(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.backend.ResetPeers(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status, err := s.backend.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &WebMessage{Type: MessageTypeError, Error: msg})
}

// generateAuthToken generates a random auth token
func generateAuthToken() (string, error) {
	bytes := make([]byte, authTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
