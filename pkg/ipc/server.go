// Package ipc hosts the HTTP boundary the UI surfaces talk to: the message
// envelope endpoint, a WebSocket stream of push-state events, and the
// operational endpoints.
package ipc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitgrind/gitgrind/pkg/bus"
	"github.com/gitgrind/gitgrind/pkg/intercept"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/service"
)

// Config controls the IPC server behavior.
type Config struct {
	BindAddress string
}

// Server hosts the JSON/HTTP + WebSocket API.
type Server struct {
	cfg        Config
	svc        *service.Service
	msgBus     bus.MessageBus
	logger     *logging.Logger
	httpServer *http.Server

	portMu sync.Mutex
	port   intercept.Port
}

// NewServer wires the boundary server. msgBus may be nil, disabling the
// push-state stream.
func NewServer(cfg Config, svc *service.Service, msgBus bus.MessageBus, logger *logging.Logger) *Server {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1:7340"
	}
	return &Server{
		cfg:    cfg,
		svc:    svc,
		msgBus: msgBus,
		logger: logger,
	}
}

// SetInterceptionPort enables the /api/observe ingestion route, through which
// the page-side hook hands over request/response body copies. Calls into the
// port are serialized.
func (s *Server) SetInterceptionPort(port intercept.Port) {
	s.portMu.Lock()
	s.port = port
	s.portMu.Unlock()
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/api/message", s.handleMessage)
	r.Post("/api/observe", s.handleObserve)
	r.Get("/api/push/ws", s.handlePushStateWS)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", s.handleHealthz)

	return r
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info(logging.CategoryIPC, "server_started", "ipc server listening", map[string]any{
		"address": listener.Addr().String(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleMessage is the envelope endpoint: {type, payload} in, {ok, data?|error?}
// out. Handler failures are carried in the reply; the HTTP status is 200 for
// anything that decoded.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env service.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		metricMessages.WithLabelValues("invalid", "error").Inc()
		respondJSON(w, http.StatusBadRequest, service.Reply{OK: false, Error: "malformed envelope"})
		return
	}

	reply := s.svc.Handle(r.Context(), env)
	outcome := "ok"
	if !reply.OK {
		outcome = "error"
	}
	metricMessages.WithLabelValues(env.Type, outcome).Inc()
	respondJSON(w, http.StatusOK, reply)
}

// observePayload is one observed body copy from the page-side hook.
type observePayload struct {
	Phase string `json:"phase"` // "request" or "response"
	URL   string `json:"url"`
	Body  []byte `json:"body"`
}

// handleObserve feeds body copies into the interception port. The hook fires
// on every page call, so failures are reported but bodies are never echoed.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.port == nil {
		respondJSON(w, http.StatusServiceUnavailable, service.Reply{OK: false, Error: "observation disabled"})
		return
	}

	var p observePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		respondJSON(w, http.StatusBadRequest, service.Reply{OK: false, Error: "malformed observation"})
		return
	}

	switch p.Phase {
	case "request":
		s.port.OnRequestObserved(p.URL, p.Body)
	case "response":
		s.port.OnResponseObserved(p.URL, p.Body)
	default:
		respondJSON(w, http.StatusBadRequest, service.Reply{OK: false, Error: "phase must be request or response"})
		return
	}
	respondJSON(w, http.StatusOK, service.Reply{OK: true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
