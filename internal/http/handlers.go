package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChatEndpoint attaches a websocket chat client.
type ChatEndpoint interface {
	Serve(w http.ResponseWriter, r *http.Request, chatID int64, username string)
}

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server exposes health, readiness and metrics, and the websocket chat
// endpoint when one is configured.
type Server struct {
	logger *slog.Logger
	ready  Pinger
	chats  ChatEndpoint
	mux    *mux.Router
	srv    *http.Server
}

// NewServer builds the ops server. chats may be nil.
func NewServer(opts Options, ready Pinger, chats ChatEndpoint, logger *slog.Logger) *Server {
	s := &Server{logger: logger, ready: ready, chats: chats, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.chats != nil {
		s.mux.HandleFunc("/ws/{chat_id}", s.handleWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	status, code := "ready", http.StatusOK
	if err := s.ready.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chat_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}
	s.chats.Serve(w, r, chatID, r.URL.Query().Get("username"))
}
