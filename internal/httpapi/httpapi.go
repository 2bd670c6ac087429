// Package httpapi is the daemon's own HTTP control surface: the four
// routes game-emulator frontends and operators use to report a session
// starting or ending and to toggle online/force-sync state. It is
// architecturally thin — every handler does nothing but translate a
// request into an orchestrator.Event and report 2xx/4xx/5xx.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/orchestrator"
)

// Notifier is the subset of notifier.Notifier this surface needs.
type Notifier interface {
	Error(message string)
}

// OrchestratorSender is satisfied by *orchestrator.Orchestrator.
type OrchestratorSender interface {
	Send(e orchestrator.Event)
}

// Server wraps an http.Server driving the chi router below.
type Server struct {
	httpServer *http.Server
	log        logging.Logger
}

type handlers struct {
	orch     OrchestratorSender
	notifier Notifier
	log      logging.Logger
}

// New builds a Server listening on addr, dispatching to orch and reporting
// handler-level failures to notifier.
func New(addr string, orch OrchestratorSender, notifier Notifier) *Server {
	h := &handlers{orch: orch, notifier: notifier, log: logging.Named("httpapi")}

	r := chi.NewRouter()
	r.Get("/game", h.game)
	r.Post("/online", h.online)
	r.Post("/offline", h.offline)
	r.Post("/sync", h.sync)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        logging.Named("httpapi"),
	}
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown satisfies orchestrator.Halter: it stops accepting new
// connections and lets in-flight ones finish.
func (s *Server) Shutdown() {
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}
}

func (h *handlers) game(w http.ResponseWriter, r *http.Request) {
	event := r.URL.Query().Get("event")
	file := r.URL.Query().Get("file")

	path, err := filepath.Abs(file)
	if err != nil {
		h.log.Error().Err(err).Str(logging.FieldPath, file).Msg("could not canonicalize path")
		h.notifier.Error("GET /game: could not canonicalize path")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch event {
	case "start":
		h.orch.Send(orchestrator.Event{Kind: orchestrator.GameStarted, Path: path})
	case "end":
		h.orch.Send(orchestrator.Event{Kind: orchestrator.GameEnded, Path: path})
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid event: " + event))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) online(w http.ResponseWriter, r *http.Request) {
	h.orch.Send(orchestrator.Event{Kind: orchestrator.IsOnline, Online: true})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) offline(w http.ResponseWriter, r *http.Request) {
	h.orch.Send(orchestrator.Event{Kind: orchestrator.IsOnline, Online: false})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	h.orch.Send(orchestrator.Event{Kind: orchestrator.ForceSync})
	w.WriteHeader(http.StatusNoContent)
}
