package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Server struct{ mux *chi.Mux }

// New builds the router with its middleware chain. Routes are added with
// MountHandlers and Mount.
func New(l zerolog.Logger, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	m := chi.NewRouter()

	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Timeout(timeout))
	m.Use(Metrics)
	m.Use(Logger(l))

	return &Server{mux: m}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}
