// Package apiServer serves rendered owners, datasets, places and
// submissions over HTTP.
package apiServer

import (
	"net/http"

	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *httprouter.Router
	store    store.Reader
	renderer *render.Renderer
	log      *logrus.Logger

	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

type Option func(*Server)

func New(st store.Reader, renderer *render.Renderer, opts ...Option) *Server { // A
	s := &Server{
		router:   httprouter.New(),
		store:    st,
		renderer: renderer,
		log:      logrus.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() { // AC
	// httprouter does not let a static segment share a position with a
	// parameter, so ":child" dispatches between places, keys and
	// dataset-wide submission sets.
	s.get("/api/v2/:owner", s.handleOwner)
	s.get("/api/v2/:owner/datasets", s.handleDatasets)
	s.get("/api/v2/:owner/datasets/:dataset", s.handleDataset)
	s.get("/api/v2/:owner/datasets/:dataset/:child", s.handleDatasetChild)
	s.get("/api/v2/:owner/datasets/:dataset/:child/:place", s.handlePlace)
	s.get("/api/v2/:owner/datasets/:dataset/:child/:place/:set", s.handleSubmissions)
	s.get("/api/v2/:owner/datasets/:dataset/:child/:place/:set/:submission", s.handleSubmission)
	s.get("/actions/:id", s.handleAction)

	if s.registry != nil {
		s.router.Handler(http.MethodGet, "/metrics", metricsHandler(s.registry))
	}
	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
}

func (s *Server) get(path string, h httprouter.Handle) {
	s.router.GET(path, s.instrument(path, h))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // AC
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.router.ServeHTTP(w, r)
}

func WithLogger(logger *logrus.Logger) Option { // HC
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithMetrics counts requests per route into reg and serves reg on
// /metrics.
func WithMetrics(reg *prometheus.Registry) Option { // HC
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
			s.requests = newRequestCounter(reg)
		}
	}
}
