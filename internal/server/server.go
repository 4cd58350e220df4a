// Package server exposes the fangraph HTTP API and the embedded UI.
//
// The API surface is three fan-facing endpoints — get_user triggers a
// force-refresh crawl of one collection, get_status reports the crawl
// target's progress, get_recommendations runs the scorer — plus health
// and stats endpoints for operators. Everything else under / serves the
// bundled single-page UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/crawl"
	"github.com/fangraph/fangraph/internal/progress"
	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/web/static"
)

// Server wires the HTTP surface to the store, the progress manager, and
// the remote fetcher used by force-refresh requests.
type Server struct {
	store    storage.Store
	progress *progress.Manager
	fetcher  crawl.CollectionFetcher
	addr     string

	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
}

// New returns a Server that will listen on addr once Run is called.
func New(store storage.Store, manager *progress.Manager, fetcher crawl.CollectionFetcher, addr string) *Server {
	return &Server{
		store:    store,
		progress: manager,
		fetcher:  fetcher,
		addr:     addr,
	}
}

// Handler returns the full routing table. Exposed separately from Run so
// tests can drive the handlers without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/get_status", s.handleStatus)
	mux.HandleFunc("/api/get_user", s.handleUser)
	mux.HandleFunc("/api/get_recommendations", s.handleRecommendations)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/index.html", s.handleAsset("index.html"))
	mux.HandleFunc("/classless.css", s.handleAsset("classless.css"))
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Run serves the API until ctx is cancelled or the listener fails. A
// cancelled context drains in-flight requests and returns nil.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	log.WithField("address", ln.Addr().String()).Info("http server started")
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address, resolved to the actual port once Run
// has bound the listener.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleRoot serves the UI for / and 404s every unrouted path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, static.Files, "index.html")
}

func (s *Server) handleAsset(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static.Files, name)
	}
}
