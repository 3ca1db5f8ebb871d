// Package embedded provides an embeddable chargeq server for in-process
// use (tests, desktop wrappers, kiosk builds).
package embedded

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	httpapi "github.com/mistakeknot/chargeq/internal/http"
	"github.com/mistakeknot/chargeq/internal/reset"
	"github.com/mistakeknot/chargeq/internal/storage"
	"github.com/mistakeknot/chargeq/internal/storage/sqlite"
	"github.com/mistakeknot/chargeq/internal/ws"
)

// Config configures the embedded server.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// If empty, an in-memory database is used.
	DBPath string

	// Host is the host to bind to. Defaults to 127.0.0.1.
	Host string

	// Port is the HTTP port to listen on. 0 picks a free port.
	Port int

	// ResetInterval is how often the daily reset check runs.
	// Defaults to one minute.
	ResetInterval time.Duration
}

// Server is an embedded chargeq server.
type Server struct {
	cfg       Config
	store     storage.Store
	hub       *ws.Hub
	scheduler *reset.Scheduler
	http      *http.Server
	ln        net.Listener
	started   bool
	mu        sync.Mutex
}

// New creates an embedded server. No auth middleware is installed: the
// server binds to loopback and trusts in-process callers.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = time.Minute
	}

	var st *sqlite.Store
	var err error
	if cfg.DBPath == "" {
		st, err = sqlite.NewInMemory()
	} else {
		st, err = sqlite.New(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	store := sqlite.NewResilient(st)

	hub := ws.NewHub()
	svc := httpapi.NewService(store).WithBroadcaster(hub)
	router := httpapi.NewRouter(svc, hub.Handler(), nil)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		scheduler: reset.NewScheduler(store, hub, cfg.ResetInterval),
		http:      &http.Server{Handler: router},
		ln:        ln,
	}, nil
}

// Start serves in a goroutine and launches the reset scheduler.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.scheduler.Start(context.Background())
	go func() {
		if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "chargeq server error: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// URL returns the base URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.ln.Addr().String())
}

// Store returns the underlying store for direct access if needed.
func (s *Server) Store() storage.Store {
	return s.store
}
