// Package server coordinates graceful shutdown of the catalog's network
// servers: it stops admitting requests, drains the ones in flight and closes
// registered resources in reverse order.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration

	// PollInterval is how often the in-flight count is checked. Default: 50ms
	PollInterval time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		DrainTimeout: 15 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// ShutdownManager tracks in-flight requests and owns the closers run at shutdown.
type ShutdownManager struct {
	cfg ShutdownConfig

	inFlight     atomic.Int64
	shuttingDown atomic.Bool
	done         chan struct{}
	once         sync.Once

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewShutdownManager creates a shutdown manager, filling zero config values
// with defaults.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &ShutdownManager{cfg: cfg, done: make(chan struct{})}
}

// RegisterCloser adds a resource to close at shutdown. Closers run in reverse
// registration order.
func (sm *ShutdownManager) RegisterCloser(name string, closer io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, closer: closer})
}

// Shutdown stops admitting requests, waits for in-flight ones and closes every
// registered resource. Only the first call does any work; later calls return
// nil once it has finished.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var shutdownErr error
	sm.once.Do(func() {
		defer close(sm.done)
		sm.shuttingDown.Store(true)
		log.Printf("server: shutting down (%s)", reason)

		if err := sm.drain(ctx); err != nil {
			shutdownErr = err
		}

		sm.mu.Lock()
		closers := sm.closers
		sm.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].closer.Close(); err != nil {
				log.Printf("server: closing %s: %v", closers[i].name, err)
				if shutdownErr == nil {
					shutdownErr = fmt.Errorf("server: close %s: %w", closers[i].name, err)
				}
			}
		}
	})
	<-sm.done
	return shutdownErr
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(sm.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if remaining := sm.inFlight.Load(); remaining > 0 {
				return fmt.Errorf("server: timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest admits a request. It returns false once shutdown has begun.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.shuttingDown.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest marks an admitted request as finished.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.shuttingDown.Load()
}

// InFlightCount returns the number of admitted, unfinished requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	return sm.inFlight.Load()
}

// Middleware rejects requests with 503 once shutdown has begun and tracks the
// rest until they finish.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.TrackRequest() {
			w.Header().Set("Connection", "close")
			http.Error(w, "service unavailable: shutting down", http.StatusServiceUnavailable)
			return
		}
		defer sm.UntrackRequest()
		next.ServeHTTP(w, r)
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}

// HTTPServerCloser shuts srv down gracefully within timeout when closed.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
