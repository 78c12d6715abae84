// Package app wires the catalog, its schema loader and its network servers
// into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	httpapi "github.com/arkilian/tablecat/internal/api/http"
	"github.com/arkilian/tablecat/internal/catalog"
	"github.com/arkilian/tablecat/internal/config"
	"github.com/arkilian/tablecat/internal/loader"
	"github.com/arkilian/tablecat/internal/manifest"
	"github.com/arkilian/tablecat/internal/server"
	"github.com/arkilian/tablecat/internal/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that reports catalog readiness.
const HealthService = "tablecat.Catalog"

// App owns the catalog and every component serving it.
type App struct {
	cfg *config.Config

	catalog  *catalog.Catalog
	storage  storage.ObjectStorage
	shutdown *server.ShutdownManager
	ready    atomic.Bool

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	group *errgroup.Group

	mu      sync.Mutex
	running bool
}

// New validates cfg and prepares an App with an empty catalog.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:     cfg,
		catalog: catalog.New(),
	}, nil
}

// Catalog returns the catalog the app serves.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Ready reports whether the schema definitions have been loaded.
func (a *App) Ready() bool {
	return a.ready.Load()
}

// Start opens storage, starts the servers, loads the schema definitions and
// exports the manifest. Servers report not-ready until the load succeeds.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	a.group = &errgroup.Group{}

	if err := a.initStorage(ctx); err != nil {
		a.abort()
		return err
	}
	if err := a.startServers(); err != nil {
		a.abort()
		return err
	}

	n, err := a.LoadSchema(ctx)
	if err != nil {
		a.abort()
		return fmt.Errorf("failed to load schema definitions: %w", err)
	}
	a.ready.Store(true)
	a.setServing(healthpb.HealthCheckResponse_SERVING)
	log.Printf("app: catalog ready with %d tables", n)

	if a.cfg.Manifest.Enabled {
		if err := a.ExportManifest(ctx); err != nil {
			log.Printf("app: warning: manifest export failed: %v", err)
		}
	}
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	if !a.cfg.UsesObjectStorage() {
		return nil
	}

	var err error
	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case config.StorageS3:
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.UsePathStyle,
		})
	default:
		err = fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == config.StorageS3 {
		log.Printf("app: s3 bucket=%s region=%s endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}
	return nil
}

// LoadSchema loads the configured schema definition file into the catalog,
// fetching it from object storage first when schema.object is set.
func (a *App) LoadSchema(ctx context.Context) (int, error) {
	path := a.cfg.Schema.File
	if a.cfg.Schema.Object != "" {
		if a.storage == nil {
			if err := a.initStorage(ctx); err != nil {
				return 0, err
			}
		}
		fetched, err := loader.FetchSource(ctx, a.storage, a.cfg.Schema.Object, a.cfg.Schema.WorkDir)
		if err != nil {
			return 0, err
		}
		path = fetched
	}

	return loader.New(a.catalog, "").LoadFile(ctx, path)
}

// ExportManifest writes the catalog to the manifest database and publishes it
// when a publish object is configured.
func (a *App) ExportManifest(ctx context.Context) error {
	summary, err := manifest.Export(ctx, a.catalog, a.cfg.Manifest.Path)
	if err != nil {
		return err
	}
	if a.cfg.Manifest.PublishObject == "" || a.storage == nil {
		return nil
	}
	return manifest.Publish(ctx, a.storage, summary.Path, a.cfg.Manifest.PublishObject)
}

func (a *App) startServers() error {
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			return err
		}
	}
	if a.cfg.HTTP.Enabled {
		if err := a.startHTTP(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) startHTTP() error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = ln

	router := httpapi.NewRouter(a.catalog, a.Ready)
	a.httpServer = &http.Server{
		Handler:      a.shutdown.Middleware(router),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, 10*time.Second))

	a.group.Go(func() error {
		log.Printf("app: HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return nil
}

func (a *App) startGRPC() error {
	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = ln

	a.grpcServer = grpc.NewServer()
	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.health)
	a.setServing(healthpb.HealthCheckResponse_NOT_SERVING)

	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))
	a.shutdown.RegisterCloser("grpc-health", server.CloserFunc(func() error {
		a.health.Shutdown()
		return nil
	}))

	a.group.Go(func() error {
		log.Printf("app: gRPC health server listening on %s", ln.Addr())
		if err := a.grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	return nil
}

func (a *App) setServing(status healthpb.HealthCheckResponse_ServingStatus) {
	if a.health == nil {
		return
	}
	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(HealthService, status)
}

// HTTPAddr returns the address the HTTP server listens on, or "" when disabled.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the address the gRPC server listens on, or "" when disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Wait blocks until every server has stopped and returns the first serve error.
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	return a.group.Wait()
}

// Stop drains and closes the servers. The catalog stays readable.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("app: initiating graceful shutdown")
	a.ready.Store(false)
	a.setServing(healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownErr := a.shutdown.Shutdown(ctx, "stop requested")
	if err := a.group.Wait(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	log.Printf("app: shutdown complete")
	return shutdownErr
}

// abort tears down whatever a failed Start had already brought up.
func (a *App) abort() {
	if err := a.shutdown.Shutdown(context.Background(), "startup failed"); err != nil {
		log.Printf("app: cleanup after failed start: %v", err)
	}
	if err := a.group.Wait(); err != nil {
		log.Printf("app: server error during failed start: %v", err)
	}
	for _, ln := range []net.Listener{a.httpListener, a.grpcListener} {
		if ln != nil {
			ln.Close()
		}
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}
