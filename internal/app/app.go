// Package app wires the partwise services together and runs them.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcapi "github.com/partwise/partwise/internal/api/grpc"
	httpapi "github.com/partwise/partwise/internal/api/http"
	"github.com/partwise/partwise/internal/config"
	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/internal/observability"
	"github.com/partwise/partwise/internal/query/planner"
	"github.com/partwise/partwise/internal/routing"
	"github.com/partwise/partwise/internal/server"
	"github.com/partwise/partwise/internal/storage"
)

// App owns the shared resources of a partwise process. The CLI uses the same
// resources for one-shot commands that Run serves over HTTP and gRPC.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Storage  storage.ObjectStorage
	Notifier *notify.Notifier
	Catalog  *manifest.SQLiteCatalog
	Cache    *manifest.SnapshotCache
	Stats    *observability.PruneStats
	Planner  *planner.Planner
	Router   *routing.Service
	Registry *prometheus.Registry

	shutdown *server.ShutdownManager

	mu       sync.Mutex
	running  bool
	group    *errgroup.Group
	httpAddr net.Addr
	grpcAddr net.Addr
}

// New resolves and validates cfg, then opens the catalog and object storage.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error
	if a.Storage, err = openStorage(ctx, a.cfg.Storage); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.Notifier = notify.NewNotifier(256)
	a.Catalog, err = manifest.NewCatalog(a.cfg.Catalog.Path,
		manifest.WithLogger(a.logger.Named("catalog")),
		manifest.WithNotifier(a.Notifier))
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	a.Cache = manifest.NewSnapshotCache(a.Catalog, manifest.CacheConfig{
		TTL:      a.cfg.Catalog.CacheTTL,
		Capacity: a.cfg.Catalog.CacheCapacity,
	}, a.logger.Named("cache"))
	a.Cache.Watch(a.Notifier)

	a.Stats = observability.NewPruneStats(a.cfg.Catalog.StatsWindow)
	a.Planner = planner.NewPlanner(a.Cache,
		planner.WithLogger(a.logger.Named("planner")),
		planner.WithStats(a.Stats))
	a.Router = routing.NewService(a.Cache, a.Catalog,
		routing.Config{MaxSpawn: a.cfg.Routing.MaxSpawn},
		a.logger.Named("routing"), a.Stats)

	a.Registry = prometheus.NewRegistry()
	if err := metrics.Register(a.Registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	return a.Registry.Register(collectors.NewGoCollector())
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "s3":
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			Prefix:       cfg.S3.Prefix,
		})
	default:
		return storage.NewLocalStorage(cfg.Path)
	}
}

// Start binds the configured listeners and serves until ctx is done. Wait
// returns once every server has stopped.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.ShutdownTimeout,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.ShouldRunHTTP() {
		ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
		}
		srv := &http.Server{
			Handler: server.ShutdownMiddleware(a.shutdown)(httpapi.NewHandler(httpapi.Deps{
				Planner:  a.Planner,
				Router:   a.Router,
				Catalog:  a.Catalog,
				Gatherer: a.Registry,
				Logger:   a.logger.Named("http"),
			})),
			ReadTimeout:  a.cfg.HTTP.ReadTimeout,
			WriteTimeout: a.cfg.HTTP.WriteTimeout,
			IdleTimeout:  a.cfg.HTTP.IdleTimeout,
		}
		a.httpAddr = ln.Addr()
		a.shutdown.RegisterCloser(server.HTTPServerCloser{Server: srv, Timeout: a.cfg.ShutdownTimeout})
		g.Go(func() error {
			a.logger.Info("http api listening", zap.Stringer("addr", ln.Addr()))
			if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if a.cfg.ShouldRunGRPC() {
		ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			a.shutdown.Shutdown(context.Background(), "startup failed")
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
		}
		gs := grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryInterceptor(a.shutdown)))
		grpcapi.NewPruneServer(a.Planner, a.Router, a.logger.Named("grpc")).Register(gs)
		a.grpcAddr = ln.Addr()
		a.shutdown.RegisterCloser(server.GRPCServerCloser{Server: gs, Timeout: a.cfg.ShutdownTimeout})
		g.Go(func() error {
			a.logger.Info("grpc api listening", zap.Stringer("addr", ln.Addr()))
			if err := gs.Serve(ln); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(statsPruneInterval(a.cfg.Catalog.StatsWindow))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.Stats.Prune()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		reason := "context done"
		if err := context.Cause(gctx); err != nil {
			reason = err.Error()
		}
		return a.shutdown.Shutdown(context.Background(), reason)
	})

	a.group = g
	a.running = true
	a.logger.Info("partwise started", zap.String("mode", string(a.cfg.Mode)))
	return nil
}

func statsPruneInterval(window time.Duration) time.Duration {
	if window <= 0 || window > 4*time.Minute {
		return time.Minute
	}
	return window / 4
}

// Wait blocks until the servers started by Start have stopped and returns the
// first error any of them reported.
func (a *App) Wait() error {
	a.mu.Lock()
	g := a.group
	a.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()

	a.mu.Lock()
	a.running = false
	a.group = nil
	a.mu.Unlock()
	return err
}

// Run starts the servers and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Wait()
}

// HTTPAddr returns the bound HTTP address, or nil when HTTP is not served.
func (a *App) HTTPAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// GRPCAddr returns the bound gRPC address, or nil when gRPC is not served.
func (a *App) GRPCAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grpcAddr
}

// Close releases the cache and the catalog. It does not stop running servers.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Catalog != nil {
		return a.Catalog.Close()
	}
	return nil
}
