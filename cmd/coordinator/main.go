package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/cache"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/retry"
	"github.com/AltairaLabs/discovery-agent/internal/dispatch"
	"github.com/AltairaLabs/discovery-agent/internal/metrics"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/router/gemini"
	"github.com/AltairaLabs/discovery-agent/internal/storage/memory"
	"github.com/AltairaLabs/discovery-agent/internal/toolhost"
)

var (
	version    = flag.Bool("version", false, "Print version and exit")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	httpMode   = flag.Bool("http", false, "Enable HTTP transport instead of stdio")
	configPath = flag.String("config", "", "Path to a YAML configuration file")
)

var errStdioClosed = errors.New("stdio transport closed")

func main() {
	flag.Parse()

	if *version {
		fmt.Println("Discovery Agent Coordinator v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *httpMode, logger); err != nil {
		logger.Error("Coordinator exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Coordinator shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, httpMode bool, logger *slog.Logger) error {
	logger.Info("Starting Discovery Agent Coordinator",
		"version", cfg.Service.Version,
		"grpc_port", cfg.Service.GRPCPort,
		"http_mode", httpMode,
		"http_port", cfg.Service.HTTPPort,
		"routing", cfg.Routing.Strategy,
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reg, err := buildRegistry(cfg, m, healthSrv, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("Failed to close tool host bindings", "error", err)
		}
	}()

	policy := retry.FromConfig(cfg.Dispatch)
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	disp := dispatch.New(reg,
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithRetryPolicy(policy),
		dispatch.WithRemediation(cfg.Remediation),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(logger),
	)

	specialists := router.FromConfig(cfg.Routing.Specialists)
	strategy, err := buildStrategy(ctx, cfg.Routing, specialists)
	if err != nil {
		return err
	}

	coord := coordinator.New(memory.NewSessionStore(cfg.Sessions.Shards), reg, disp,
		coordinator.WithSpecialists(specialists),
		coordinator.WithStrategy(strategy),
		coordinator.WithStrictInput(cfg.Service.StrictInput),
		coordinator.WithDefaultUser(cfg.Service.DefaultUser),
		coordinator.WithMetrics(m),
		coordinator.WithLogger(logger),
	)

	mcpServer := coordinator.NewMCPServer(coordinator.Config{
		Name:    cfg.Service.Name,
		Version: cfg.Service.Version,
	}, coord, logger)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	listenConfig := net.ListenConfig{}
	lis, err := listenConfig.Listen(ctx, "tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.Service.GRPCPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting gRPC health server", "port", cfg.Service.GRPCPort)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSrv.Shutdown()
		stopGRPC(grpcServer, logger)
		return nil
	})
	g.Go(func() error {
		coord.RunSessionCleanup(gctx, cfg.Sessions.MaxIdle, cfg.Sessions.CleanupInterval)
		return nil
	})

	if httpMode {
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcpServer.Handler())
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		mux.Handle("/", coord.HTTPHandler())
		httpServer := &http.Server{
			Addr:              ":" + cfg.Service.HTTPPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", "port", cfg.Service.HTTPPort, "mcp_path", "/mcp")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	} else {
		// ServeStdio only returns when stdin closes, so it stays outside the group
		stdioDone := make(chan error, 1)
		go func() {
			stdioDone <- mcpServer.ServeWithLogger(logger)
		}()
		g.Go(func() error {
			select {
			case err := <-stdioDone:
				if err != nil {
					return err
				}
				return errStdioClosed
			case <-gctx.Done():
				return nil
			}
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("Received shutdown signal")
		return nil
	}
	if errors.Is(err, errStdioClosed) {
		logger.Info("Stdio transport closed")
		return nil
	}
	return err
}

// buildRegistry constructs the built-in hosts and a registry over the
// configured servers. Binding state is mirrored to metrics and gRPC health.
func buildRegistry(cfg *config.Config, m *metrics.Metrics, healthSrv *health.Server, logger *slog.Logger) (*registry.Registry, error) {
	hosts := toolhost.Build(cfg.ToolHost, cfg.Service.Version, logger)

	opts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithClientInfo(cfg.Service.Name, cfg.Service.Version),
		registry.WithBindingObserver(func(server string, state registry.State, err error) {
			m.SetBindingInitialized(server, state == registry.StateInitialized)
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if state == registry.StateInitialized {
				status = healthpb.HealthCheckResponse_SERVING
			}
			healthSrv.SetServingStatus("toolhost."+server, status)
			if err != nil {
				logger.Warn("Tool host binding failed", "server", server, "error", err)
			}
		}),
	}
	if cfg.Discovery.CacheTTL > 0 {
		opts = append(opts, registry.WithCache(cache.New[[]registry.Descriptor](cfg.Discovery.CacheTTL, config.DefaultCatalogCacheCleanupInterval)))
	}

	reg, err := registry.FromConfig(cfg.Servers, toolhost.InProcess(hosts), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return reg, nil
}

func buildStrategy(ctx context.Context, cfg config.RoutingConfig, specialists []router.Specialist) (router.Strategy, error) {
	var decider router.Decider
	if cfg.Strategy == config.StrategyDelegated {
		d, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create routing decider: %w", err)
		}
		decider = d
	}
	return router.New(cfg, specialists, decider)
}

// stopGRPC stops gracefully, forcing the stop after the shutdown timeout
func stopGRPC(s *grpc.Server, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("gRPC server stopped gracefully")
	case <-time.After(config.DefaultShutdownTimeout):
		logger.Warn("Graceful shutdown timeout, forcing stop")
		s.Stop()
		<-done
	}
}
