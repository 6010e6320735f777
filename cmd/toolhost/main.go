package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/toolhost"
)

const (
	defaultService = config.ServiceHPC
)

var (
	version    = flag.Bool("version", false, "Print version and exit")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	stdio      = flag.Bool("stdio", false, "Serve MCP over stdio instead of HTTP")
	configPath = flag.String("config", "", "Path to a YAML configuration file")
	service    = flag.String("service", "", "Service to host (hpc, chem or literature)")
	port       = flag.String("port", "", "HTTP port; overrides the configured tool host port")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("Discovery Agent Tool Host v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	// stdout carries the MCP stream in stdio mode, so logs go to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	name := *service
	if name == "" {
		name = getEnv("TOOLHOST_SERVICE", defaultService)
	}
	listenPort := *port
	if listenPort == "" {
		listenPort = getEnv("TOOLHOST_PORT", cfg.ToolHost.Port)
	}

	host, err := selectHost(toolhost.Build(cfg.ToolHost, cfg.Service.Version, logger), name)
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger.Info("Tool host starting",
		"service", name,
		"tools", len(host.Manifest().Tools),
		"stdio", *stdio,
		"port", listenPort,
	)

	if *stdio {
		if err := server.ServeStdio(host.MCPServer()); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
		return
	}

	httpServer := &http.Server{
		Addr:              ":" + listenPort,
		Handler:           host.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Shutting down tool host")
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	logger.Info("Tool host listening", "port", listenPort, "mcp_path", "/mcp", "catalog_path", "/catalog")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to serve: %v", err)
	}
}

// selectHost picks one host by service name
func selectHost(hosts map[string]*toolhost.Host, name string) (*toolhost.Host, error) {
	if h, ok := hosts[name]; ok {
		return h, nil
	}
	known := make([]string, 0, len(hosts))
	for k := range hosts {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown service %q, expected one of %v", name, known)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
