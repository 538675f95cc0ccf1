// Command orchestrator runs the central Orchestrator node: it accepts
// already-compiled workflows over HTTP, plans their domain assignments
// with pkg/planner, and drives each to completion over the worker gRPC
// transport.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/internal/domaindir"
	"github.com/brane-project/brane/internal/infrastructure/logger"
	"github.com/brane-project/brane/internal/infrastructure/tracing"
	"github.com/brane-project/brane/internal/transport/workergrpc"
	"github.com/brane-project/brane/pkg/orchestratorapi"
	"github.com/brane-project/brane/pkg/planner"
	"github.com/brane-project/brane/pkg/profile"
	"github.com/brane-project/brane/pkg/registryclient"
)

func main() {
	configPath := flag.String("config", "node.yaml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Kind != config.NodeCentral {
		fmt.Fprintf(os.Stderr, "node config kind %q is not central\n", cfg.Kind)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting brane orchestrator", "name", cfg.Name, "listen_address", cfg.Central.ListenAddress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		appLogger.Error("tracing provider setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if tracer != nil {
			_ = tracer.Shutdown(context.Background())
		}
	}()
	profiler := profile.New(tracer.Tracer(), profile.NewMetrics(nil))

	peerDomains := domaindir.New(cfg.Central.Domains)

	registryClients := make(map[string]*registryclient.Client, len(cfg.Central.Domains))
	for _, d := range cfg.Central.Domains {
		if d.RegistryURL == "" {
			continue
		}
		registryClients[d.Name] = registryclient.New(d.RegistryURL, http.DefaultClient)
	}
	locator := registryclient.NewLocator(registryClients)

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	dial := workergrpc.NewDialer(peerDomains.ResolveWorkerAddr, dialOpts...)

	// The optional per-domain checker consult pkg/planner.CheckerDialer
	// supports  needs a checker address per
	// federated domain, which this deployment's static domain directory
	// does not carry (only worker_address/registry_url/capabilities do);
	// planner.New accepts a nil dialer precisely to skip that consult.
	plan := planner.New(peerDomains, locator, nil)

	runner := &orchestratorapi.Runner{Dial: dial, Profiler: profiler, Logger: appLogger}
	executions := orchestratorapi.NewExecutionStore()
	apiServer := orchestratorapi.New(plan, runner, executions, appLogger)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	if cfg.Central.PackagesPath != "" {
		mux.Handle("/packages/", http.StripPrefix("/packages/", http.FileServer(http.Dir(cfg.Central.PackagesPath))))
	}

	httpServer := &http.Server{
		Addr:         cfg.Central.ListenAddress,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // a synchronous workflow run can take a while
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("orchestrator HTTP service listening", "address", cfg.Central.ListenAddress)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("orchestrator server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		appLogger.Info("orchestrator shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("graceful shutdown failed, forcing close", "error", err)
			httpServer.Close()
		}
		appLogger.Info("orchestrator stopped")
	}
}
