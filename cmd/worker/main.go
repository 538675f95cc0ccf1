// Command worker runs a Worker node: the gRPC Worker service a remote
// orchestrator's VM Plugin dials into for Preprocess/Execute/Commit,
// backed by this domain's container runtime, package cache, and data
// transfer machinery.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/internal/container"
	"github.com/brane-project/brane/internal/domaindir"
	"github.com/brane-project/brane/internal/infrastructure/logger"
	"github.com/brane-project/brane/internal/infrastructure/tracing"
	"github.com/brane-project/brane/internal/transport/workergrpc"
	"github.com/brane-project/brane/pkg/cache"
	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/profile"
	"github.com/brane-project/brane/pkg/registry/assetstore"
	"github.com/brane-project/brane/pkg/worker"
)

func main() {
	configPath := flag.String("config", "node.yaml", "path to the node configuration file")
	backendPath := flag.String("backend", "", "path to the container-launch backend file (defaults to worker.backend_file)")
	flag.Parse()

	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Kind != config.NodeWorker {
		fmt.Fprintf(os.Stderr, "node config kind %q is not worker\n", cfg.Kind)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting brane worker", "domain", cfg.Name, "listen_address", cfg.Worker.ListenAddress)

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

	backendFilePath := *backendPath
	if backendFilePath == "" {
		backendFilePath = cfg.Worker.BackendFile
	}
	backend, err := config.LoadBackendFile(backendFilePath)
	if err != nil {
		appLogger.Error("load backend file", "error", err)
		os.Exit(1)
	}

	docker, err := container.New(backend.Local.DockerHost)
	if err != nil {
		appLogger.Error("connect to container runtime", "error", err)
		os.Exit(1)
	}
	defer docker.Close()
	if err := docker.Health(ctx); err != nil {
		appLogger.Warn("container runtime health check failed", "error", err)
	}

	signingKey, err := checker.DeriveSigningKey([]byte(cfg.Checker.MasterSecret), cfg.Name)
	if err != nil {
		appLogger.Error("derive checker signing key", "error", err)
		os.Exit(1)
	}
	checkerClient := checker.New(cfg.Checker.Address, cfg.Name, signingKey, cfg.Checker.Timeout)

	fetcher := worker.NewHTTPPackageFetcher(cfg.Worker.CentralAPI, nil)
	packages := worker.NewPackageCache(cfg.Worker.PackagesPath, fetcher, cfg.Worker.HashContainers)

	peerDomains := domaindir.New(cfg.Worker.Domains)
	domainCacheTTL := cfg.Worker.DomainCacheTTL
	if domainCacheTTL <= 0 {
		domainCacheTTL = time.Minute
	}
	// The Transferer downloads from a source domain's Registry, so the
	// cached address is the domain's registry URL, not its worker address.
	registryLookup := func(ctx context.Context, domain string) (cache.DomainInfo, error) {
		info, err := peerDomains.Lookup(ctx, domain)
		if err != nil {
			return cache.DomainInfo{}, err
		}
		info.Address, err = peerDomains.RegistryURL(domain)
		return info, err
	}
	domains := cache.NewDomainRegistryCache(domainCacheTTL, registryLookup)
	transferer := worker.NewTransferer(domains, http.DefaultClient, cfg.Worker.TempDataPath, cfg.Worker.TempResultsPath, cfg.Worker.TempTarsPath)

	assets := assetstore.NewFilesystemStore(cfg.Worker.DataPath)

	exec := &worker.Executor{
		Domain:         cfg.Name,
		Packages:       packages,
		Docker:         docker,
		Checker:        checkerClient,
		HashContainers: cfg.Worker.HashContainers,
		ResultsDir:     cfg.Worker.ResultsPath,
		Profiler:       profiler,
	}

	local := &worker.LocalWorkerClient{Transfer: transferer, Exec: exec, Assets: assets}

	grpcServer := grpc.NewServer()
	workergrpc.RegisterServer(grpcServer, &workergrpc.Server{Local: local})

	lis, err := net.Listen("tcp", cfg.Worker.ListenAddress)
	if err != nil {
		appLogger.Error("listen", "address", cfg.Worker.ListenAddress, "error", err)
		os.Exit(1)
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("worker gRPC service listening", "address", cfg.Worker.ListenAddress)
		serverErrors <- grpcServer.Serve(lis)
	}()

	select {
	case err := <-serverErrors:
		appLogger.Error("worker server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		appLogger.Info("worker shutdown initiated")
		grpcServer.GracefulStop()
		appLogger.Info("worker stopped")
	}
}
