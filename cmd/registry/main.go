// Command registry runs a standalone Registry node: the HTTP asset
// catalog and download surface a domain exposes so other domains' data
// transfers can pull datasets and published results from it.
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

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/internal/infrastructure/logger"
	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/registry"
	"github.com/brane-project/brane/pkg/registry/assetstore"
)

func main() {
	configPath := flag.String("config", "node.yaml", "path to the node configuration file")
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
	if cfg.Worker.RegistryListenAddress == "" {
		fmt.Fprintln(os.Stderr, "worker.registry_listen_address is required")
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting brane registry", "domain", cfg.Name, "listen_address", cfg.Worker.RegistryListenAddress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signingKey, err := checker.DeriveSigningKey([]byte(cfg.Checker.MasterSecret), cfg.Name)
	if err != nil {
		appLogger.Error("derive checker signing key", "error", err)
		os.Exit(1)
	}
	checkerClient := checker.New(cfg.Checker.Address, cfg.Name, signingKey, cfg.Checker.Timeout)

	assets := assetstore.NewFilesystemStore(cfg.Worker.DataPath)
	srv := registry.New(cfg.Name, assets, cfg.Worker.ResultsPath, checkerClient)

	httpServer := &http.Server{
		Addr:         cfg.Worker.RegistryListenAddress,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // large asset archives can take a while to stream
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("registry HTTP service listening", "address", cfg.Worker.RegistryListenAddress)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("registry server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		appLogger.Info("registry shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("graceful shutdown failed, forcing close", "error", err)
			httpServer.Close()
		}
		appLogger.Info("registry stopped")
	}
}
