// Command cardpressd runs the card printing pipeline daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardpress/internal/config"
	"cardpress/internal/daemon"
	"cardpress/internal/deps"
	"cardpress/internal/ipc"
	"cardpress/internal/logging"
	"cardpress/internal/preflight"
	"cardpress/internal/queue"
	"cardpress/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	results := preflight.RunAll(ctx, cfg)
	depStatuses := preflight.CheckSystemDeps(cfg)
	if !preflight.AllPassed(results, depStatuses) {
		reportPreflight(results, depStatuses)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		os.Exit(1)
	}

	// Jobs left mid-stage by an unclean shutdown restart their stage.
	if reset, err := store.ResetStuckProcessing(ctx); err != nil {
		logger.Warn("reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		logger.Info("reset stuck jobs from previous run", logging.Int64("count", reset))
	}

	manager := workflow.NewManager(cfg, store, logger)
	configureStages(manager, cfg, store, logger)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, daemon.SocketPath(cfg), d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		os.Exit(1)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-ipcServer.StopRequested():
	}
	logger.Info("cardpressd shutting down")
}

func reportPreflight(results []preflight.Result, depStatuses []deps.Status) {
	fmt.Fprintln(os.Stderr, "preflight checks failed:")
	for _, result := range results {
		if result.Passed {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %s\n", result.Name, result.Detail)
	}
	for _, dep := range depStatuses {
		if dep.Available || dep.Optional {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s (%s): %s\n", dep.Name, dep.Command, dep.Detail)
	}
}
