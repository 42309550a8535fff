package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cardpress/internal/daemon"
	"cardpress/internal/ipc"
	"cardpress/internal/logging"
	"cardpress/internal/normalizing"
	"cardpress/internal/preflight"
	"cardpress/internal/printing"
	"cardpress/internal/queue"
	"cardpress/internal/workflow"
)

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	results := preflight.RunAll(signalCtx, cfg)
	depStatuses := preflight.CheckSystemDeps(cfg)
	if !preflight.AllPassed(results, depStatuses) {
		for _, result := range results {
			if !result.Passed {
				fmt.Fprintf(os.Stderr, "preflight: %s: %s\n", result.Name, result.Detail)
			}
		}
		for _, dep := range depStatuses {
			if !dep.Available && !dep.Optional {
				fmt.Fprintf(os.Stderr, "preflight: %s (%s): %s\n", dep.Name, dep.Command, dep.Detail)
			}
		}
		return fmt.Errorf("preflight checks failed")
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	if reset, err := store.ResetStuckProcessing(signalCtx); err != nil {
		logger.Warn("reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		logger.Info("reset stuck jobs from previous run", logging.Int64("count", reset))
	}

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Normalizer: normalizing.NewNormalizer(cfg, store, logger),
		Printer:    printing.NewPrinter(cfg, store, logger),
	})

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, daemon.SocketPath(cfg), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	select {
	case <-signalCtx.Done():
	case <-ipcServer.StopRequested():
	}
	logger.Info("cardpress daemon shutting down")
	return nil
}
