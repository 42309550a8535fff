package main

import (
	"log/slog"

	"cardpress/internal/config"
	"cardpress/internal/normalizing"
	"cardpress/internal/printing"
	"cardpress/internal/queue"
	"cardpress/internal/workflow"
)

func configureStages(manager *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	if manager == nil || cfg == nil {
		return
	}

	manager.ConfigureStages(workflow.StageSet{
		Normalizer: normalizing.NewNormalizer(cfg, store, logger),
		Printer:    printing.NewPrinter(cfg, store, logger),
	})
}
