package preflight

import (
	"context"

	"cardpress/internal/config"
	"cardpress/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir),
		CheckDirectoryAccess("Processed directory", cfg.Paths.ProcessedDir),
		CheckDirectoryAccess("Quarantine directory", cfg.Paths.QuarantineDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
}

// CheckSystemDeps evaluates the CUPS command-line tools the print stage
// shells out to. Both the daemon and the CLI status command use this to
// avoid duplicating the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "lp",
			Command:     cfg.LPBinary(),
			Description: "Required for print submission",
		},
		{
			Name:        "lpstat",
			Command:     cfg.LPStatBinary(),
			Description: "Required for print job polling",
		},
		{
			Name:        "cancel",
			Command:     "cancel",
			Description: "Withdraws timed-out jobs from the spooler",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}

// AllPassed reports whether every required check succeeded.
func AllPassed(results []Result, depStatuses []deps.Status) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	for _, status := range depStatuses {
		if !status.Optional && !status.Available {
			return false
		}
	}
	return true
}
