package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cardpress/internal/imaging"
	"cardpress/internal/logging"
	"cardpress/internal/printer"
	"cardpress/internal/queue"
)

// newPrintCommand performs one-shot normalize and submit for explicit files,
// bypassing the watch folder and the durable queue.
func newPrintCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "print <file...>",
		Short: "Normalize and print card images immediately",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			backend := printer.NewCUPS(cfg, logging.NewNop())
			if err := backend.Available(cmd.Context()); err != nil {
				return fmt.Errorf("printer not available: %w", err)
			}

			opts := imaging.OptionsFromConfig(cfg)
			out := cmd.OutOrStdout()
			for _, arg := range args {
				if err := printOne(cmd.Context(), cfg.Paths.StagingDir, backend, opts, arg, out,
					time.Duration(cfg.Printer.PollSeconds)*time.Second,
					time.Duration(cfg.Printer.PollTimeoutSeconds)*time.Second); err != nil {
					return fmt.Errorf("print %s: %w", arg, err)
				}
			}
			return nil
		},
	}
}

func printOne(ctx context.Context, stagingDir string, backend printer.Backend, opts imaging.Options, sourcePath string, out io.Writer, pollInterval, pollTimeout time.Duration) error {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	artifact, err := imaging.Normalize(raw, opts)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(stagingDir, "oneshot-*"+artifact.Extension())
	if err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	artifactPath := tmp.Name()
	defer os.Remove(artifactPath)
	if _, err := tmp.Write(artifact.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}

	cardName := queue.DeriveCardName(sourcePath)
	jobID, err := backend.Submit(ctx, printer.SubmitRequest{FilePath: artifactPath, Title: cardName})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitted %s (job %s)\n", cardName, jobID)

	deadline := time.Now().Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = backend.Cancel(context.Background(), jobID)
			return ctx.Err()
		case <-ticker.C:
		}

		state, err := backend.Poll(ctx, jobID)
		if err != nil {
			return err
		}
		switch state {
		case printer.StateCompleted:
			fmt.Fprintf(out, "Completed %s\n", filepath.Base(sourcePath))
			return nil
		case printer.StateFailed:
			return fmt.Errorf("print job %s failed", jobID)
		}
		if time.Now().After(deadline) {
			_ = backend.Cancel(ctx, jobID)
			return fmt.Errorf("print job %s timed out", jobID)
		}
	}
}
