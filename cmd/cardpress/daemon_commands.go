package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"cardpress/internal/ipc"
	"cardpress/internal/preflight"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the cardpress daemon",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonPauseCommand(ctx))
	daemonCmd.AddCommand(newDaemonResumeCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, stage, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := ctx.dialClient()
			if err != nil {
				renderOfflineStatus(cmd, ctx, colorize)
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			runningKind := statusError
			if status.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, fmt.Sprintf("pid %d", status.PID), colorize))
			pausedKind := statusOK
			pausedDetail := "intake active"
			if status.Paused {
				pausedKind = statusWarn
				pausedDetail = "intake paused"
			}
			fmt.Fprintln(stdout, renderStatusLine("Intake", pausedKind, pausedDetail, colorize))
			if status.LastError != "" {
				fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, health := range status.StageHealth {
				kind := statusError
				if health.Ready {
					kind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine(health.Name, kind, health.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			renderQueueStats(stdout, status.QueueStats)
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			renderDependencies(stdout, status.Dependencies, colorize)
			return nil
		},
	}
}

func renderOfflineStatus(cmd *cobra.Command, ctx *commandContext, colorize bool) {
	stdout := cmd.OutOrStdout()
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Running", statusError, "daemon is not running", colorize))
	fmt.Fprintln(stdout)

	cfg := ctx.configValue()
	if cfg == nil {
		return
	}

	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, result := range preflight.RunAll(cmd.Context(), cfg) {
		kind := statusError
		if result.Passed {
			kind = statusOK
		}
		fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	statuses := preflight.CheckSystemDeps(cfg)
	converted := make([]ipc.DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		converted = append(converted, ipc.DependencyStatus{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	renderDependencies(stdout, converted, colorize)
}

func renderQueueStats(out io.Writer, stats map[string]int) {
	if len(stats) == 0 {
		fmt.Fprintln(out, statusIndent+"Queue is empty")
		return
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%d", stats[name])})
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func renderDependencies(out io.Writer, dependencies []ipc.DependencyStatus, colorize bool) {
	if len(dependencies) == 0 {
		fmt.Fprintln(out, statusIndent+"No external dependencies configured")
		return
	}
	for _, dep := range dependencies {
		kind := statusError
		detail := dep.Detail
		switch {
		case dep.Available:
			kind = statusOK
			detail = dep.Command
		case dep.Optional:
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(ctx.socketPath()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stop requested")
				}
				return nil
			})
		},
	}
}

func newDaemonPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause intake of new card images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Intake paused: %s\n", yesNo(resp.Paused))
				return nil
			})
		},
	}
}

func newDaemonResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume intake of new card images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Intake paused: %s\n", yesNo(resp.Paused))
				return nil
			})
		},
	}
}
