package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/api"
	"fieldsync/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.dialClient()
			if err != nil {
				return renderOfflineStatus(ctx, cmd, err)
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if done, err := emit(ctx, cmd, status); done {
				return err
			}
			renderDaemonStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
}

// renderOfflineStatus reports the daemon as down and shows queue counts read
// from the local store.
func renderOfflineStatus(ctx *commandContext, cmd *cobra.Command, dialErr error) error {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	return ctx.withQueue(func(q queueAPI) error {
		stats, err := q.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if done, err := emit(ctx, cmd, map[string]any{"running": false, "queueStats": stats}); done {
			return err
		}
		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, dialErr.Error(), colorize))
		fmt.Fprintln(stdout)
		renderQueueSection(stdout, stats, colorize)
		return nil
	})
}

func renderDaemonStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonKind, daemonMsg := statusWarn, "stopped"
	if status.Running {
		daemonKind, daemonMsg = statusOK, "running (pid "+strconv.Itoa(status.PID)+")"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))

	if status.StoreAvailable {
		fmt.Fprintln(out, renderStatusLine("Local store", statusOK, status.DatabasePath, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Local store", statusError, "degraded: "+status.StoreReason, colorize))
	}

	remote := status.RemoteURL
	if remote == "" {
		remote = "not configured"
	}
	fmt.Fprintln(out, renderStatusLine("Remote", statusInfo, remote, colorize))
	fmt.Fprintln(out, renderStatusLine("Connectivity", connectivityKind(status.Connectivity.State), connectivityDetail(status.Connectivity), colorize))
	fmt.Fprintln(out, renderStatusLine("Sync", boolKind(status.Workflow.Running), fmt.Sprintf("running=%s listeners=%d background=%s",
		yesNo(status.Workflow.Running), status.Workflow.Listeners, yesNo(status.Workflow.BackgroundSync)), colorize))
	if status.Workflow.LastEvent != nil {
		fmt.Fprintln(out, renderStatusLine("Last event", statusInfo, string(status.Workflow.LastEvent.Type)+" at "+status.Workflow.LastEventAt, colorize))
	}
	if len(status.ArmedTags) > 0 {
		fmt.Fprintln(out, renderStatusLine("Armed tags", statusInfo, strings.Join(status.ArmedTags, ", "), colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Worker", colorize) {
		fmt.Fprintln(out, line)
	}
	worker := status.Worker
	fmt.Fprintln(out, renderStatusLine("Worker", boolKind(worker.Running), fmt.Sprintf("%d pass(es), last trigger %s", worker.Passes, valueOrDash(worker.LastTrigger)), colorize))
	fmt.Fprintln(out, renderStatusLine("Last pass", statusInfo, fmt.Sprintf("processed=%d succeeded=%d failed=%d deferred=%d",
		worker.Processed, worker.Succeeded, worker.Failed, worker.Deferred), colorize))
	fmt.Fprintln(out)

	if len(status.Preflight) > 0 {
		for _, line := range renderSectionHeader("Checks", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, result := range status.Preflight {
			kind := statusOK
			if !result.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	renderQueueSection(out, status.Workflow.QueueStats, colorize)
}

func renderQueueSection(out io.Writer, stats map[string]map[string]int, colorize bool) {
	for _, line := range renderSectionHeader("Queues", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildQueueStatusRows(stats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queues are empty")
		return
	}
	fmt.Fprint(out, renderQueueStatusTable(rows))
}

func connectivityKind(state string) statusKind {
	switch state {
	case "online":
		return statusOK
	case "offline":
		return statusWarn
	default:
		return statusInfo
	}
}

func connectivityDetail(c api.ConnectivityStatus) string {
	detail := c.State
	if c.ChangedAt != "" {
		detail += " since " + c.ChangedAt
	}
	if c.LastError != "" {
		detail += " (" + c.LastError + ")"
	}
	return detail
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusWarn
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
