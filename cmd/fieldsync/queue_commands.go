package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/api"
	"fieldsync/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the outbound queues",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueDiscardCommand(ctx))
	queueCmd.AddCommand(newQueueClearFailedCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show item counts per queue and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, stats); done {
					return err
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queues are empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderQueueStatusTable(rows))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				items, err := q.List(cmd.Context(), kinds, statuses)
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, api.QueueListResponse{Items: items}); done {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]column{
						{title: "Store"},
						{title: "ID", count: true},
						{title: "Status"},
						{title: "Retries", count: true},
						{title: "Next Attempt"},
						{title: "Last Error"},
					},
					buildQueueListRows(items),
					tableOptions{},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Filter by queue (form, image, signature)")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (queued, sending, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <kind> [id...]",
		Short: "Requeue failed items; all failed items of the queue when no ids are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return ctx.withQueue(func(q queueAPI) error {
				result, err := q.Retry(cmd.Context(), args[0], ids)
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, result); done {
					return err
				}
				printItemsResult(cmd, result, "retried")
				return nil
			})
		},
	}
}

func newQueueDiscardCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "discard <kind> <id...>",
		Short: "Delete queue items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return ctx.withQueue(func(q queueAPI) error {
				result, err := q.Discard(cmd.Context(), args[0], ids, force)
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, result); done {
					return err
				}
				printItemsResult(cmd, result, "discarded")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard items even while they are being sent")
	return cmd
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove permanently failed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				removed, err := q.ClearFailed(cmd.Context(), kinds)
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, map[string]int64{"removed": removed}); done {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed item(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Limit to these queues (form, image, signature)")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printItemsResult(cmd *cobra.Command, result api.ItemsResult, verb string) {
	out := cmd.OutOrStdout()
	if len(result.Items) == 0 {
		fmt.Fprintf(out, "%d item(s) %s\n", result.UpdatedCount, verb)
		return
	}
	for _, item := range result.Items {
		switch item.Outcome {
		case api.ItemRetried, api.ItemDiscarded:
			fmt.Fprintf(out, "Item %d %s\n", item.ID, verb)
		case api.ItemNotFound:
			fmt.Fprintf(out, "Item %d not found\n", item.ID)
		case api.ItemNotFailed:
			fmt.Fprintf(out, "Item %d is %s, not failed\n", item.ID, item.PriorStatus)
		case api.ItemSending:
			fmt.Fprintf(out, "Item %d is being sent; use --force to discard it anyway\n", item.ID)
		}
	}
}

func buildQueueStatusRows(stats map[string]map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	total := 0
	for _, name := range api.SortedStores(stats) {
		counts := stats[name]
		row := []string{displayLabel(name)}
		for _, status := range store.AllStatuses() {
			count := counts[string(status)]
			total += count
			row = append(row, strconv.Itoa(count))
		}
		rows = append(rows, row)
	}
	if total == 0 {
		return nil
	}
	return rows
}

func renderQueueStatusTable(rows [][]string) string {
	cols := []column{{title: "Queue"}}
	for _, status := range store.AllStatuses() {
		cols = append(cols, column{title: displayLabel(string(status)), count: true})
	}
	return renderTable(cols, rows, tableOptions{totals: true})
}

func buildQueueListRows(items []api.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		next := "-"
		if item.Status == string(store.StatusQueued) && item.NextAttemptAt != "" {
			next = item.NextAttemptAt
		}
		lastErr := strings.TrimSpace(item.LastError)
		if lastErr == "" {
			lastErr = "-"
		}
		rows = append(rows, []string{
			item.Store,
			strconv.FormatInt(item.ID, 10),
			displayLabel(item.Status),
			strconv.Itoa(item.RetryCount),
			next,
			truncate(lastErr, 60),
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
