package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask the daemon to deliver queued items now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, resp); done {
					return err
				}
				if !resp.Triggered {
					return fmt.Errorf("sync not started: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Manual sync requested")
				return nil
			})
		},
	}
}
