package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <collection>",
		Short: "Pull server copies of tasks or notifications into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Refresh(args[0])
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, resp); done {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d fetched, %d overwritten, %d kept local, %d skipped\n",
					resp.Collection, resp.Fetched, resp.Overwritten, resp.KeptLocal, resp.Skipped)
				return nil
			})
		},
	}
}
