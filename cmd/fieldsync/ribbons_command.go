package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
)

func newRibbonsCommand(ctx *commandContext) *cobra.Command {
	ribbonsCmd := &cobra.Command{
		Use:   "ribbons",
		Short: "Review entities whose local edits were replaced by server changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRibbons(ctx, cmd)
		},
	}

	ribbonsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List undismissed ribbons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRibbons(ctx, cmd)
		},
	})
	ribbonsCmd.AddCommand(&cobra.Command{
		Use:   "dismiss <collection> <id>",
		Short: "Dismiss one ribbon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DismissRibbon(args[0], args[1])
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, resp); done {
					return err
				}
				if !resp.Dismissed {
					fmt.Fprintf(cmd.OutOrStdout(), "No ribbon on %s %s\n", args[0], args[1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dismissed ribbon on %s %s\n", args[0], args[1])
				return nil
			})
		},
	})

	return ribbonsCmd
}

func listRibbons(ctx *commandContext, cmd *cobra.Command) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Ribbons()
		if err != nil {
			return err
		}
		if done, err := emit(ctx, cmd, resp); done {
			return err
		}
		if len(resp.Ribbons) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No ribbons")
			return nil
		}
		rows := make([][]string, 0, len(resp.Ribbons))
		for _, ribbon := range resp.Ribbons {
			rows = append(rows, []string{displayLabel(ribbon.Collection), ribbon.ID, valueOrDash(ribbon.UpdatedBy), ribbon.UpdatedAt})
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable(
			textColumns("Collection", "ID", "Updated By", "Updated At"),
			rows,
			tableOptions{},
		))
		return nil
	})
}
