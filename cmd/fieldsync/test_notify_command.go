package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Publish a test event to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					if resp != nil && resp.Message != "" {
						fmt.Fprintln(cmd.ErrOrStderr(), resp.Message)
					}
					return fmt.Errorf("test notification: %w", err)
				}
				if resp == nil {
					return errors.New("daemon returned no notification result")
				}
				if done, err := emit(ctx, cmd, resp); done {
					return err
				}
				printNotifyResult(cmd, resp, notifyTopic(ctx))
				return nil
			})
		},
	}
}

// notifyTopic returns the topic from the CLI's config, which normally is
// the file the daemon was started with.
func notifyTopic(ctx *commandContext) string {
	cfg := ctx.configValue()
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Notifications.NtfyTopic)
}

func printNotifyResult(cmd *cobra.Command, resp *ipc.TestNotificationResponse, topic string) {
	out := cmd.OutOrStdout()
	if resp.Sent {
		if topic != "" {
			fmt.Fprintf(out, "Test notification sent to %s\n", topic)
			return
		}
		fmt.Fprintln(out, "Test notification sent")
		return
	}
	reason := valueOrDash(resp.Message)
	fmt.Fprintf(out, "Notification not sent: %s\n", reason)
	if topic == "" {
		fmt.Fprintln(out, "Set ntfy_topic under [notifications] and restart the daemon")
	}
}
