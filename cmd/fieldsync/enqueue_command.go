package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/internal/api"
	"fieldsync/internal/config"
	"fieldsync/internal/ipc"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var payload string
	var payloadFile string
	var blobFile string
	var metadata string

	cmd := &cobra.Command{
		Use:   "enqueue <kind>",
		Short: "Queue a form, image or signature for delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildEnqueueRequest(payload, payloadFile, blobFile, metadata)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(ipc.EnqueueRequest{Kind: args[0], EnqueueRequest: req})
				if err != nil {
					return err
				}
				if done, err := emit(ctx, cmd, resp); done {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Durable || resp.Item == nil {
					fmt.Fprintln(out, "Local store unavailable; item was not persisted")
					return nil
				}
				fmt.Fprintf(out, "Queued %s #%d\n", resp.Item.Store, resp.Item.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the JSON payload from a file")
	cmd.Flags().StringVar(&blobFile, "blob-file", "", "Binary content (image or signature) to attach")
	cmd.Flags().StringVar(&metadata, "metadata", "", "JSON metadata")
	return cmd
}

func buildEnqueueRequest(payload, payloadFile, blobFile, metadata string) (api.EnqueueRequest, error) {
	var req api.EnqueueRequest
	if payload != "" && payloadFile != "" {
		return req, errors.New("use either --payload or --payload-file, not both")
	}
	if path := strings.TrimSpace(payloadFile); path != "" {
		data, err := readInputFile(path)
		if err != nil {
			return req, fmt.Errorf("read payload: %w", err)
		}
		payload = string(data)
	}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return req, errors.New("payload must be valid JSON")
		}
		req.Payload = json.RawMessage(payload)
	}
	if metadata != "" {
		if !json.Valid([]byte(metadata)) {
			return req, errors.New("metadata must be valid JSON")
		}
		req.Metadata = json.RawMessage(metadata)
	}
	if path := strings.TrimSpace(blobFile); path != "" {
		data, err := readInputFile(path)
		if err != nil {
			return req, fmt.Errorf("read blob: %w", err)
		}
		req.Blob = data
	}
	if len(req.Payload) == 0 && len(req.Blob) == 0 {
		return req, errors.New("a payload or blob is required")
	}
	return req, nil
}

func readInputFile(path string) ([]byte, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(expanded)
}
