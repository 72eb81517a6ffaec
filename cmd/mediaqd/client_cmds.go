package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/mediaq/client"
	"github.com/xraph/mediaq/job"
)

func (o *rootOptions) client(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	logger, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	opts = append([]client.Option{client.WithLogger(logger)}, opts...)
	return client.New(o.server, opts...), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSubmitCmd(root *rootOptions) *cobra.Command {
	var kind, file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a media file and queue it for processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			c, err := root.client(cmd)
			if err != nil {
				return err
			}
			ack, err := c.Submit(cmd.Context(), job.Kind(kind), filepath.Base(file), data)
			if err != nil {
				return err
			}
			return printJSON(cmd, ack)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(job.KindAudio), "job kind: audio or video")
	cmd.Flags().StringVar(&file, "file", "", "media file to upload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	var result bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job, or its result with --result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client(cmd)
			if err != nil {
				return err
			}
			if result {
				raw, err := c.Result(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, raw)
			}
			j, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, j)
		},
	}
	cmd.Flags().BoolVar(&result, "result", false, "print the job result instead of its state")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored transcriptions and videos against a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client(cmd)
			if err != nil {
				return err
			}
			results, err := c.Search(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum results, 0 for the server default")
	return cmd
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream progress of a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client(cmd, client.WithFormat(format), client.WithReconnect(5, time.Second))
			if err != nil {
				return err
			}
			events, err := c.Watch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for evt := range events {
				d := evt.Data
				switch {
				case d.Error != "" && d.Status == "":
					return fmt.Errorf("watch %s: %s", args[0], d.Error)
				case d.Error != "":
					fmt.Fprintf(out, "%-9s %3d%% attempt %d/%d  %s (%s)\n", d.Status, d.Progress, d.Attempt, d.MaxAttempts, d.Message, d.Error)
				default:
					fmt.Fprintf(out, "%-9s %3d%% attempt %d/%d  %s\n", d.Status, d.Progress, d.Attempt, d.MaxAttempts, d.Message)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "stream format: json or msgpack")
	return cmd
}
