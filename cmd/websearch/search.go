package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/websearch/internal/app"
	"github.com/FranksOps/websearch/internal/client"
	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/report"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		numResults int
		format     string
		endpoint   string
	)

	cmd := &cobra.Command{
		Use:   "search <topic...>",
		Short: "Run one search and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			topic := strings.Join(args, " ")

			var n *int
			if cmd.Flags().Changed("num-results") {
				n = &numResults
			}

			var out pipeline.Outcome
			if endpoint != "" {
				out, err = searchRemote(cmd.Context(), endpoint, topic, n)
			} else {
				out, err = searchLocal(cmd.Context(), opts, cmd, topic, n)
			}
			if err != nil {
				return err
			}
			return report.WriteOutcome(cmd.OutOrStdout(), out, f)
		},
	}

	cmd.Flags().IntVarP(&numResults, "num-results", "n", pipeline.DefaultResults, "maximum number of results")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "call search_web on a running server (e.g. http://localhost:8001/mcp)")
	return cmd
}

func searchLocal(ctx context.Context, opts *rootOptions, cmd *cobra.Command, topic string, n *int) (pipeline.Outcome, error) {
	cfg, logger, err := opts.load(cmd.ErrOrStderr())
	if err != nil {
		return pipeline.Outcome{}, err
	}
	svc, err := app.Build(cfg, logger)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	defer svc.Close()
	return svc.Pipeline.Execute(ctx, pipeline.Request{Topic: topic, NumResults: n}), nil
}

func searchRemote(ctx context.Context, endpoint, topic string, n *int) (pipeline.Outcome, error) {
	c, err := client.Dial(ctx, endpoint)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	defer c.Close()
	return c.SearchOutcome(ctx, topic, n)
}
