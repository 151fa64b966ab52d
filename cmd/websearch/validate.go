package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/websearch/internal/app"
	"github.com/FranksOps/websearch/internal/client"
	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/report"
	"github.com/FranksOps/websearch/internal/validate"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		endpoint    string
		out         string
		format      string
		interval    time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "validate [topic...]",
		Short: "Check search quality over a set of topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			topics := args
			if len(topics) == 0 {
				topics = validate.DefaultTopics
			}

			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var search validate.SearchFunc
			if endpoint != "" {
				c, err := client.Dial(cmd.Context(), endpoint)
				if err != nil {
					return err
				}
				defer c.Close()
				search = func(ctx context.Context, topic string) ([]byte, error) {
					return c.Search(ctx, topic, nil)
				}
			} else {
				svc, err := app.Build(cfg, logger)
				if err != nil {
					return err
				}
				defer svc.Close()
				search = func(ctx context.Context, topic string) ([]byte, error) {
					return json.Marshal(svc.Pipeline.Execute(ctx, pipeline.Request{Topic: topic}))
				}
			}

			runner := &validate.Runner{
				Search:      search,
				Interval:    interval,
				Concurrency: concurrency,
				Logger:      logger,
			}
			reports, err := runner.Run(cmd.Context(), topics)
			if err != nil {
				return err
			}

			if out != "" {
				if err := report.WriteValidationFile(out, reports); err != nil {
					return err
				}
				logger.Info("validation report saved", "path", out)
			}
			if err := report.WriteValidation(cmd.OutOrStdout(), reports, f); err != nil {
				return err
			}

			if s := report.Summarize(reports); s.Failed > 0 {
				return fmt.Errorf("validation failed for %d of %d topics", s.Failed, s.Topics)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "validate a running server instead of the local pipeline")
	cmd.Flags().StringVar(&out, "out", "validation_report.json", "write the JSON report here (empty disables)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "pause between the start of consecutive searches")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "searches in flight")
	return cmd
}
