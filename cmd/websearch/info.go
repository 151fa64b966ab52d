package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/websearch/internal/app"
	"github.com/FranksOps/websearch/internal/client"
	"github.com/FranksOps/websearch/internal/report"
	"github.com/FranksOps/websearch/internal/server"
)

func newInfoCmd(opts *rootOptions) *cobra.Command {
	var endpoint, format string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the service descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == report.FormatText {
				return fmt.Errorf("info supports json or yaml output")
			}

			var info server.Info
			if endpoint != "" {
				c, err := client.Dial(cmd.Context(), endpoint)
				if err != nil {
					return err
				}
				defer c.Close()
				if info, err = c.Info(cmd.Context()); err != nil {
					return err
				}
			} else {
				cfg, logger, err := opts.load(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				svc, err := app.Build(cfg, logger)
				if err != nil {
					return err
				}
				defer svc.Close()
				info = server.NewInfo(svc.Pipeline, version)
			}
			return report.Encode(cmd.OutOrStdout(), info, f)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "read search_info from a running server")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}
