// Command websearch serves web search as an MCP tool and offers CLI access to
// the same pipeline.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FranksOps/websearch/internal/app"
	"github.com/FranksOps/websearch/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.1.0"

type rootOptions struct {
	configPath string
}

// load reads the configuration and builds a logger writing to w.
func (o *rootOptions) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg.Log, w), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "websearch",
		Short:         "Web search exposed as an MCP tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./websearch.yaml, or $WEBSEARCH_CONFIG)")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newValidateCmd(opts),
		newInfoCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "websearch: %v\n", err)
		os.Exit(1)
	}
}
