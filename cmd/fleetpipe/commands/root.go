// Package commands implements the fleetpipe CLI.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ErrComponentsFailed is returned when a command completed but at least
// one component failed; the details have already been printed.
var ErrComponentsFailed = errors.New("one or more components failed")

type globalOptions struct {
	configPath  string
	engine      string
	gateway     string
	logLevel    string
	logFormat   string
	metricsAddr string
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit string) error {
	return newRootCommand(version, commit).ExecuteContext(ctx)
}

func newRootCommand(version, commit string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "fleetpipe",
		Short: "Validate and roll out multi-component deployments",
		Long: `fleetpipe validates every component of a deployment request against the
provisioning backend, then deploys the components one by one, feeding the
outputs of deployed components into the inputs of the ones that follow.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.StringVar(&opts.engine, "engine", "", "workflow engine: sync, goworkflows or dbos")
	flags.StringVar(&opts.gateway, "gateway", "", "provisioning gateway: sim or http")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: json or console")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newDeployCommand(opts))
	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newTokenCommand(opts))

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
