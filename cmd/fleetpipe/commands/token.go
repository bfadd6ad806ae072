package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/httpgateway"
)

func newTokenCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the provisioning API token",
	}
	cmd.AddCommand(newTokenSetCommand(opts))
	return cmd
}

func newTokenSetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the provisioning API token in the system keyring",
		Long:  "Set reads a bearer token from standard input and stores it under the configured keyring service and user.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				return errors.New("empty token")
			}
			if err := httpgateway.StoreToken(cfg.Gateway.KeyringService, cfg.Gateway.KeyringUser, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "token stored for %s/%s\n", cfg.Gateway.KeyringService, cfg.Gateway.KeyringUser)
			return nil
		},
	}
}
