package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetshift/fleetshift-pipeline/internal/config"
	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

func newValidateCommand(opts *globalOptions) *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every component of a deployment request",
		Long: `Validate assigns an identity to every component and asks the provisioning
backend whether it would accept the component's input. Nothing is deployed
and nothing is persisted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := config.LoadRequest(requestPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.service.Validate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return ErrComponentsFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestPath, "file", "f", "", "deployment request (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeployCommand(opts *globalOptions) *cobra.Command {
	var (
		requestPath    string
		skipValidation bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Validate and roll out a deployment request",
		Long: `Deploy validates the request, then drives each component through its
lifecycle in dependency order. The final state of every component is printed
as JSON; the command exits non-zero if any component failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := config.LoadRequest(requestPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()
			a.service.SkipValidation = skipValidation

			out, err := a.service.Deploy(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.metrics.ObserveState(out.State)

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Deployment.State != domain.DeploymentStateCompleted {
				return ErrComponentsFailed
			}
			for _, c := range out.State.Components {
				if c.Failure != nil {
					return ErrComponentsFailed
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestPath, "file", "f", "", "deployment request (YAML or JSON)")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "deploy without validating first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <deployment-id>",
		Short: "Show a deployment and its component records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			id := domain.DeploymentID(args[0])
			dep, err := a.service.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("deployment %s: %w", id, err)
			}
			records, err := a.service.ComponentRecords(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Deployment domain.Deployment        `json:"deployment"`
				Components []domain.ComponentRecord `json:"components"`
			}{dep, records})
		},
	}
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			deps, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), deps)
		},
	}
}
