package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sidekick-relay/internal/models"
)

const (
	probePrompt  = "Hello! Please respond with a brief greeting."
	probeTimeout = 2 * time.Minute
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	var (
		endpoint   string
		model      string
		skipModels bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Test the backend connection",
		Long: `List the backend's models, then stream a short greeting from the configured
model to confirm completions work end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			desc := cfg.Backend.Apply(models.RequestDescriptor{
				EndpointBase: endpoint,
				Model:        model,
				Prompt:       probePrompt,
			})

			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()
			out := cmd.OutOrStdout()

			if !skipModels {
				list, err := client.ListModels(ctx, desc.EndpointBase)
				if err != nil {
					fmt.Fprintf(out, "Model listing failed: %v\n", err)
				} else {
					fmt.Fprintf(out, "Models at %s:\n", desc.EndpointBase)
					for _, m := range list {
						fmt.Fprintf(out, "  %s\n", m.ID)
					}
				}
			}

			fmt.Fprintf(out, "Testing %s with model %s...\n", desc.EndpointBase, desc.Model)
			text, err := oneShot(ctx, cfg, client, desc, out)
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			if text == "" {
				fmt.Fprintln(out, "Connection successful, but the model returned no content.")
				return nil
			}
			fmt.Fprintln(out, "Connection successful!")
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "override backend endpoint base")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override backend model")
	cmd.Flags().BoolVar(&skipModels, "skip-models", false, "do not list backend models first")
	return cmd
}
