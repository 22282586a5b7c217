package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"sidekick-relay/internal/config"
)

type rootOptions struct {
	configPath string
}

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sidekick-relay",
		Short: "Local bridge relaying chat prompts to an OpenAI-compatible server",
		Long: `sidekick-relay streams completions from a local OpenAI-compatible server
(chat completions or responses API) and fans the deltas out to subscribers
over server-sent events and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newProbeCmd(opts),
	)
	return root
}

// loadConfig reads the configured file, or falls back to defaults when no
// path was given.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(o.configPath)
}
