package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"sidekick-relay/internal/logging"
	"sidekick-relay/internal/models"
	"sidekick-relay/internal/prompt"
)

const maxStdinContext = 1 << 20

type askOptions struct {
	action       string
	endpoint     string
	model        string
	systemPrompt string
	protocol     string
	imageFile    string
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: "Stream a single completion to stdout",
		Long: `Send one prompt to the backend and print the reply as it streams.
Text may start with a slash command such as /summarize or /eli5. When stdin is
not a terminal it is attached as page context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.action, "action", "a", string(prompt.ActionChat), "prompt action: chat, summarize, explain, professional, actionItems or twitterThread")
	f.StringVar(&opts.endpoint, "endpoint", "", "override backend endpoint base")
	f.StringVarP(&opts.model, "model", "m", "", "override backend model")
	f.StringVar(&opts.systemPrompt, "system", "", "override system prompt; pass an empty value to send none")
	f.StringVar(&opts.protocol, "protocol", "", "override wire protocol: chat or responses")
	f.StringVar(&opts.imageFile, "image", "", "file holding an image data URL to attach")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, text string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	in := prompt.Input{Action: prompt.Action(opts.action), Text: text}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxStdinContext))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		in.Context = string(data)
		in.ContextKind = prompt.ContextPage
	}

	desc := models.RequestDescriptor{
		EndpointBase: opts.endpoint,
		Model:        opts.model,
		Protocol:     models.Protocol(opts.protocol),
	}
	if opts.imageFile != "" {
		data, err := os.ReadFile(opts.imageFile)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		desc.ImageData = strings.TrimSpace(string(data))
		in.HasImage = true
	}

	composed, err := prompt.Compose(in)
	if err != nil {
		return err
	}
	desc.Prompt = composed.Prompt
	desc.IncludeHistory = composed.IncludeHistory
	desc = cfg.Backend.Apply(desc)
	var system *string
	if cmd.Flags().Changed("system") {
		system = &opts.systemPrompt
	}
	desc.SystemPrompt = cfg.Backend.SystemPromptOr(system)

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, err = oneShot(cmd.Context(), cfg, client, desc, out)
	fmt.Fprintln(out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
