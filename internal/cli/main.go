package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/text2splat/internal/domain/failures"
)

type runFunc func(ctx context.Context, prompt string) error

// ViewsMain is the text-to-view entrypoint.
func ViewsMain() {
	execute(newRoot(
		"text-to-view <prompt...>",
		"Generate a short video for a prompt and save fixed frames to views/",
		runViews,
	))
}

// SplatMain is the text-to-3dgs entrypoint.
func SplatMain() {
	execute(newRoot(
		"text-to-3dgs <prompt...>",
		"Turn a prompt into a gaussian splat and open it in the viewer",
		runSplat,
	))
}

func newRoot(use, short string, run runFunc) *cobra.Command {
	root := &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		// Every word belongs to the prompt, dashes included; only a lone
		// -h/--help is treated as a flag.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			prompt, err := promptFromArgs(args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), prompt)
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true
	return root
}

// promptFromArgs joins args with spaces. A leading "--" separator is dropped.
func promptFromArgs(args []string) (string, error) {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: please provide a prompt", failures.ErrSetup)
	}
	return prompt, nil
}

func execute(root *cobra.Command) {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
