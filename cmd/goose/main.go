// Command goose runs the agent from the terminal: one-shot replies and a
// server mode with the scheduler attached.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "goose",
		Short: "LLM agent with pluggable tool extensions",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "anthropic", "LLM provider (anthropic or openai)")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "model id override")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newServeCommand(opts))
	return root
}

type rootOptions struct {
	configPath string
	provider   string
	model      string
	verbose    bool
}
