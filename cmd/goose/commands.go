package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tlongwell-block/goose/internal/agent"
	"github.com/tlongwell-block/goose/internal/config"
	"github.com/tlongwell-block/goose/internal/extensions"
	"github.com/tlongwell-block/goose/internal/permissions"
	"github.com/tlongwell-block/goose/internal/providers"
	"github.com/tlongwell-block/goose/internal/scheduler"
	"github.com/tlongwell-block/goose/internal/sessions"
	"github.com/tlongwell-block/goose/pkg/models"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send one message and stream the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return errors.New("--message is required")
			}

			ctx := cmd.Context()
			ag, _, cleanup, err := buildAgent(ctx, opts, false)
			if err != nil {
				return err
			}
			defer cleanup()

			initial := []models.Message{models.NewUserMessage().WithText(message)}
			events, err := ag.Reply(ctx, initial, nil)
			if err != nil {
				return err
			}
			return printEvents(events)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "user message")
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run in server mode with the scheduler attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, sched, cleanup, err := buildAgent(ctx, opts, true)
			if err != nil {
				return err
			}
			defer cleanup()

			sched.Start()
			defer sched.Stop()

			fmt.Fprintln(os.Stderr, "goose server running; press ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}
}

// buildAgent wires the agent from flags and the optional config file.
func buildAgent(ctx context.Context, opts *rootOptions, withScheduler bool) (*agent.Agent, *scheduler.CronScheduler, func(), error) {
	var fileCfg config.File
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, nil, nil, err
		}
		fileCfg = *loaded
	}

	provider, err := buildProvider(opts)
	if err != nil {
		return nil, nil, nil, err
	}

	ag := agent.New()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if fileCfg.PermissionStore != "" {
		pm, err := permissions.NewSQLiteManager(fileCfg.PermissionStore)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { pm.Close() })
		ag.SetPermissionManager(pm)
	}

	var sessionStore sessions.Store = sessions.NewMemoryStore()
	if fileCfg.SessionStore != "" {
		store, err := sessions.NewSQLiteStore(fileCfg.SessionStore)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { store.Close() })
		sessionStore = store
	}
	ag.SetSessionStore(sessionStore)

	if fileCfg.ExtensionRegistry != "" {
		registry := extensions.NewConfigManager()
		if err := registry.LoadFile(fileCfg.ExtensionRegistry); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		ag.SetExtensionRegistry(registry)

		watcher, err := config.Watch(fileCfg.ExtensionRegistry, func() {
			if err := registry.LoadFile(fileCfg.ExtensionRegistry); err != nil {
				fmt.Fprintln(os.Stderr, "failed to reload extension registry:", err)
			}
		}, nil)
		if err == nil {
			closers = append(closers, func() { watcher.Close() })
		}
	}

	if fileCfg.MaxToolRepetitions > 0 {
		max := fileCfg.MaxToolRepetitions
		ag.ConfigureToolMonitor(&max)
	}

	if err := ag.UpdateProvider(ctx, provider); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	var sched *scheduler.CronScheduler
	if withScheduler {
		runner := scheduler.RecipeRunnerFunc(func(ctx context.Context, job scheduler.ScheduledJob, sessionID string) error {
			recipe, err := scheduler.LoadRecipe(job.Source)
			if err != nil {
				return err
			}
			prompt := recipe.Prompt
			if prompt == "" {
				prompt = recipe.Instructions
			}
			initial := []models.Message{models.NewUserMessage().WithText(prompt)}
			events, err := ag.Reply(ctx, initial, &agent.SessionConfig{ID: sessionID, ScheduleID: job.ID})
			if err != nil {
				return err
			}
			for range events {
				// Scheduled runs are headless; drain the stream.
			}
			return nil
		})
		sched = scheduler.NewCronScheduler(runner, sessionStore)
		ag.SetScheduler(sched)
	}

	return ag, sched, cleanup, nil
}

func buildProvider(opts *rootOptions) (providers.Provider, error) {
	switch opts.provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  opts.model,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  opts.model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", opts.provider)
	}
}

func printEvents(events <-chan models.AgentEvent) error {
	for ev := range events {
		switch ev.Type {
		case models.AgentEventMessage:
			for _, part := range ev.Message.Content {
				switch {
				case part.Text != nil:
					fmt.Println(part.Text.Text)
				case part.ToolRequest != nil:
					fmt.Printf("[tool call] %s\n", part.ToolRequest.ToolCall.Name)
				case part.ToolResponse != nil:
					if part.ToolResponse.IsError {
						fmt.Printf("[tool error] %s\n", part.ToolResponse.Error)
					} else {
						fmt.Printf("[tool result] %s\n", models.ConcatText(part.ToolResponse.Content))
					}
				case part.ToolConfirmationRequest != nil:
					fmt.Printf("[approval needed] %s\n", part.ToolConfirmationRequest.ToolName)
				}
			}
		case models.AgentEventMcpNotification:
			fmt.Printf("[notification] %s\n", ev.Notification.Message.Method)
		}
	}
	return nil
}
