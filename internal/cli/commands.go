package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mavrk/pilot/internal/agent"
	"github.com/mavrk/pilot/internal/config"
	"github.com/mavrk/pilot/internal/cost"
	"github.com/mavrk/pilot/internal/providers"
	"github.com/mavrk/pilot/internal/state"
	"github.com/mavrk/pilot/internal/task"
	"github.com/mavrk/pilot/internal/web"
)

const stateFile = "pilot.db"

// NewRootCmd builds the command tree. The bare command starts the
// interactive prompt; subcommands cover credentials and configuration.
func NewRootCmd() *cobra.Command {
	var flags agent.Flags

	root := &cobra.Command{
		Use:          "pilot",
		Short:        "Interactive coding agent for your project directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(flags)
		},
	}
	root.Flags().BoolVar(&flags.Plan, "plan", false, "only generate plans, do not apply changes")
	root.Flags().BoolVarP(&flags.Yes, "yes", "y", false, "auto-apply changes and commands")
	root.Flags().BoolVar(&flags.Fast, "fast", false, "fast mode (skip post-apply review)")

	root.AddCommand(NewAuthCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewModelsCmd())
	root.AddCommand(NewSessionCmd())
	root.AddCommand(NewStatsCmd())
	return root
}

func runREPL(flags agent.Flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// SIGTERM tears the whole process down. Ctrl-C is handled per turn
	// inside the REPL so it only aborts the in-flight model call.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	stopWatch, err := config.Watch(ctx, cfg, func(err error) {
		fmt.Fprintln(os.Stderr, "config reload:", err)
	})
	if err == nil {
		defer stopWatch()
	}

	store, err := state.Open(stateFile)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	console := NewConsole(os.Stdout, os.Stdin)
	stats := cost.NewStats()
	debug := agent.NewDebugRing(50)

	factory := func(name string) (providers.Provider, error) {
		return providers.New(name, providers.Options(cfg.Provider(name)))
	}
	builder := task.NewBuilder(".", store)
	loop := agent.NewLoop(cfg, factory, builder, store, web.NewClient(), stats, debug, console)

	printBanner(ctx, console, cfg, store)

	if cfg.AutoReload() {
		restored, err := store.Restore(ctx)
		if err != nil {
			console.Warn("Snapshot restore failed: " + err.Error())
		} else if restored {
			console.Notice("Restored previous session snapshot.")
		}
	}

	repl := NewREPL(cfg, store, stats, debug, loop, console, flags)
	repl.Run(ctx)
	return nil
}

func printBanner(ctx context.Context, console *Console, cfg *config.Config, store *state.Store) {
	session, err := store.ActiveSession(ctx)
	if err != nil {
		session = state.DefaultSession
	}
	console.panel("Ready", fmt.Sprintf(
		"pilot | Provider: %s | Session: %s\nSupport: Voice, Newlines, History, Debug",
		cfg.ActiveProvider(), session))
}

// NewAuthCmd manages stored API credentials.
func NewAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			if !knownProvider(name) {
				return fmt.Errorf("unknown provider %q (want one of %s)", name, strings.Join(providers.Names(), ", "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key for %s: ", name)
			var key string
			if _, err := fmt.Fscanln(cmd.InOrStdin(), &key); err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			if err := providers.StoreCredential(name, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s.\n", name)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show which providers have a stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range providers.Names() {
				status := "not set"
				if key, err := providers.LoadCredential(name); err == nil && key != "" {
					status = "configured"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, status)
			}
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <provider>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			if err := providers.DeleteCredential(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed credential for %s.\n", name)
			return nil
		},
	}

	authCmd.AddCommand(setCmd, listCmd, removeCmd)
	return authCmd
}

// NewModelsCmd prints the provider table: configured model (or the backend
// default) and whether a credential is stored.
func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List providers, configured models and credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			active := cfg.ActiveProvider()
			for _, name := range providers.Names() {
				model := cfg.Provider(name).Model
				if model == "" {
					model = "(default)"
				}
				cred := "no key"
				if key, err := providers.LoadCredential(name); err == nil && key != "" {
					cred = "key set"
				}
				marker := " "
				if name == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s %-40s %s\n", marker, name, model, cred)
			}
			return nil
		},
	}
}

// NewSessionCmd manages named sessions without entering the prompt.
func NewSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	withStore := func(fn func(ctx context.Context, store *state.Store, out *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(stateFile)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()
			return fn(cmd.Context(), store, cmd, args)
		}
	}

	sessionCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions (active marked with *)",
			RunE: withStore(func(ctx context.Context, store *state.Store, cmd *cobra.Command, args []string) error {
				names, err := store.Sessions(ctx)
				if err != nil {
					return err
				}
				active, _ := store.ActiveSession(ctx)
				for _, name := range names {
					marker := " "
					if name == active {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "new <name>",
			Short: "Create a session and switch to it",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(ctx context.Context, store *state.Store, cmd *cobra.Command, args []string) error {
				return store.SetActiveSession(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a session and its history",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(ctx context.Context, store *state.Store, cmd *cobra.Command, args []string) error {
				return store.DeleteSession(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "rename <old> <new>",
			Short: "Rename a session",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(func(ctx context.Context, store *state.Store, cmd *cobra.Command, args []string) error {
				return store.RenameSession(ctx, args[0], args[1])
			}),
		},
	)
	return sessionCmd
}

// NewStatsCmd summarizes the stored history per session. Token and cost
// counters live for one process only, so outside the prompt the useful
// numbers are turn counts.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-session turn counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(stateFile)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			names, err := store.Sessions(ctx)
			if err != nil {
				return err
			}
			active, _ := store.ActiveSession(ctx)
			for _, name := range names {
				n, err := store.EntryCount(ctx, name)
				if err != nil {
					return err
				}
				marker := " "
				if name == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %d entries\n", marker, name, n)
			}
			return nil
		},
	}
}

// NewConfigCmd opens the interactive settings form.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Edit provider models and endpoints interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return config.RunConfigForm(cfg)
		},
	}
}
