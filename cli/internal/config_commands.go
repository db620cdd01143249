package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodpro/prodpro/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration and contexts",
		Long:  `Manage API endpoints and session settings as named contexts, similar to kubectl contexts.`,
	}

	cmd.AddCommand(newCurrentContextCommand())
	cmd.AddCommand(newUseContextCommand())
	cmd.AddCommand(newListContextsCommand())
	cmd.AddCommand(newSetContextCommand())
	cmd.AddCommand(newDeleteContextCommand())
	cmd.AddCommand(newConfigViewCommand())

	return cmd
}

func newCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Display the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), getCliContext(cmd).Config.CurrentContext)
			return nil
		},
	}
}

func newUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context CONTEXT_NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)

			if err := cliCtx.Config.SetCurrentContext(args[0]); err != nil {
				return err
			}
			if err := config.Save(cliCtx.ConfigPath, cliCtx.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", args[0])
			return nil
		},
	}
}

func newListContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list-contexts",
		Aliases: []string{"get-contexts"},
		Short:   "List all available contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCliContext(cmd).Config
			out := cmd.OutOrStdout()

			if len(cfg.Contexts) == 0 {
				fmt.Fprintln(out, "No contexts configured")
				return nil
			}

			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CURRENT\tNAME\tAPI URL\tSESSION")

			for _, name := range names {
				ctx := cfg.Contexts[name]
				current := " "
				if name == cfg.CurrentContext {
					current = "*"
				}
				backend := ctx.Session.Backend
				if backend == "" {
					backend = config.BackendFile
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, ctx.APIURL, backend)
			}
			return w.Flush()
		},
	}
}

func newSetContextCommand() *cobra.Command {
	var (
		apiURL             string
		backend            string
		sessionFile        string
		redisAddr          string
		redisPrefix        string
		refreshTimeout     time.Duration
		requestTimeout     time.Duration
		pollInterval       time.Duration
		independentRefresh bool
		theme              string
	)

	cmd := &cobra.Command{
		Use:   "set-context CONTEXT_NAME",
		Short: "Add or update a context",
		Long: `Add a context, or update the given fields of an existing one.

Examples:
  prodpro config set-context prod --api-url https://prod.example.com
  prodpro config set-context shared --api-url line7.example.com --session-backend redis --redis-addr localhost:6379`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)
			name := args[0]

			ctx := &config.Context{}
			if existing, ok := cliCtx.Config.Contexts[name]; ok {
				copied := *existing
				ctx = &copied
			}

			flags := cmd.Flags()
			if flags.Changed("api-url") {
				if _, err := config.NormalizeBaseURL(apiURL); err != nil {
					return err
				}
				ctx.APIURL = apiURL
			}
			if flags.Changed("session-backend") {
				ctx.Session.Backend = backend
			}
			if flags.Changed("session-file") {
				ctx.Session.File = sessionFile
			}
			if flags.Changed("redis-addr") {
				ctx.Session.RedisAddr = redisAddr
			}
			if flags.Changed("redis-prefix") {
				ctx.Session.RedisPrefix = redisPrefix
			}
			if flags.Changed("refresh-timeout") {
				ctx.RefreshTimeout = refreshTimeout
			}
			if flags.Changed("request-timeout") {
				ctx.RequestTimeout = requestTimeout
			}
			if flags.Changed("poll-interval") {
				ctx.PollInterval = pollInterval
			}
			if flags.Changed("independent-refresh") {
				ctx.IndependentRefresh = independentRefresh
			}
			if flags.Changed("theme") || ctx.Rendering.Theme == "" {
				ctx.Rendering.Theme = theme
			}

			if err := cliCtx.Config.SetContext(name, ctx); err != nil {
				return err
			}
			if err := config.Save(cliCtx.ConfigPath, cliCtx.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q added/updated\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "API location (full URL or bare hostname)")
	cmd.Flags().StringVar(&backend, "session-backend", config.BackendFile, "Session store (file, redis)")
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Credentials file for the file backend")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the redis backend")
	cmd.Flags().StringVar(&redisPrefix, "redis-prefix", "", "Redis key prefix")
	cmd.Flags().DurationVar(&refreshTimeout, "refresh-timeout", 0, "Timeout for the token refresh call")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 0, "Timeout for each API call")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Polling interval for 'predict --watch'")
	cmd.Flags().BoolVar(&independentRefresh, "independent-refresh", false, "Refresh separately for every rejected request")
	cmd.Flags().StringVar(&theme, "theme", config.DefaultTheme, "Rendering theme")

	return cmd
}

func newDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context CONTEXT_NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)

			if err := cliCtx.Config.DeleteContext(args[0]); err != nil {
				return err
			}
			if err := config.Save(cliCtx.ConfigPath, cliCtx.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", args[0])
			return nil
		},
	}
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "view",
		Aliases: []string{"show"},
		Short:   "Show the resolved settings of the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)
			out := cmd.OutOrStdout()

			s, err := cliCtx.Config.Current()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Current context: %s\n", s.Name)
			fmt.Fprintf(out, "  API URL: %s\n", s.APIURL)
			fmt.Fprintf(out, "  Session store: %s\n", s.Session.Backend)
			if s.Session.Backend == config.BackendRedis {
				fmt.Fprintf(out, "  Redis: %s (prefix %q)\n", s.Session.RedisAddr, s.Session.RedisPrefix)
			} else if s.Session.File != "" {
				fmt.Fprintf(out, "  Credentials file: %s\n", s.Session.File)
			}
			fmt.Fprintf(out, "  Refresh timeout: %s\n", s.RefreshTimeout)
			fmt.Fprintf(out, "  Request timeout: %s\n", s.RequestTimeout)
			fmt.Fprintf(out, "  Independent refresh: %t\n", s.IndependentRefresh)
			fmt.Fprintf(out, "  Poll interval: %s\n", s.PollInterval)
			fmt.Fprintf(out, "  Glamour theme: %s\n", s.Theme)
			fmt.Fprintf(out, "  Config file: %s\n", cliCtx.ConfigPath)
			return nil
		},
	}
}
