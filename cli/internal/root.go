package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/prodpro/prodpro/internal/client"
	"github.com/prodpro/prodpro/internal/config"
	"github.com/prodpro/prodpro/internal/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const cliContextKey contextKey = "cliContext"

// sessionEndedMessage is printed whenever the session ends for any reason
// other than an explicit logout.
const sessionEndedMessage = "session ended, please run 'prodpro auth login'"

// CliContext holds shared CLI context
type CliContext struct {
	Config     *config.Config
	ConfigPath string
	Settings   *config.Settings
	Client     *client.Client
	Logger     *slog.Logger

	closers []io.Closer
}

// Close releases the log file and session backend. It is safe to call more than once.
func (c *CliContext) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// closeAfterRun wraps every RunE in the tree so the CLI context is closed
// whether the command succeeds or fails. Cobra skips post-run hooks on error.
func closeAfterRun(cmd *cobra.Command, cliCtx *CliContext) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if closeErr := cliCtx.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		}
	}
	for _, sub := range cmd.Commands() {
		closeAfterRun(sub, cliCtx)
	}
}

// Global flags
var (
	logLevel      string
	logFile       string
	logToStderr   bool
	alsoLogStderr bool
	logFormat     string
	contextName   string
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	var ctx CliContext

	rootCmd := &cobra.Command{
		Use:           "prodpro",
		Short:         "CLI for the production monitoring service",
		Long:          `A command line client for the production monitoring API: sign in, then fetch or watch production forecasts.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors (main.go handles it)
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			// RunE never runs after a failed setup, so release what was opened here
			defer func() {
				if err != nil {
					ctx.Close()
				}
			}()

			closer, err := setupLogging()
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			ctx.closers = append(ctx.closers, closer)

			ctx.Logger = logger.WithCommand(slog.Default().With("component", "cli"), cmd.Name())
			ctx.Logger.Debug("CLI started")

			cfg, path, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx.Config = cfg
			ctx.ConfigPath = path

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))

			// Config commands work on the file alone
			if isConfigCommand(cmd) {
				return nil
			}

			if contextName != "" {
				if err := cfg.SetCurrentContext(contextName); err != nil {
					return err
				}
			}
			settings, err := cfg.Current()
			if err != nil {
				return fmt.Errorf("invalid context: %w", err)
			}
			ctx.Settings = settings
			ctx.Logger = logger.WithEndpoint(logger.WithContextName(ctx.Logger, settings.Name), settings.APIURL)

			store, storeCloser, err := openSessionStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			ctx.closers = append(ctx.closers, storeCloser)

			apiClient, err := client.New(client.Config{
				BaseURL:            settings.APIURL,
				Store:              store,
				Timeout:            settings.RequestTimeout,
				RefreshTimeout:     settings.RefreshTimeout,
				IndependentRefresh: settings.IndependentRefresh,
			})
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			apiClient.OnSessionEnded(func(reason client.EndReason) {
				if reason != client.EndReasonLogout {
					fmt.Fprintln(cmd.ErrOrStderr(), sessionEndedMessage)
				}
			})
			ctx.Client = apiClient
			return nil
		},
	}

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newPredictCommand())
	rootCmd.AddCommand(newConfigCommand())
	closeAfterRun(rootCmd, &ctx)

	rootCmd.PersistentFlags().StringVar(&contextName, "context", "",
		"Context to use instead of the current one")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path (if specified, logs to file instead of stderr)")
	rootCmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false,
		"Log to stderr (default behavior unless --log-file specified)")
	rootCmd.PersistentFlags().BoolVar(&alsoLogStderr, "alsologtostderr", false,
		"Log to both file and stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")

	return rootCmd
}

// setupLogging configures the global logger based on CLI flags
func setupLogging() (io.Closer, error) {
	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	globalLogger, closer, err := logger.SetupLogger(logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	})
	if err != nil {
		return nil, err
	}

	slog.SetDefault(globalLogger)
	return closer, nil
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" {
			return true
		}
	}
	return false
}

// getCliContext extracts the CLI context from the command context
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}
