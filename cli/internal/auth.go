package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prodpro/prodpro/internal/session"
)

// formatDuration formats a duration in a human-friendly way (e.g., "2 days, 3 hours and 45 minutes")
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	units := []struct {
		n    int
		name string
	}{
		{int(d.Hours() / 24), "day"},
		{int(d.Hours()) % 24, "hour"},
		{int(d.Minutes()) % 60, "minute"},
	}

	var parts []string
	for _, u := range units {
		if u.n > 0 {
			parts = append(parts, plural(u.n, u.name))
		}
	}
	if len(parts) == 0 {
		if seconds := int(d.Seconds()) % 60; seconds > 0 {
			parts = append(parts, plural(seconds, "second"))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Sign in, register and manage the stored session`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthRegisterCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthTokenCommand())

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Authenticate with a username and password. The access and refresh
credentials are kept in the session store of the current context.

Examples:
  # Prompt for credentials
  prodpro auth login

  # Non-interactive
  prodpro auth login --username bob --password "$PRODPRO_PASSWORD"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)

			var err error
			if username == "" || password == "" {
				username, password, err = promptCredentials(cmd, username)
				if err != nil {
					return err
				}
			}

			cliCtx.Logger.Info("logging in", "username", username)
			pair, err := cliCtx.Client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Successfully logged in as %s\n", username)
			if expiry, err := session.AccessExpiry(pair.Access); err == nil {
				fmt.Fprintf(out, "  Access token expires: %s\n", expiry.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (if not provided, will prompt)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (if not provided, will prompt)")

	return cmd
}

func newAuthRegisterCommand() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  `Create an account on the backend. Registering does not sign you in; run 'prodpro auth login' afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)

			var err error
			if username == "" || password == "" {
				username, password, err = promptCredentials(cmd, username)
				if err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = promptLine(cmd, "Email: "); err != nil {
					return err
				}
			}

			if err := cliCtx.Client.Register(cmd.Context(), username, email, password); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Account %s created. Run 'prodpro auth login' to sign in.\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (if not provided, will prompt)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (if not provided, will prompt)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (if not provided, will prompt)")

	return cmd
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Long:  `Remove the stored credentials. Nothing is sent to the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getCliContext(cmd).Client.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Successfully logged out")
			return nil
		},
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)
			out := cmd.OutOrStdout()

			pair, err := session.Load(cmd.Context(), cliCtx.Client.Store())
			if err != nil {
				return fmt.Errorf("failed to read session: %w", err)
			}

			fmt.Fprintf(out, "Context: %s\n", cliCtx.Settings.Name)
			fmt.Fprintf(out, "API: %s\n", cliCtx.Client.BaseURL())
			fmt.Fprintf(out, "Session store: %s\n", cliCtx.Settings.Session.Backend)

			if pair.Access == "" {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}

			printExpiry(out, pair, time.Now())
			return nil
		},
	}
}

// printExpiry shows how long the access credential is valid. The expiry is
// read without verifying the signature and is for display only.
func printExpiry(out io.Writer, pair session.Pair, now time.Time) {
	canRefresh := pair.Refresh != ""

	expiry, err := session.AccessExpiry(pair.Access)
	switch {
	case errors.Is(err, session.ErrNotJWT), errors.Is(err, session.ErrNoExpiry):
		fmt.Fprintln(out, "Logged in (access token expiry unknown)")
	case err != nil:
		fmt.Fprintf(out, "Logged in (could not read access token: %v)\n", err)
	case now.After(expiry):
		fmt.Fprintf(out, "Access token expires: %s\n", expiry.Local().Format("2006-01-02 15:04:05 MST"))
		if canRefresh {
			fmt.Fprintf(out, "⚠  Access token expired %s ago - it will be refreshed on the next request\n", formatDuration(now.Sub(expiry)))
		} else {
			fmt.Fprintf(out, "⚠  Access token expired %s ago and cannot be refreshed\n", formatDuration(now.Sub(expiry)))
		}
		return
	default:
		fmt.Fprintf(out, "Access token expires: %s\n", expiry.Local().Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(out, "✓  Valid for %s\n", formatDuration(expiry.Sub(now)))
	}

	if !canRefresh {
		fmt.Fprintln(out, "No refresh token stored; you will need to log in again when the access token expires")
	}
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Display the current access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := getCliContext(cmd).Client.Store().Access(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read session: %w", err)
			}
			if access == "" {
				return fmt.Errorf("not logged in")
			}

			fmt.Fprintln(cmd.OutOrStdout(), access)
			return nil
		},
	}
}

var stdinReader = bufio.NewReader(os.Stdin)

func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptCredentials(cmd *cobra.Command, username string) (string, string, error) {
	var err error
	if username == "" {
		if username, err = promptLine(cmd, "Username: "); err != nil {
			return "", "", err
		}
	}

	// Get password (hidden)
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(cmd.ErrOrStderr()) // newline after password input
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}

	return username, string(passwordBytes), nil
}
