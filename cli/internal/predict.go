package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/prodpro/prodpro/internal/client"
	"github.com/prodpro/prodpro/internal/monitor"
)

func newPredictCommand() *cobra.Command {
	var (
		watch       bool
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Show the production forecast",
		Long: `Fetch the current efficiency and downtime forecast.

With --watch the forecast is refetched every interval and the recent
efficiency history is shown, like the dashboard does.

Examples:
  # One-shot forecast
  prodpro predict

  # Refresh every 10 seconds and expose Prometheus metrics
  prodpro predict --watch --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := getCliContext(cmd)

			if !watch {
				prediction, err := cliCtx.Client.Predict(cmd.Context())
				if err != nil {
					return predictError(err)
				}
				printMarkdown(cmd.OutOrStdout(), cliCtx, formatPrediction(prediction, nil))
				return nil
			}

			if interval == 0 {
				interval = cliCtx.Settings.PollInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				shutdown, err := serveMetrics(ctx, metricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			poller := monitor.NewPoller(cliCtx.Client, interval)
			err := poller.Run(ctx, func(u monitor.Update) {
				out := cmd.OutOrStdout()
				stamp := time.Now().Format("15:04:05")
				if u.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %v\n", stamp, predictError(u.Err))
					return
				}
				fmt.Fprintf(out, "\n[%s]\n", stamp)
				printMarkdown(out, cliCtx, formatPrediction(u.Prediction, u.History))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return predictError(err)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling and show recent history")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval for --watch (default: the context's poll_interval)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching")

	return cmd
}

// predictError makes API failures readable; the session-ended notice has
// already been printed by the subscriber.
func predictError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("prediction failed: %s", apiErrorMessage(apiErr))
	}
	return err
}

func apiErrorMessage(apiErr *client.APIError) string {
	msg := strings.TrimSpace(string(apiErr.Body))
	if msg == "" {
		return apiErr.Error()
	}
	msg = truncate(msg, maxErrorMessage)
	return fmt.Sprintf("%d %s: %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode), msg)
}

// maxErrorMessage caps how many characters of an error body are shown
const maxErrorMessage = 200

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// formatPrediction renders a prediction and optional history as markdown
func formatPrediction(p *client.Prediction, history []monitor.Point) string {
	var b strings.Builder

	status := p.Status
	if status == "" {
		status = client.StatusActionRequired
		if p.Optimal() {
			status = client.StatusOptimal
		}
	}
	icon := "⚠️"
	if status == client.StatusOptimal {
		icon = "✅"
	}

	b.WriteString("# Production forecast\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Efficiency | %.1f%% |\n", p.Efficiency)
	fmt.Fprintf(&b, "| Downtime probability | %.1f%% |\n", p.DowntimeProbability)
	fmt.Fprintf(&b, "| Status | %s %s |\n", icon, status)

	if p.Recommendation != "" {
		fmt.Fprintf(&b, "\n**Recommendation:** %s\n", p.Recommendation)
	}

	if len(history) > 1 {
		b.WriteString("\n## Recent efficiency\n\n")
		for _, point := range history {
			fmt.Fprintf(&b, "- %s  %.1f%%\n", point.Time.Format("15:04:05"), point.Efficiency)
		}
	}
	return b.String()
}

// serveMetrics exposes /metrics until the returned function is called
func serveMetrics(ctx context.Context, addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("serving metrics", slog.String("addr", listener.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
