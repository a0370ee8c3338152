package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alertreport/config"
	"alertreport/logging"
	"alertreport/middleware"
	"alertreport/models"
	"alertreport/services"
)

var version = "dev"

const (
	exitFailure       = 1
	exitConfiguration = 2
	exitRunInProgress = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case services.IsRunInProgress(err):
		return exitRunInProgress
	case services.IsConfiguration(err):
		return exitConfiguration
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "alertreport",
		Short: "Weekly alert volume report",
		Long: `alertreport counts last week's alerts (Sunday 00:00:00 through Saturday
23:59:59 in the report timezone), optionally splits out the alerts raised
inside a recurring timeframe, and sends the summary by email.

Configuration comes from the environment, .env files and an optional YAML
file given with --config. Environment variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ALERTREPORT_CONFIG"), "Path to a YAML config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newWindowCmd(&configPath),
		newTokenCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var dryRun bool
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and send last week's report",
		Example: `  # Send the report (typically from cron on Monday morning)
  alertreport run

  # Print the report for the week before 2023-06-14 without sending it
  alertreport run --dry-run --now 2023-06-14T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseNow(nowFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.runner.Run(cmd.Context(), services.RunOptions{
				DryRun:      dryRun,
				Now:         now,
				TriggeredBy: "cli",
			})
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the report without dispatching it")
	cmd.Flags().StringVar(&nowFlag, "now", "", "Pretend the run happens at this RFC3339 time")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API",
		Long: `Serve exposes POST /api/reports/run for schedulers, the run ledger under
/api/reports/runs and /api/stats/overview, plus /health and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func newWindowCmd(configPath *string) *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Show the reporting window and alert query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseNow(nowFlag)
			if err != nil {
				return err
			}
			if now.IsZero() {
				now = time.Now()
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			loc, err := services.LoadLocation(cfg.Report.Timezone)
			if err != nil {
				return err
			}

			w := services.LastWeek(now, loc)
			start, end := services.FormatWindow(w, cfg.Report.TimeFormat)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Start: %s (%d)\n", start, w.StartMillis())
			fmt.Fprintf(out, "End:   %s (%d)\n", end, w.EndMillis())
			fmt.Fprintf(out, "Query: %s\n", services.BuildQuery(w, cfg.Alerts.Tags))
			return nil
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "Compute the window for this RFC3339 time")
	return cmd
}

func newTokenCmd(configPath *string) *cobra.Command {
	var subject, email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			token, err := middleware.GenerateToken([]byte(cfg.Server.JWTSecret),
				models.Principal{Subject: subject, Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "scheduler", "Token subject")
	cmd.Flags().StringVar(&email, "email", "", "Email recorded as the run trigger")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func parseNow(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now must be RFC3339: %w", err)
	}
	return t, nil
}

// loadConfig reads .env files, the environment and the optional YAML file.
func loadConfig(path string) (config.Config, error) {
	config.LoadEnv(logging.NewLogger(os.Getenv("LOG_LEVEL")))
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, &services.Error{Kind: services.KindConfiguration, Op: "load config", Err: err}
	}
	return cfg, nil
}
