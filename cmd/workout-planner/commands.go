package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ai-workout-planner/internal/app"
	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/config"
	"ai-workout-planner/internal/httpapi"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/observability"
)

func loadApp(ctx context.Context) (*app.App, *config.Config, *logger.Logger, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	return a, cfg, log, nil
}

func newServeCmd() *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when configured, the Telegram webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cfg, log, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("error closing app", "error", err)
				}
			}()

			shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
				Enabled:     cfg.OTelEnabled,
				SampleRatio: cfg.OTelSamplerRatio,
				Environment: cfg.AppEnv,
				Version:     version,
			})
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(shutdownCtx); err != nil {
					log.Warn("otel shutdown failed", "error", err)
				}
			}()

			bot, err := a.TelegramBot()
			if err != nil {
				return fmt.Errorf("failed to initialize telegram bot: %w", err)
			}
			var webhook http.Handler
			if bot != nil {
				webhook = bot
			}
			srv := httpapi.NewServer(":"+cfg.Port, a.Router(webhook), log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			if retentionDays > 0 {
				g.Go(func() error { return pruneMetrics(gctx, a, retentionDays, log) })
			}
			err = g.Wait()
			log.Info("server exiting")
			return err
		},
	}
	cmd.Flags().IntVar(&retentionDays, "metrics-retention-days", 30, "delete generation metrics older than this many days, once a day (0 disables)")
	return cmd
}

// pruneMetrics runs the retention cleanup at startup and then daily.
func pruneMetrics(ctx context.Context, a *app.App, days int, log *logger.Logger) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		removed, err := a.CleanupMetrics(ctx, days)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("metrics cleanup failed", "error", err)
		} else if removed > 0 {
			log.Info("metrics cleaned up", "removed", removed, "older_than_days", days)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		name, goal, level, constraints, equipment string
		age, days, duration                       int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a plan as JSON for the given intake, without storing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, log, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			fields := intake.Fields{}
			flags := cmd.Flags()
			set := func(flag, key string, value any) {
				if flags.Changed(flag) {
					fields[key] = value
				}
			}
			set("name", "name", name)
			set("age", "age", age)
			set("goal", "goal", goal)
			set("level", "level", level)
			set("constraints", "constraints", constraints)
			set("equipment", "equipment", equipment)
			set("days", "daysPerWeek", days)
			set("duration", "durationMin", duration)

			plan := a.GeneratePlan(cmd.Context(), intake.Normalize(fields))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "name to address the user by")
	f.IntVar(&age, "age", 0, "age in years")
	f.StringVar(&goal, "goal", "", "training goal, e.g. \"muscle gain\"")
	f.StringVar(&level, "level", "", "beginner, intermediate or advanced")
	f.StringVar(&constraints, "constraints", "", "injuries or health notes")
	f.StringVar(&equipment, "equipment", "", "comma-separated equipment list")
	f.IntVar(&days, "days", 0, "training days per week")
	f.IntVar(&duration, "duration", 0, "minutes per session")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID, name string
		ttl          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewFromEnv()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return errors.New("refusing to mint tokens in production")
			}
			token, err := auth.NewVerifier(cfg.AuthJWTSecret).Issue(userID, name, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the token subject")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMetricsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Delete generation metrics older than --days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must be >= 0, got %d", days)
			}
			a, _, log, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			removed, err := a.CleanupMetrics(cmd.Context(), days)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d metric rows older than %d days\n", removed, days)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "retention in days")
	return cmd
}
