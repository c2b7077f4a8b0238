package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantops/qubot/internal/compress"
	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/export"
	"github.com/quantops/qubot/internal/hotwords"
	"github.com/quantops/qubot/internal/logging"
	"github.com/quantops/qubot/internal/monitor"
	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/report"
	"github.com/quantops/qubot/internal/store"
	"github.com/quantops/qubot/internal/tracing"
	"github.com/quantops/qubot/internal/transport/telegram"
)

// reportCmd triggers one report pass outside the cron schedule.
func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Generate reports for all cached channels now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			closeLogs := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
			defer closeLogs()

			st, err := store.Open(cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			tg, err := telegram.New(cfg.Telegram.Tokens, nil)
			if err != nil {
				return err
			}

			compressor := compress.New(
				compress.WithFilter(monitor.NewContentFilter()),
				compress.WithLimits(cfg.Compress.MinLength, cfg.Compress.MaxMessages, cfg.Compress.ScoreThreshold),
			)
			reporter := report.NewGenerator(report.Config{
				Compressor: compressor,
				HotWords:   hotwords.New(st),
				Registry:   providers.NewRegistry(cfg.AI),
				Tracer:     tracing.New(st),
				Exporter:   export.NewExporter(cfg.Export.NotesRepo),
				Sink:       tg,
				Target:     cfg.Monitor.ReportTargetChannel,
				Preferred:  cfg.AI.Provider,
			})
			scheduler, err := monitor.NewScheduler(cfg.Monitor.ReportCron, cfg.Monitor.Timezone, st, reporter)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			scheduler.RunOnce(ctx)
			slog.Info("manual report pass complete")
			return nil
		},
	}
}
