package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantops/qubot/internal/compress"
	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/dedup"
	"github.com/quantops/qubot/internal/export"
	"github.com/quantops/qubot/internal/hotwords"
	"github.com/quantops/qubot/internal/logging"
	"github.com/quantops/qubot/internal/monitor"
	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/report"
	"github.com/quantops/qubot/internal/skills"
	"github.com/quantops/qubot/internal/store"
	"github.com/quantops/qubot/internal/tools"
	"github.com/quantops/qubot/internal/tracing"
	"github.com/quantops/qubot/internal/transport/discord"
	"github.com/quantops/qubot/internal/transport/telegram"
)

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	closeLogs := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer closeLogs()

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, st); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway shut down")
}

func run(ctx context.Context, cfg *config.Config, st *store.Store) error {
	engine := dedup.NewEngine(
		dedup.WithCacheSize(cfg.Dedup.CacheSize),
		dedup.WithThreshold(cfg.Dedup.SimilarityThreshold),
	)
	registry := providers.NewRegistry(cfg.AI)
	tracer := tracing.New(st)
	hw := hotwords.New(st)

	telegraph := export.NewTelegraph(cfg.Export.TelegraphToken)
	exporter := export.NewExporter(cfg.Export.NotesRepo)

	compressor := compress.New(
		compress.WithFilter(monitor.NewContentFilter()),
		compress.WithLimits(cfg.Compress.MinLength, cfg.Compress.MaxMessages, cfg.Compress.ScoreThreshold),
	)

	tg, err := telegram.New(cfg.Telegram.Tokens, nil)
	if err != nil {
		return err
	}

	ownIDs := resolveOwnIDs(ctx, tg)
	pipeline := monitor.NewPipeline(cfg.Monitor, engine, st, tg, ownIDs)
	pipeline.SetFormatter(monitor.NewFormatter(telegraph))
	buffer := monitor.NewBuffer(cfg.Monitor.BufferSize, cfg.Monitor.BufferTimeout)
	pipeline.SetBuffer(buffer)
	tg.SetHandler(&ingest{pipeline: pipeline, hotwords: hw})
	if err := pipeline.Refresh(ctx); err != nil {
		slog.Warn("pipeline refresh failed", "error", err)
	}

	reporter := report.NewGenerator(report.Config{
		Compressor: compressor,
		HotWords:   hw,
		Registry:   registry,
		Tracer:     tracer,
		Exporter:   exporter,
		Sink:       tg,
		Target:     cfg.Monitor.ReportTargetChannel,
		Preferred:  cfg.AI.Provider,
		DedupStats: engine.Stats,
	})
	scheduler, err := monitor.NewScheduler(cfg.Monitor.ReportCron, cfg.Monitor.Timezone, st, reporter)
	if err != nil {
		return err
	}

	skillReg := buildSkills(cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tg.Run(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return skillReg.Watch(ctx) })
	g.Go(func() error {
		buffer.Run(ctx)
		return ctx.Err()
	})

	if cfg.Discord.Token != "" {
		dc, err := discord.New(cfg.Discord.Token, &ingest{pipeline: pipeline, hotwords: hw})
		if err != nil {
			return err
		}
		g.Go(func() error { return dc.Run(ctx) })
	}

	slog.Info("gateway running",
		"bots", len(cfg.Telegram.Tokens),
		"report_cron", cfg.Monitor.ReportCron,
		"providers", configuredProviders(registry))
	err = g.Wait()
	pipeline.Close()
	return err
}

// ingest feeds each update to the pipeline and the hot-word counter.
type ingest struct {
	pipeline *monitor.Pipeline
	hotwords *hotwords.Service
}

func (i *ingest) Handle(ctx context.Context, u monitor.Update) {
	i.hotwords.AddMessage(u.Text, u.ChatTitle)
	i.pipeline.Handle(ctx, u)
}

func resolveOwnIDs(ctx context.Context, tg *telegram.Service) []string {
	idCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	ids, err := tg.OwnIDs(idCtx)
	if err != nil {
		slog.Warn("getMe failed, self-loop guard limited to chat ids", "error", err)
		return nil
	}
	return ids
}

// buildTools registers every tool backend the config enables.
func buildTools(cfg *config.Config, st *store.Store) *tools.Registry {
	reg := tools.NewRegistry()
	tools.RegisterCalculator(reg)
	tools.RegisterFilesystem(reg, tools.NewPathGuard(cfg.Tools.AllowedPaths))
	tools.RegisterWeb(reg, cfg.Tools.SearxURL)
	tools.RegisterMemory(reg, st)
	tools.RegisterGitHub(reg, cfg.Tools.GitHubToken)
	tools.RegisterCloudflare(reg, cfg.Tools.CloudflareAPIToken, cfg.Tools.CloudflareAccountID)
	return reg
}

func buildSkills(cfg *config.Config) *skills.Registry {
	personal := ""
	if home, err := os.UserHomeDir(); err == nil {
		personal = filepath.Join(home, ".qubot", "skills")
	}
	reg := skills.NewRegistry(personal, cfg.AI.WorkspacePath, cfg.AI.SkillsPath)
	if err := reg.Load(); err != nil {
		slog.Warn("skill load failed", "error", err)
	}
	return reg
}

func configuredProviders(reg *providers.Registry) []string {
	var names []string
	for _, p := range reg.All() {
		if p.Configured() {
			names = append(names, p.Name())
		}
	}
	return names
}
