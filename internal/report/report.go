// Package report renders the per-channel daily report: compression,
// AI summary, artifact export, and the short HTML digest.
package report

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quantops/qubot/internal/compress"
	"github.com/quantops/qubot/internal/dedup"
	"github.com/quantops/qubot/internal/export"
	"github.com/quantops/qubot/internal/hotwords"
	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/store"
	"github.com/quantops/qubot/internal/tracing"
)

const (
	summaryMaxChars = 4000
	summaryModel    = "" // provider default
)

// Sink delivers the HTML digest to the report destination. The document
// surface carries the full report when the digest cannot.
type Sink interface {
	SendHTML(ctx context.Context, target, html string) error
	SendDocument(ctx context.Context, target, filename string, data []byte, caption string) error
}

// Generator implements the scheduler's Reporter over the compression
// pipeline, the AI gateway, and the export hook.
type Generator struct {
	compressor *compress.Compressor
	hotwords   *hotwords.Service
	registry   *providers.Registry
	tracer     *tracing.Tracer
	exporter   *export.Exporter
	sink       Sink
	target     string // report destination chat
	preferred  string // preferred provider name
	dedupStats func() dedup.Stats
	now        func() time.Time
	log        *slog.Logger
}

// Config wires a Generator.
type Config struct {
	Compressor *compress.Compressor
	HotWords   *hotwords.Service
	Registry   *providers.Registry
	Tracer     *tracing.Tracer
	Exporter   *export.Exporter
	Sink       Sink
	Target     string
	Preferred  string
	DedupStats func() dedup.Stats // optional, adds the dedup line to the footer
}

// NewGenerator builds the report generator.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		compressor: cfg.Compressor,
		hotwords:   cfg.HotWords,
		registry:   cfg.Registry,
		tracer:     cfg.Tracer,
		exporter:   cfg.Exporter,
		sink:       cfg.Sink,
		target:     cfg.Target,
		preferred:  cfg.Preferred,
		dedupStats: cfg.DedupStats,
		now:        time.Now,
		log:        slog.Default().With("component", "report"),
	}
	if g.tracer == nil {
		g.tracer = tracing.New(nil)
	}
	return g
}

// GenerateReport compresses one channel's cached window, renders the
// markdown report (AI summary when a provider is available), writes the
// artifacts, and sends the HTML digest.
func (g *Generator) GenerateReport(ctx context.Context, ch store.Channel, msgs []store.CachedMessage) error {
	result := g.compressor.Compress(ch.Name, msgs)
	if result.CompressedCount == 0 {
		g.log.Info("nothing newsworthy", "channel", ch.Name, "original", result.OriginalCount)
		return nil
	}

	if g.hotwords != nil {
		if err := g.hotwords.PersistToDB(ctx); err != nil {
			g.log.Warn("hot-word persist failed", "error", err)
		}
	}

	summary := g.aiSummary(ctx, ch, result)
	markdown := g.renderMarkdown(ch, result, summary)

	art, err := g.exporter.Write(ch.Name, g.now(), markdown, result)
	if err != nil {
		return fmt.Errorf("export report for %s: %w", ch.Name, err)
	}

	if g.sink != nil && g.target != "" {
		digest := g.renderDigest(ch, result, summary, art)
		if err := g.sink.SendHTML(ctx, g.target, digest); err != nil {
			return fmt.Errorf("send report digest for %s: %w", ch.Name, err)
		}
		if len([]rune(markdown)) > summaryMaxChars {
			name := filepath.Base(art.MarkdownPath)
			if err := g.sink.SendDocument(ctx, g.target, name, []byte(markdown), ch.Name+" 完整日报"); err != nil {
				g.log.Warn("report attachment failed", "channel", ch.Name, "error", err)
			}
		}
	}
	g.log.Info("report published",
		"channel", ch.Name, "messages", result.CompressedCount,
		"markdown", art.MarkdownPath, "data", art.DataPath)
	return nil
}

// aiSummary asks the preferred provider for a digest of the selected
// messages. Any failure degrades to an empty summary; the report still
// carries the structured content.
func (g *Generator) aiSummary(ctx context.Context, ch store.Channel, result *compress.CompressionResult) string {
	if g.registry == nil {
		return ""
	}
	p, err := g.registry.Select(g.preferred, false)
	if err != nil {
		g.log.Warn("no provider for summary", "error", err)
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "以下是频道「%s」今日筛选出的 %d 条重要消息，请用中文写一段 200 字以内的要点总结：\n\n",
		ch.Name, result.CompressedCount)
	for i, m := range result.Messages {
		if i >= 15 {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
	}

	resp, err := g.tracer.Call(ctx, p, b.String(), summaryModel, nil,
		"You summarize market-monitoring digests. Be factual and terse.")
	if err != nil {
		g.log.Warn("ai summary failed", "provider", p.Name(), "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

func (g *Generator) renderMarkdown(ch store.Channel, result *compress.CompressionResult, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 日报 %s\n\n", ch.Name, g.now().Format("2006-01-02"))
	fmt.Fprintf(&b, "筛选 %d / %d 条 (%.0f%%)\n\n",
		result.CompressedCount, result.OriginalCount, result.Ratio*100)

	if summary != "" {
		b.WriteString("## 摘要\n\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	if len(result.HotWords) > 0 {
		b.WriteString("## 热词\n\n")
		for _, w := range topHotWords(result.HotWords, 10) {
			fmt.Fprintf(&b, "- %s (%d)\n", w.word, w.count)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 消息\n\n")
	for _, m := range result.Messages {
		cat := ""
		if len(m.Categories) > 0 {
			cat = " [" + strings.Join(m.Categories, ", ") + "]"
		}
		fmt.Fprintf(&b, "### %s%s\n\n%s\n\n— %s, %s\n\n",
			m.ID, cat, m.Content, m.Sender, m.Timestamp.Format("15:04"))
	}

	if line := g.statsLine(result); line != "" {
		b.WriteString("---\n\n")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// statsLine summarizes the run: compression ratio, hot-word spread, and the
// dedup engine counters when wired.
func (g *Generator) statsLine(result *compress.CompressionResult) string {
	parts := []string{
		fmt.Sprintf("压缩 %d→%d (%.0f%%)", result.OriginalCount, result.CompressedCount, result.Ratio*100),
	}
	if len(result.HotWords) > 0 {
		parts = append(parts, fmt.Sprintf("热词 %d", len(result.HotWords)))
	}
	if g.dedupStats != nil {
		s := g.dedupStats()
		parts = append(parts, fmt.Sprintf("去重 %.1f%% (检查 %d)", s.DedupRate*100, s.TotalChecked))
	}
	return strings.Join(parts, " · ")
}

// renderDigest builds the Telegram-facing HTML summary, capped at 4000
// characters with links to both artifacts.
func (g *Generator) renderDigest(ch store.Channel, result *compress.CompressionResult, summary string, art *export.Artifacts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s 日报</b> · %d/%d 条\n\n",
		html.EscapeString(ch.Name), result.CompressedCount, result.OriginalCount)

	if summary != "" {
		b.WriteString(html.EscapeString(summary))
		b.WriteString("\n\n")
	} else {
		for i, m := range result.Messages {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(truncateRunes(m.Content, 120)))
		}
		b.WriteString("\n")
	}

	if line := g.statsLine(result); line != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(line))
	}
	fmt.Fprintf(&b, "<i>报告: %s\n数据: %s</i>",
		html.EscapeString(art.MarkdownPath), html.EscapeString(art.DataPath))

	return truncateRunes(b.String(), summaryMaxChars)
}

type hotWordCount struct {
	word  string
	count int
}

func topHotWords(words map[string]int, n int) []hotWordCount {
	out := make([]hotWordCount, 0, len(words))
	for w, c := range words {
		out = append(out, hotWordCount{w, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].word < out[j].word
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
