// Package config collects the runtime configuration for the whole platform.
// Values come from the environment (optionally seeded from a .env file) with
// an optional JSON5 config file overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration, grouped by subsystem.
type Config struct {
	Log      LogConfig
	Store    StoreConfig
	Telegram TelegramConfig
	Discord  DiscordConfig
	Monitor  MonitorConfig
	Dedup    DedupConfig
	Compress CompressConfig
	AI       AIConfig
	Tools    ToolsConfig
	Export   ExportConfig
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string // LOG_LEVEL
	File  string // LOG_FILE (empty = stderr only)
}

// StoreConfig selects the SQL backend.
type StoreConfig struct {
	// DSN accepts "sqlite:///path/to.db" (default) or "postgres://...".
	DSN string // DATABASE_URL
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Tokens []string // TELEGRAM_BOT_TOKENS, comma-separated (multi-bot)
}

// DiscordConfig configures the optional Discord ingest source.
type DiscordConfig struct {
	Token string // DISCORD_BOT_TOKEN
}

// MonitorConfig configures the ingest pipeline and report scheduler.
type MonitorConfig struct {
	TargetChannel       string   // TARGET_CHANNEL
	VIPTargetChannel    string   // VIP_TARGET_CHANNEL (falls back to TargetChannel)
	ReportTargetChannel string   // REPORT_TARGET_CHANNEL (falls back to TargetChannel)
	BlacklistChannels   []string // BLACKLIST_CHANNELS
	SourceChannels      []string // SOURCE_CHANNELS (empty = all)
	FromUsers           []string // FROM_USERS (empty = all)
	Keywords            []string // KEYWORDS (empty = all)
	AllowedUsers        []string // ALLOWED_USERS (operator commands)
	Timezone            string   // MONITOR_TIMEZONE, default Asia/Shanghai
	ReportCron          string   // MONITOR_REPORT_CRON, default "0 8,20 * * *"

	// Legacy summarization buffer. The feature flag stays off; the knobs are
	// parsed so existing deployments do not break on unknown options.
	BufferSize    int           // MONITOR_BUFFER_SIZE
	BufferTimeout time.Duration // MONITOR_BUFFER_TIMEOUT
}

// DedupConfig tunes the near-duplicate engine.
type DedupConfig struct {
	CacheSize           int     // DEDUP_CACHE_SIZE, default 5000
	SimilarityThreshold float64 // DEDUP_SIMILARITY_THRESHOLD, default 0.85
}

// CompressConfig tunes the message compression pipeline.
type CompressConfig struct {
	MinLength      int     // COMPRESSOR_MIN_LENGTH, default 15
	MaxMessages    int     // COMPRESSOR_MAX_MESSAGES, default 50
	ScoreThreshold float64 // COMPRESSOR_SCORE_THRESHOLD, default 0.20
}

// AIConfig configures providers and the agent orchestrator.
type AIConfig struct {
	Provider         string // AI_PROVIDER (simple path)
	AdvancedProvider string // AI_ADVANCED_PROVIDER (tool-calling path)
	Model            string // AI_MODEL
	ExtendedThinking bool   // AI_EXTENDED_THINKING (Claude thinking beta)
	MaxToolCalls     int    // AI_MAX_TOOL_CALLS, default 10
	SkillsPath       string // AI_SKILLS_PATH (custom skill root)
	WorkspacePath    string // WORKSPACE_PATH (project skill root)

	// Per-vendor credentials. Empty key = provider not configured.
	OpenAIKey     string // OPENAI_API_KEY
	GroqKey       string // GROQ_API_KEY
	GLMKey        string // GLM_API_KEY
	NVIDIAKey     string // NVIDIA_API_KEY
	OpenRouterKey string // OPENROUTER_API_KEY
	MiniMaxKey    string // MINIMAX_API_KEY
	ClaudeKey     string // ANTHROPIC_API_KEY
	GeminiKey     string // GEMINI_API_KEY
}

// ToolsConfig configures tool backends.
type ToolsConfig struct {
	AllowedPaths        []string // AI_ALLOWED_PATHS; default [/tmp, ~/.qubot, cwd]
	SearxURL            string   // SEARX_URL
	GitHubToken         string   // GITHUB_TOKEN
	CloudflareAPIToken  string   // CLOUDFLARE_API_TOKEN
	CloudflareAccountID string   // CLOUDFLARE_ACCOUNT_ID
}

// ExportConfig configures the report export hook.
type ExportConfig struct {
	NotesRepo      string // NOTES_REPO (report artifact root; default cwd)
	GitSSHKeyPath  string // GIT_SSH_KEY_PATH
	TelegraphToken string // TELEGRAPH_TOKEN
}

// Load builds a Config from the environment. A .env in the working directory
// is applied first (missing file is not an error). When configFile is
// non-empty, its JSON5 contents overlay the env-derived values.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Log: LogConfig{
			Level: envStr("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Store: StoreConfig{
			DSN: envStr("DATABASE_URL", "sqlite://qubot.db"),
		},
		Telegram: TelegramConfig{
			Tokens: envCSV("TELEGRAM_BOT_TOKENS"),
		},
		Discord: DiscordConfig{
			Token: os.Getenv("DISCORD_BOT_TOKEN"),
		},
		Monitor: MonitorConfig{
			TargetChannel:       os.Getenv("TARGET_CHANNEL"),
			VIPTargetChannel:    os.Getenv("VIP_TARGET_CHANNEL"),
			ReportTargetChannel: os.Getenv("REPORT_TARGET_CHANNEL"),
			BlacklistChannels:   envCSV("BLACKLIST_CHANNELS"),
			SourceChannels:      envCSV("SOURCE_CHANNELS"),
			FromUsers:           envCSV("FROM_USERS"),
			Keywords:            envCSV("KEYWORDS"),
			AllowedUsers:        envCSV("ALLOWED_USERS"),
			Timezone:            envStr("MONITOR_TIMEZONE", "Asia/Shanghai"),
			ReportCron:          envStr("MONITOR_REPORT_CRON", "0 8,20 * * *"),
			BufferSize:          envInt("MONITOR_BUFFER_SIZE", 50),
			BufferTimeout:       envDuration("MONITOR_BUFFER_TIMEOUT", 10*time.Minute),
		},
		Dedup: DedupConfig{
			CacheSize:           envInt("DEDUP_CACHE_SIZE", 5000),
			SimilarityThreshold: envFloat("DEDUP_SIMILARITY_THRESHOLD", 0.85),
		},
		Compress: CompressConfig{
			MinLength:      envInt("COMPRESSOR_MIN_LENGTH", 15),
			MaxMessages:    envInt("COMPRESSOR_MAX_MESSAGES", 50),
			ScoreThreshold: envFloat("COMPRESSOR_SCORE_THRESHOLD", 0.20),
		},
		AI: AIConfig{
			Provider:         envStr("AI_PROVIDER", "openai"),
			AdvancedProvider: envStr("AI_ADVANCED_PROVIDER", ""),
			Model:            os.Getenv("AI_MODEL"),
			ExtendedThinking: envBool("AI_EXTENDED_THINKING", false),
			MaxToolCalls:     envInt("AI_MAX_TOOL_CALLS", 10),
			SkillsPath:       os.Getenv("AI_SKILLS_PATH"),
			WorkspacePath:    os.Getenv("WORKSPACE_PATH"),
			OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
			GroqKey:          os.Getenv("GROQ_API_KEY"),
			GLMKey:           os.Getenv("GLM_API_KEY"),
			NVIDIAKey:        os.Getenv("NVIDIA_API_KEY"),
			OpenRouterKey:    os.Getenv("OPENROUTER_API_KEY"),
			MiniMaxKey:       os.Getenv("MINIMAX_API_KEY"),
			ClaudeKey:        os.Getenv("ANTHROPIC_API_KEY"),
			GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		},
		Tools: ToolsConfig{
			AllowedPaths:        envCSV("AI_ALLOWED_PATHS"),
			SearxURL:            os.Getenv("SEARX_URL"),
			GitHubToken:         os.Getenv("GITHUB_TOKEN"),
			CloudflareAPIToken:  os.Getenv("CLOUDFLARE_API_TOKEN"),
			CloudflareAccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		},
		Export: ExportConfig{
			NotesRepo:      os.Getenv("NOTES_REPO"),
			GitSSHKeyPath:  os.Getenv("GIT_SSH_KEY_PATH"),
			TelegraphToken: os.Getenv("TELEGRAPH_TOKEN"),
		},
	}

	if len(cfg.Tools.AllowedPaths) == 0 {
		cfg.Tools.AllowedPaths = DefaultAllowedPaths()
	}
	if cfg.Monitor.VIPTargetChannel == "" {
		cfg.Monitor.VIPTargetChannel = cfg.Monitor.TargetChannel
	}
	if cfg.Monitor.ReportTargetChannel == "" {
		cfg.Monitor.ReportTargetChannel = cfg.Monitor.TargetChannel
	}

	if configFile != "" {
		if err := cfg.applyFile(configFile); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultAllowedPaths returns the filesystem tool allow-list used when
// AI_ALLOWED_PATHS is unset: /tmp, ~/.qubot, and the working directory.
func DefaultAllowedPaths() []string {
	paths := []string{"/tmp"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".qubot"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	return paths
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Monitor.Timezone); err != nil {
		return fmt.Errorf("invalid MONITOR_TIMEZONE %q: %w", c.Monitor.Timezone, err)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_SIMILARITY_THRESHOLD must be in (0,1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Compress.MaxMessages <= 0 {
		return fmt.Errorf("COMPRESSOR_MAX_MESSAGES must be positive, got %d", c.Compress.MaxMessages)
	}
	return nil
}

// Location resolves the monitor time zone. validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.Monitor.Timezone)
	return loc
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envCSV(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return d
	}
	// Bare numbers are seconds, for parity with the older deployment format.
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
