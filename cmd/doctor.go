package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/adhocore/gronx"
	"github.com/spf13/cobra"

	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("qubot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Printf("  Config:   LOAD FAILED (%s)\n", err)
		return
	}
	fmt.Println("  Config:   OK")

	fmt.Printf("  Store:    %s", cfg.Store.DSN)
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		fmt.Printf(" (OPEN FAILED: %s)\n", err)
	} else if err := st.Ping(); err != nil {
		fmt.Printf(" (PING FAILED: %s)\n", err)
		st.Close()
	} else {
		fmt.Println(" (OK)")
		st.Close()
	}

	fmt.Printf("  Bots:     %d telegram token(s)", len(cfg.Telegram.Tokens))
	if len(cfg.Telegram.Tokens) == 0 {
		fmt.Print(" (TELEGRAM_BOT_TOKENS not set)")
	}
	fmt.Println()
	if cfg.Discord.Token != "" {
		fmt.Println("  Discord:  configured")
	}

	fmt.Printf("  Cron:     %q", cfg.Monitor.ReportCron)
	if !gronx.New().IsValid(cfg.Monitor.ReportCron) {
		fmt.Print(" (INVALID)")
	}
	fmt.Printf(" tz=%s\n", cfg.Monitor.Timezone)

	fmt.Println()
	fmt.Println("  Providers:")
	registry := providers.NewRegistry(cfg.AI)
	for _, p := range registry.All() {
		status := "not configured"
		if p.Configured() {
			status = "ok"
			if p.SupportsTools() {
				status += ", tools"
			}
			if p.SupportsThinking() {
				status += ", thinking"
			}
		}
		fmt.Printf("    %-12s %s\n", p.Name()+":", status)
	}

	fmt.Println()
	if cfg.Export.TelegraphToken == "" {
		fmt.Println("  Telegraph: not configured (long posts stay inline)")
	} else {
		fmt.Println("  Telegraph: configured")
	}
	notes := cfg.Export.NotesRepo
	if notes == "" {
		notes, _ = os.Getwd()
	}
	fmt.Printf("  Notes:     %s\n", notes)
}
