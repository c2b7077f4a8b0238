package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/providers"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models [provider]",
		Short: "List models per configured provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			registry := providers.NewRegistry(cfg.AI)

			var targets []providers.Provider
			if len(args) == 1 {
				p := registry.Get(args[0])
				if p == nil {
					return fmt.Errorf("unknown provider %q", args[0])
				}
				targets = append(targets, p)
			} else {
				for _, p := range registry.All() {
					if p.Configured() {
						targets = append(targets, p)
					}
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no providers configured")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			for _, p := range targets {
				fmt.Printf("%s (default %s):\n", p.Name(), p.DefaultModel())
				models, err := p.FetchModels(ctx)
				if err != nil {
					fmt.Printf("  fetch failed: %s\n", err)
					continue
				}
				for _, m := range models {
					fmt.Printf("  %s\n", m.ID)
				}
			}
			return nil
		},
	}
}
