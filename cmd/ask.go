package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantops/qubot/internal/agent"
	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/store"
	"github.com/quantops/qubot/internal/tracing"
)

func askCmd() *cobra.Command {
	var agentName string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run one agent turn from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(strings.Join(args, " "), agentName)
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "agent to use (default: auto-route)")
	return cmd
}

func runAsk(message, agentName string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	agents := agent.Builtins()
	if agentName == "" {
		agentName = agent.Route(message)
	}
	ag, ok := agents[agentName]
	if !ok {
		return fmt.Errorf("unknown agent %q", agentName)
	}

	registry := providers.NewRegistry(cfg.AI)
	preferred := cfg.AI.AdvancedProvider
	if preferred == "" {
		preferred = cfg.AI.Provider
	}
	p, err := registry.Select(preferred, true)
	if err != nil {
		return err
	}

	loop := agent.NewLoop(agent.LoopConfig{
		Tools:        buildTools(cfg, st),
		Skills:       buildSkills(cfg),
		Tracer:       tracing.New(st),
		MaxToolCalls: cfg.AI.MaxToolCalls,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := loop.Run(ctx, p, ag, message, cfg.AI.Model, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "[%s via %s, %d iterations, %d tool calls]\n",
		ag.Name, p.Name(), res.Iterations, len(res.ToolCalls))
	fmt.Println(res.Content)
	if v, _ := res.Metadata["max_calls_reached"].(bool); v {
		fmt.Fprintln(os.Stderr, "[tool-call bound reached]")
	}
	return nil
}
