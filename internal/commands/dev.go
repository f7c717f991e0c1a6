package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/devgateway"
	"github.com/agentdeck/agentdeck/internal/repo"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run a local dev data store",
	Long: `Run a local sqlite-backed stand-in for the hosted data store.

It serves the same REST and push surface the dashboard's gateway client
speaks, seeds a starter fleet on first run and, unless disabled,
simulates agent and workflow activity so the dashboard has live data.`,
	RunE: runDev,
}

func init() {
	devCmd.Flags().Bool("no-simulate", false, "disable the activity simulator")
	devCmd.Flags().String("db", "", "sqlite database path (overrides config)")
}

func runDev(cmd *cobra.Command, args []string) error {
	dbPath := cfg.Dev.Database
	if override, _ := cmd.Flags().GetString("db"); override != "" {
		dbPath = override
	}
	simulate := cfg.Dev.Simulate
	if off, _ := cmd.Flags().GetBool("no-simulate"); off {
		simulate = false
	}

	server, err := devgateway.New(devgateway.Options{
		Addr:             cfg.Dev.Listen,
		DatabasePath:     dbPath,
		Simulate:         simulate,
		SimulateInterval: cfg.Dev.SimulateInterval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	return server.Run(ctx, repo.RetentionWindow)
}
