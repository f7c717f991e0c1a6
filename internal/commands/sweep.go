package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/repo"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply log retention once and exit",
	Long: `Delete log entries older than the retention window from the remote
data store. The serve command runs this on a schedule; sweep exists for
cron jobs and manual cleanups.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().Bool("dry-run", false, "report what would be deleted without deleting")
}

func runSweep(cmd *cobra.Command, args []string) error {
	gw, err := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Key,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}))
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	logs := repo.NewLogs(gw)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		expired, err := logs.CountExpired(ctx, now)
		if err != nil {
			return err
		}
		fmt.Printf("%d log entries older than %s would be deleted\n",
			expired, now.Add(-repo.RetentionWindow).Format(time.RFC3339))
		return nil
	}

	removed, err := logs.Sweep(ctx, now)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d expired log entries\n", removed)
	return nil
}
