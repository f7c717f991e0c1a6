package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/api"
	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/integrations"
	"github.com/agentdeck/agentdeck/internal/realtime"
	"github.com/agentdeck/agentdeck/internal/repo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the dashboard API server. Connects to the remote data store,
opens push channels for all three collections and serves the cached,
auto-refreshing dashboard queries.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Connect to the remote data store
	var gwOpts []gateway.Option
	gwOpts = append(gwOpts, gateway.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}))
	if cfg.Server.Debug {
		gwOpts = append(gwOpts, gateway.WithDebug())
	}
	gw, err := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Key, gwOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	// Repositories
	agents := repo.NewAgents(gw)
	workflows := repo.NewWorkflows(gw)
	logs := repo.NewLogs(gw)

	// Query cache
	store := cache.New(
		cache.WithStaleAfter(cfg.Cache.StaleAfter),
		cache.WithRefreshInterval(cfg.Cache.RefreshInterval),
		cache.WithMetrics(cache.NewMetrics(prometheus.DefaultRegisterer)),
	)
	store.Mount(api.KeyAgents)
	store.Mount(api.KeyWorkflows)
	store.Mount(api.KeyLogs)
	store.Start()
	defer store.Stop()

	// Integration catalog
	catalog, err := integrations.LoadCatalog(cfg.Integrations.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load integration catalog: %w", err)
	}

	// Realtime change router; the server's hub is attached as sink below
	router := realtime.New(gw, store,
		realtime.WithLivePulse(cfg.Cache.LivePulse),
		realtime.WithMetrics(realtime.NewMetrics(prometheus.DefaultRegisterer)),
	)
	router.Bind(gateway.CollectionAgents, api.KeyAgents)
	router.Bind(gateway.CollectionWorkflows, api.KeyWorkflows)
	router.Bind(gateway.CollectionLogs, api.KeyLogs)
	defer router.Close()

	// API server
	server := api.New(cfg, api.Deps{
		Store:     store,
		Router:    router,
		Agents:    agents,
		Workflows: workflows,
		Logs:      logs,
		Catalog:   catalog,
	})
	router.SetSink(server.BroadcastChange)

	// Open the push channels
	for _, collection := range []string{
		gateway.CollectionAgents,
		gateway.CollectionWorkflows,
		gateway.CollectionLogs,
	} {
		handle, err := router.Subscribe(collection, "")
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", collection, err)
		}
		defer handle.Unsubscribe()
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Daily log retention sweep
	go sweepLoop(ctx, logs, store, cfg.Cache.SweepInterval)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// sweepLoop applies log retention on a fixed interval until ctx ends.
func sweepLoop(ctx context.Context, logs *repo.Logs, store *cache.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := logs.Sweep(ctx, now)
			if err != nil {
				log.Printf("log retention sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("log retention sweep removed %d entries", removed)
				store.Invalidate(api.KeyLogs)
			}
		}
	}
}
