package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runInitConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	// The gateway key never leaves the process.
	masked := *cfg
	if masked.Gateway.Key != "" {
		masked.Gateway.Key = "********"
	}

	data, err := yaml.Marshal(masked)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := `# AgentDeck Configuration

server:
  host: 0.0.0.0
  port: 8090
  read_timeout: 30s
  write_timeout: 30s
  shutdown_timeout: 10s
  debug: false

gateway:
  url: http://localhost:9910
  # key is the store-issued JWT; prefer the AD_GATEWAY_KEY env var
  key: ""
  timeout: 30s

cache:
  stale_after: 10s
  refresh_interval: 30s
  live_pulse: 3s
  sweep_interval: 24h

security:
  rate_limit: 100
  allowed_origins:
    - "*"

integrations:
  catalog_path: ./integrations.yaml

dev:
  listen: localhost:9910
  database: agentdeck-dev.db
  simulate: true
  simulate_interval: 5s
`

	if err := os.WriteFile("config.yaml", []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Println("Created config.yaml")
	return nil
}
