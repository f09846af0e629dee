// Package cmd implements the CLI commands for chatcast.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/chatcast/internal/client"
	"github.com/Dicklesworthstone/chatcast/internal/config"
)

// Version is reported by `chatcast version` and the daemon's /health.
var Version = "dev"

var (
	configPath string
	addrFlag   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcast",
	Short: "Broadcast one message to several chat web apps at once",
	Long: `chatcast keeps one sandboxed browser session per chat service and types
the same message into every enabled one.

Start the daemon once, then send from the CLI, the compose UI or an inbox folder:

  chatcast serve &
  chatcast send "Summarize the tradeoffs of B-trees vs LSM trees"
  echo "hello" | chatcast send
  chatcast compose`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/chatcast/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "daemon address (overrides listen from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if addrFlag != "" {
		cfg.Listen = addrFlag
	}
	return cfg, nil
}

// newClient returns a client for the configured daemon address.
func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Listen, cfg.Timings.RequestTimeout.Duration()), nil
}

// explain turns client errors into a message for the terminal.
func explain(err error) error {
	if errors.Is(err, client.ErrDaemonUnavailable) {
		return fmt.Errorf("%w\nstart it with: chatcast serve", err)
	}
	return err
}
