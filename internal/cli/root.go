// Package cli provides the command-line interface for the ticker
// pipeline.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hedge-lords/internal/config"
	"hedge-lords/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "hedge-lords",
		Short: "Derivatives ticker pipeline with Monte Carlo payoff analysis",
		Long: `hedge-lords streams live option-chain tickers from Delta Exchange,
persists them with field-level merge semantics, and serves payoff curves
and Monte Carlo expected-value distributions over websocket and REST.

Use 'hedge-lords serve' to start the full pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/hedge-lords)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(NewServeCmd(app))
	rootCmd.AddCommand(NewSimulateCmd(app))
	rootCmd.AddCommand(NewClearCacheCmd(app))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("hedge-lords %s\n", Version)
		},
	}
}
