package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"hedge-lords/internal/models"
	"hedge-lords/internal/simulation"
	"hedge-lords/internal/store"
)

// NewSimulateCmd creates the simulate command: a one-shot Monte Carlo
// run against the stored candle history.
func NewSimulateCmd(app *App) *cobra.Command {
	var (
		symbol     string
		expiryStr  string
		resolution string
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a Monte Carlo simulation against the stored history",
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := time.ParseInLocation("2006-01-02", expiryStr, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid expiry %q, expected YYYY-MM-DD", expiryStr)
			}
			res := models.Resolution(resolution)
			if !res.Valid() {
				return fmt.Errorf("unknown resolution %q", resolution)
			}
			if iterations < 1 {
				iterations = app.Config.Simulation.Iterations
			}

			st, err := store.NewSQLiteStore(app.Config.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			artifacts, err := simulation.NewArtifactStore(app.Config.Simulation.Directory)
			if err != nil {
				return err
			}

			engine := simulation.NewEngine(st, artifacts, simulation.EngineConfig{
				Anchor:  app.Config.Simulation.AnchorTime,
				Workers: app.Config.Simulation.Workers,
			}, app.Logger)

			key := simulation.CacheKey{
				Symbol:     symbol,
				Expiry:     expiry,
				Resolution: res,
				Iterations: iterations,
			}

			prices, err := engine.TerminalPrices(context.Background(), key)
			if err != nil {
				return err
			}

			mean, _ := stats.Mean(prices)
			p5, _ := stats.PercentileNearestRank(prices, 5)
			p95, _ := stats.PercentileNearestRank(prices, 95)

			color.Cyan("Simulated %s to %s (%d paths)", symbol, expiryStr, len(prices))
			fmt.Printf("  mean terminal price  %12.2f\n", mean)
			fmt.Printf("  5th percentile       %12.2f\n", p5)
			fmt.Printf("  95th percentile      %12.2f\n", p95)
			fmt.Printf("  artifact             %s\n", key.Filename())
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "underlying symbol (required)")
	cmd.Flags().StringVar(&expiryStr, "expiry", "", "expiry date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&resolution, "resolution", "1h", "candle resolution")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "iteration count (default from config)")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("expiry")

	return cmd
}

// NewClearCacheCmd creates the clear-cache command.
func NewClearCacheCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete cached simulation artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := simulation.NewArtifactStore(app.Config.Simulation.Directory)
			if err != nil {
				return err
			}
			if err := artifacts.DeleteAll(); err != nil {
				return err
			}
			color.Green("Simulation cache cleared")
			return nil
		},
	}
}
