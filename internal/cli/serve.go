package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hedge-lords/internal/broadcast"
	"hedge-lords/internal/exchange"
	"hedge-lords/internal/ingest"
	"hedge-lords/internal/payoff"
	"hedge-lords/internal/server"
	"hedge-lords/internal/simulation"
	"hedge-lords/internal/store"
)

// NewServeCmd creates the serve command: the full pipeline with both
// stream pollers and the HTTP surface.
func NewServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ticker pipeline and API server",
		Long: `Start the full pipeline: exchange gateway, ticker ingestion, the
options-chain and payoff stream pollers, and the HTTP/websocket API.
Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config

			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			artifacts, err := simulation.NewArtifactStore(cfg.Simulation.Directory)
			if err != nil {
				return err
			}

			gateway := exchange.NewGateway(exchange.Config{
				BaseURL:     cfg.Exchange.BaseURL,
				WSURL:       cfg.Exchange.WSURL,
				PageSize:    cfg.Exchange.PageSize,
				HistoryRate: cfg.Exchange.HistoryRate,
				MaxRetries:  cfg.Exchange.MaxRetries,
			}, app.Logger)

			producer := ingest.NewProducer(gateway, st, app.Logger)
			engine := simulation.NewEngine(st, artifacts, simulation.EngineConfig{
				Anchor:  cfg.Simulation.AnchorTime,
				Workers: cfg.Simulation.Workers,
			}, app.Logger)
			aggregator := payoff.NewAggregator(st, app.Logger)
			broadcaster := broadcast.NewBroadcaster(app.Logger)

			chainPoller := broadcast.NewPoller(broadcaster, broadcast.ChannelPremiums,
				func(ctx context.Context) (interface{}, error) {
					chain, err := payoff.Chain(ctx, st)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"purpose": "prices", "options_chain": chain}, nil
				},
				cfg.Stream.PollInterval, cfg.Stream.StopTimeout, app.Logger)

			curvePoller := broadcast.NewPoller(broadcaster, broadcast.ChannelTrading,
				func(ctx context.Context) (interface{}, error) {
					curve, err := aggregator.Curve(ctx)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"payoff_update": curve}, nil
				},
				cfg.Stream.PollInterval, cfg.Stream.StopTimeout, app.Logger)

			srv := server.New(server.Config{
				Addr:       cfg.Server.Addr,
				Iterations: cfg.Simulation.Iterations,
			}, producer, engine, aggregator, broadcaster, app.Logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			chainPoller.Start(ctx)
			curvePoller.Start(ctx)
			defer func() {
				curvePoller.Stop()
				chainPoller.Stop()
				if err := producer.StopStreaming(context.Background()); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to stop streaming")
				}
				if err := gateway.Disconnect(); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to disconnect gateway")
				}
			}()

			color.Cyan("hedge-lords pipeline listening on %s", cfg.Server.Addr)
			return srv.Run(ctx)
		},
	}
	return cmd
}
