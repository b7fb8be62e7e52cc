package runner

import (
	"context"

	"perp_bot/internal/exchange"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			exchange.NewFeed,
			New,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			feed *exchange.Feed,
			r *Runner,
		) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go feed.Run(ctx)
					go r.StrategyLoop(ctx)
					go r.ReportLoop(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					// cancelling closes the feed socket and lets its
					// supervising loop exit instead of reconnecting
					cancel()
					return nil
				},
			})
		}),
	)
}
