package main

import (
	"context"

	"perp_bot/internal/gateway"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/postgres"
	"perp_bot/internal/notify"
	"perp_bot/internal/runner"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	logger.SetServiceName("perp_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		gateway.Module(),
		notify.Module(),
		runner.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			tracing.SetServiceName("perp_bot")
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	app.Run()
}
