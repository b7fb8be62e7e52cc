package gateway

import (
	"context"

	"perp_bot/internal/cache"
	"perp_bot/internal/exchange"
	"perp_bot/internal/ledger"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func() *cache.Cache[models.Instrument, models.PricePoint] {
				return cache.New[models.Instrument, models.PricePoint]()
			},
			func() *cache.Cache[string, models.AccountSnapshot] {
				return cache.New[string, models.AccountSnapshot]()
			},
			func() *cache.Cache[string, []models.Position] {
				return cache.New[string, []models.Position]()
			},
			func(cfg *config.Config) exchange.Venue {
				return exchange.NewClient(cfg)
			},
			func(m *db.PgTxManager) ledger.Store {
				return ledger.NewPgStore(m)
			},
			ledger.New,
			New,
		),
		fx.Invoke(func(lc fx.Lifecycle, book *ledger.Ledger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return book.Load(ctx)
				},
			})
		}),
	)
}
