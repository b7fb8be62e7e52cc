package notify

import (
	"perp_bot/internal/exchange"
	"perp_bot/internal/gateway"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) Notifier {
				if cfg.Telegram.Token == "" {
					logger.Info("notify: no telegram token, logging only")
					return Nop{}
				}
				t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Warn("notify: telegram init failed (%v), logging only", err)
					return Nop{}
				}
				return t
			},
			func(n Notifier) gateway.TradeNotifier { return n },
			func(n Notifier) exchange.FillNotifier { return n },
		),
	)
}
