package notify

import (
	"fmt"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier receives the structured records the core emits on every accepted
// order and every periodic report. The core has no knowledge of how or
// where they are delivered.
type Notifier interface {
	Sendf(format string, args ...any)
	TradeExecuted(ev models.TradeEvent)
	Report(r models.Report)
}

// Telegram is a passive notifier: it renders records into messages for one
// chat and never drives trading decisions.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("notify: telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) TradeExecuted(ev models.TradeEvent) {
	mode := "LIVE"
	if ev.Simulated {
		mode = "PAPER"
	}
	t.Sendf("[%s] %s %v %s @ %v\nrealized: %+.2f  unrealized: %+.2f",
		mode, ev.Side, ev.Quantity, ev.Instrument, ev.Price, ev.Realized, ev.Unrealized)
}

func (t *Telegram) Report(r models.Report) {
	t.Sendf("report %s\nequity: %.2f (%+.2f since start)\nunrealized: %+.2f\nopen positions: %d",
		r.At.Format("2006-01-02 15:04"), r.Equity, r.Change, r.Unrealized, r.OpenPositions)
}

// Nop is used when no telegram token is configured; records are only logged.
type Nop struct{}

func (Nop) Sendf(format string, args ...any) {}

func (Nop) TradeExecuted(ev models.TradeEvent) {
	logger.Info("trade: %s %v %s @ %v realized=%+.2f", ev.Side, ev.Quantity, ev.Instrument, ev.Price, ev.Realized)
}

func (Nop) Report(r models.Report) {
	logger.Info("report: equity=%.2f change=%+.2f unrealized=%+.2f open=%d", r.Equity, r.Change, r.Unrealized, r.OpenPositions)
}
