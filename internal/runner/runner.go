package runner

import (
	"context"
	"errors"
	"time"

	"perp_bot/internal/exchange"
	"perp_bot/internal/gateway"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/internal/strategy"
	"perp_bot/pkg/logger"
)

// Runner drives the periodic strategy and reporting loops against the
// gateway. It holds no market state of its own: prices, balances and
// positions always come through the gateway read API.
type Runner struct {
	cfg   *config.Config
	gw    *gateway.Gateway
	stg   *strategy.EMARSI
	n     notify.Notifier
	state *State

	instruments []models.Instrument
}

func New(cfg *config.Config, gw *gateway.Gateway, n notify.Notifier) *Runner {
	instruments := make([]models.Instrument, 0, len(cfg.Instruments))
	for _, s := range cfg.Instruments {
		instruments = append(instruments, models.Instrument(s))
	}
	return &Runner{
		cfg: cfg,
		gw:  gw,
		stg: strategy.NewEMARSI(strategy.Params{
			EMAShort:   cfg.EMAShort,
			EMALong:    cfg.EMALong,
			RSIPeriod:  cfg.RSIPeriod,
			Overbought: cfg.RSIOverbought,
			Oversold:   cfg.RSIOversold,
		}),
		n:           n,
		state:       NewState(),
		instruments: instruments,
	}
}

// StrategyLoop polls every instrument each cycle. "No data" skips the
// instrument for this cycle, it is never an error that stops the loop.
func (r *Runner) StrategyLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.cycle(ctx) // immediately on start

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if equity, ok := r.equity(ctx); ok {
		if r.state.InitEquity(equity) {
			mode := "live"
			if r.gw.Paper() {
				mode = "paper"
			}
			logger.Info("runner: starting equity %.2f (%s mode)", equity, mode)
			r.n.Sendf("bot started (%s): equity %.2f", mode, equity)
		}
	}

	for _, inst := range r.instruments {
		pp, err := r.gw.GetPrice(ctx, inst)
		if err != nil {
			if errors.Is(err, exchange.ErrNoData) {
				logger.Warn("runner: no price for %s, skipping cycle", inst)
				continue
			}
			logger.Error("runner: price %s: %v", inst, err)
			continue
		}

		side, ok := r.stg.Update(inst, pp.Price)
		if !ok {
			continue
		}
		r.trade(ctx, inst, side, pp.Price)
	}
}

func (r *Runner) trade(ctx context.Context, inst models.Instrument, side string, price float64) {
	// opening a new position counts against the risk limit; adding to or
	// reducing an existing one does not
	if _, held := r.position(ctx, inst); !held && r.gw.PositionCount() >= r.cfg.MaxOpenPositions {
		logger.Warn("runner: skip %s %s: max open positions (%d) reached", side, inst, r.cfg.MaxOpenPositions)
		return
	}

	_, err := r.gw.SubmitOrder(ctx, models.OrderRequest{
		Instrument: inst,
		Side:       side,
		Type:       models.OrderMarket,
		Quantity:   r.cfg.TradeQuantity,
		Price:      price,
	})
	if err != nil {
		logger.Warn("runner: order %s %s rejected: %v", side, inst, err)
	}
}

func (r *Runner) position(ctx context.Context, inst models.Instrument) (models.Position, bool) {
	positions, err := r.gw.GetPositions(ctx)
	if err != nil {
		return models.Position{}, false
	}
	for _, p := range positions {
		if p.Instrument == inst {
			return p, true
		}
	}
	return models.Position{}, false
}

// ReportLoop emits a periodic account summary to the notifier.
func (r *Runner) ReportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Runner) report(ctx context.Context) {
	equity, ok := r.equity(ctx)
	if !ok {
		logger.Warn("runner: skipping report, equity unavailable")
		return
	}

	start, _ := r.state.StartEquity()
	var unrealized float64
	if positions, err := r.gw.GetPositions(ctx); err == nil {
		for _, p := range positions {
			if pp, err := r.gw.GetPrice(ctx, p.Instrument); err == nil {
				unrealized += p.Unrealized(pp.Price)
			}
		}
	}

	now := time.Now()
	r.n.Report(models.Report{
		Equity:        equity,
		StartEquity:   start,
		Change:        equity - start,
		Unrealized:    unrealized,
		OpenPositions: r.gw.PositionCount(),
		At:            now,
	})
	r.state.MarkReport(equity, now)
}

// equity values the account in the quote currency of the first configured
// instrument: quote balance plus each base balance at the last price.
func (r *Runner) equity(ctx context.Context) (float64, bool) {
	if len(r.instruments) == 0 {
		return 0, false
	}
	quote := r.instruments[0].Quote()

	snap, err := r.gw.GetBalance(ctx, quote)
	if err != nil {
		return 0, false
	}
	total := snap.Free

	for _, inst := range r.instruments {
		if inst.Quote() != quote {
			continue
		}
		base, err := r.gw.GetBalance(ctx, inst.Base())
		if err != nil || base.Free == 0 {
			continue
		}
		pp, err := r.gw.GetPrice(ctx, inst)
		if err != nil {
			continue
		}
		total += base.Free * pp.Price
	}
	return total, true
}
