package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perp_bot/internal/cache"
	"perp_bot/internal/exchange"
	"perp_bot/internal/ledger"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

var (
	ErrQuantity          = errors.New("order quantity must be positive")
	ErrPriceRequired     = errors.New("limit order requires a price")
	ErrInsufficientFunds = errors.New("insufficient paper balance")
)

type TradeNotifier interface {
	TradeExecuted(ev models.TradeEvent)
}

// Gateway is the single facade strategies call. Reads are served from the
// feed-populated caches while fresh, fall back to one REST query on
// miss/staleness, and degrade to the last-known value (with its true age)
// before giving up with ErrNoData. Writes go to the paper ledger or to the
// live venue depending on the configured mode.
type Gateway struct {
	ttl   time.Duration
	venue exchange.Venue

	prices    *cache.Cache[models.Instrument, models.PricePoint]
	account   *cache.Cache[string, models.AccountSnapshot]
	positions *cache.Cache[string, []models.Position]

	book *ledger.Ledger

	paper    bool
	liveAble bool
	paperMu  sync.Mutex
	paperBal map[string]float64 // currency -> free balance

	n TradeNotifier
}

func New(
	cfg *config.Config,
	venue exchange.Venue,
	prices *cache.Cache[models.Instrument, models.PricePoint],
	account *cache.Cache[string, models.AccountSnapshot],
	positions *cache.Cache[string, []models.Position],
	book *ledger.Ledger,
	n TradeNotifier,
) *Gateway {
	paperBal := make(map[string]float64, len(cfg.Paper.Balances))
	for ccy, v := range cfg.Paper.Balances {
		paperBal[ccy] = v
	}
	return &Gateway{
		ttl:       cfg.CacheTTL,
		venue:     venue,
		prices:    prices,
		account:   account,
		positions: positions,
		book:      book,
		paper:     cfg.Paper.Enabled,
		liveAble:  cfg.HasCredentials(),
		paperBal:  paperBal,
		n:         n,
	}
}

func (g *Gateway) Paper() bool { return g.paper }

// GetPrice serves the cache while the entry is younger than the TTL,
// otherwise revalidates through the REST fallback exactly once. When both
// fail it prefers the last-known price over an error; the caller sees the
// real ObservedAt, freshness is never fabricated.
func (g *Gateway) GetPrice(ctx context.Context, inst models.Instrument) (models.PricePoint, error) {
	if pp, age, ok := g.prices.Get(inst); ok && age < g.ttl {
		return pp, nil
	}

	pp, err := g.venue.FetchPrice(ctx, inst)
	if err == nil {
		g.prices.Put(inst, pp, pp.ObservedAt)
		return pp, nil
	}

	if pp, age, ok := g.prices.Get(inst); ok {
		logger.Warn("gateway: serving stale price for %s (age=%s, fallback: %v)", inst, age, err)
		return pp, nil
	}
	logger.Warn("gateway: no price for %s: %v", inst, err)
	return models.PricePoint{}, exchange.ErrNoData
}

// GetBalance applies the same cache-then-fallback policy to the account
// snapshot for one quote currency. Paper mode serves the simulated sheet.
func (g *Gateway) GetBalance(ctx context.Context, currency string) (models.AccountSnapshot, error) {
	if g.paper {
		g.paperMu.Lock()
		free := g.paperBal[currency]
		g.paperMu.Unlock()
		return models.AccountSnapshot{
			Currency:   currency,
			Total:      free,
			Free:       free,
			ObservedAt: time.Now(),
		}, nil
	}

	if snap, age, ok := g.account.Get(currency); ok && age < g.ttl {
		return snap, nil
	}

	snaps, err := g.venue.FetchBalance(ctx)
	if err == nil {
		var found models.AccountSnapshot
		for _, s := range snaps {
			g.account.Put(s.Currency, s, s.ObservedAt)
			if s.Currency == currency {
				found = s
			}
		}
		if found.Currency != "" {
			return found, nil
		}
	}

	if snap, age, ok := g.account.Get(currency); ok {
		logger.Warn("gateway: serving stale balance for %s (age=%s)", currency, age)
		return snap, nil
	}
	return models.AccountSnapshot{}, exchange.ErrNoData
}

// GetPositions returns the ledger book in paper mode. In live mode it
// prefers the feed-maintained list while fresh, else asks the venue.
// Callers get a copy; the cached list is shared with the feed.
func (g *Gateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	if g.paper {
		return g.book.List(), nil
	}

	if list, age, ok := g.positions.Get(exchange.PositionsKey); ok && age < g.ttl {
		return clonePositions(list), nil
	}

	list, err := g.venue.FetchPositions(ctx)
	if err == nil {
		g.positions.Put(exchange.PositionsKey, list, time.Now())
		return clonePositions(list), nil
	}

	if list, age, ok := g.positions.Get(exchange.PositionsKey); ok {
		logger.Warn("gateway: serving stale positions (age=%s)", age)
		return clonePositions(list), nil
	}
	return nil, exchange.ErrNoData
}

func clonePositions(list []models.Position) []models.Position {
	out := make([]models.Position, len(list))
	copy(out, list)
	return out
}

// PositionCount is used for max-open-positions risk checks. Best effort in
// live mode: the cached list is counted regardless of age.
func (g *Gateway) PositionCount() int {
	if g.paper {
		return g.book.Count()
	}
	list, _, _ := g.positions.Get(exchange.PositionsKey)
	return len(list)
}

// SubmitOrder validates, then either executes the fill synchronously against
// the paper ledger or forwards to the live venue. Rejects never mutate
// state; an accepted paper order mutates the ledger exactly once.
func (g *Gateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gateway.SubmitOrder")
	defer span.Finish()
	span.SetTag("instrument", string(req.Instrument))
	span.SetTag("side", req.Side)

	if req.Quantity <= 0 {
		logger.Warn("gateway: reject %s %s: non-positive quantity %v", req.Side, req.Instrument, req.Quantity)
		return models.OrderResult{}, ErrQuantity
	}
	if req.Type == "" {
		req.Type = models.OrderMarket
	}
	if req.Type == models.OrderLimit && req.Price <= 0 {
		logger.Warn("gateway: reject %s %s: limit order without price", req.Side, req.Instrument)
		return models.OrderResult{}, ErrPriceRequired
	}

	if g.paper {
		return g.submitPaper(ctx, req)
	}

	if !g.liveAble {
		return models.OrderResult{}, exchange.ErrNoCredentials
	}
	res, err := g.venue.PlaceOrder(ctx, req)
	if err != nil {
		return models.OrderResult{}, err
	}
	g.notify(models.TradeEvent{
		Instrument: req.Instrument,
		Side:       req.Side,
		Price:      res.Price,
		Quantity:   res.Quantity,
		At:         res.CreatedAt,
	})
	return res, nil
}

// submitPaper moves the paper balances spot-style (buy: quote to base,
// sell: base to quote) and books the fill in the ledger.
func (g *Gateway) submitPaper(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	price := req.Price
	if price <= 0 {
		pp, err := g.GetPrice(ctx, req.Instrument)
		if err != nil {
			return models.OrderResult{}, errors.Wrap(err, "paper order needs a price")
		}
		price = pp.Price
	}

	base, quote := req.Instrument.Split()
	cost := req.Quantity * price

	g.paperMu.Lock()
	switch req.Side {
	case models.SideBuy:
		if g.paperBal[quote] < cost {
			g.paperMu.Unlock()
			logger.Warn("gateway: reject BUY %s: need %.8f %s, have %.8f", req.Instrument, cost, quote, g.paperBal[quote])
			return models.OrderResult{}, ErrInsufficientFunds
		}
		g.paperBal[quote] -= cost
		g.paperBal[base] += req.Quantity
	case models.SideSell:
		if g.paperBal[base] < req.Quantity {
			g.paperMu.Unlock()
			logger.Warn("gateway: reject SELL %s: need %.8f %s, have %.8f", req.Instrument, req.Quantity, base, g.paperBal[base])
			return models.OrderResult{}, ErrInsufficientFunds
		}
		g.paperBal[base] -= req.Quantity
		g.paperBal[quote] += cost
	default:
		g.paperMu.Unlock()
		return models.OrderResult{}, errors.Errorf("unknown side %q", req.Side)
	}
	g.paperMu.Unlock()

	pos, realized, err := g.book.ApplyFill(ctx, req.Instrument, req.Side, req.Quantity, price)
	if err != nil {
		// quantity was validated above, so this cannot happen; restore anyway
		g.revertPaper(req, price)
		return models.OrderResult{}, err
	}

	res := models.OrderResult{
		ID:         fmt.Sprintf("paper_%d", time.Now().UnixNano()),
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      price,
		Status:     "filled",
		Simulated:  true,
		CreatedAt:  time.Now(),
	}
	logger.Info("gateway: paper %s %v %s @ %v", req.Side, req.Quantity, req.Instrument, price)

	g.notify(models.TradeEvent{
		Instrument: req.Instrument,
		Side:       req.Side,
		Price:      price,
		Quantity:   req.Quantity,
		Realized:   realized,
		Unrealized: pos.Unrealized(price),
		Simulated:  true,
		At:         res.CreatedAt,
	})
	return res, nil
}

func (g *Gateway) revertPaper(req models.OrderRequest, price float64) {
	base, quote := req.Instrument.Split()
	cost := req.Quantity * price
	g.paperMu.Lock()
	if req.Side == models.SideBuy {
		g.paperBal[quote] += cost
		g.paperBal[base] -= req.Quantity
	} else {
		g.paperBal[base] += req.Quantity
		g.paperBal[quote] -= cost
	}
	g.paperMu.Unlock()
}

func (g *Gateway) notify(ev models.TradeEvent) {
	if g.n != nil {
		g.n.TradeExecuted(ev)
	}
}
