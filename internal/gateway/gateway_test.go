package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"perp_bot/internal/cache"
	"perp_bot/internal/exchange"
	"perp_bot/internal/ledger"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eth = models.Instrument("ETH/USDC")

type fakeVenue struct {
	mu         sync.Mutex
	price      models.PricePoint
	priceErr   error
	priceCalls int

	balances  []models.AccountSnapshot
	balEr     error
	positions []models.Position
	posErr    error

	orderResult models.OrderResult
	orderErr    error
	orderCalls  int
}

func (v *fakeVenue) FetchPrice(_ context.Context, inst models.Instrument) (models.PricePoint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.priceCalls++
	if v.priceErr != nil {
		return models.PricePoint{}, v.priceErr
	}
	pp := v.price
	pp.Instrument = inst
	if pp.ObservedAt.IsZero() {
		pp.ObservedAt = time.Now()
	}
	return pp, nil
}

func (v *fakeVenue) FetchBalance(context.Context) ([]models.AccountSnapshot, error) {
	return v.balances, v.balEr
}

func (v *fakeVenue) FetchPositions(context.Context) ([]models.Position, error) {
	return v.positions, v.posErr
}

func (v *fakeVenue) FetchOHLCV(context.Context, models.Instrument, string, int) ([]models.Candle, error) {
	return nil, exchange.ErrUnsupported
}

func (v *fakeVenue) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orderCalls++
	if v.orderErr != nil {
		return models.OrderResult{}, v.orderErr
	}
	res := v.orderResult
	res.Instrument = req.Instrument
	return res, nil
}

type memStore struct {
	mu      sync.Mutex
	entries map[models.Instrument]models.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{entries: map[models.Instrument]models.LedgerEntry{}}
}

func (s *memStore) Save(_ context.Context, e models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Instrument] = e
	return nil
}

func (s *memStore) Delete(_ context.Context, inst models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, inst)
	return nil
}

func (s *memStore) LoadAll(context.Context) ([]models.LedgerEntry, error) { return nil, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.TradeEvent
}

func (n *recordingNotifier) TradeExecuted(ev models.TradeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	gw        *Gateway
	venue     *fakeVenue
	prices    *cache.Cache[models.Instrument, models.PricePoint]
	positions *cache.Cache[string, []models.Position]
	book      *ledger.Ledger
	n         *recordingNotifier
}

func newFixture(t *testing.T, paper bool) *fixture {
	t.Helper()
	cfg := &config.Config{
		CacheTTL: time.Minute,
		Paper: config.PaperConfig{
			Enabled:  paper,
			Balances: map[string]float64{"USDC": 10000},
		},
	}
	venue := &fakeVenue{}
	prices := cache.New[models.Instrument, models.PricePoint]()
	account := cache.New[string, models.AccountSnapshot]()
	positions := cache.New[string, []models.Position]()
	book := ledger.New(newMemStore())
	n := &recordingNotifier{}
	return &fixture{
		gw:        New(cfg, venue, prices, account, positions, book, n),
		venue:     venue,
		prices:    prices,
		positions: positions,
		book:      book,
		n:         n,
	}
}

func TestGetPriceFreshCacheSkipsFallback(t *testing.T) {
	f := newFixture(t, true)
	now := time.Now()
	f.prices.Put(eth, models.PricePoint{Instrument: eth, Price: 3100, ObservedAt: now}, now)

	pp, err := f.gw.GetPrice(context.Background(), eth)
	require.NoError(t, err)
	assert.Equal(t, 3100.0, pp.Price)
	assert.Equal(t, 0, f.venue.priceCalls)
}

func TestGetPriceStaleCacheHitsFallbackOnce(t *testing.T) {
	f := newFixture(t, true)
	old := time.Now().Add(-90 * time.Second)
	f.prices.Put(eth, models.PricePoint{Instrument: eth, Price: 3000, ObservedAt: old}, old)
	f.venue.price = models.PricePoint{Price: 3200}

	pp, err := f.gw.GetPrice(context.Background(), eth)
	require.NoError(t, err)
	assert.Equal(t, 3200.0, pp.Price)
	assert.Equal(t, 1, f.venue.priceCalls)

	// cache was repopulated with the fresher point
	pp, err = f.gw.GetPrice(context.Background(), eth)
	require.NoError(t, err)
	assert.Equal(t, 3200.0, pp.Price)
	assert.Equal(t, 1, f.venue.priceCalls)
}

func TestGetPricePrefersStaleOverError(t *testing.T) {
	f := newFixture(t, true)
	old := time.Now().Add(-5 * time.Minute)
	f.prices.Put(eth, models.PricePoint{Instrument: eth, Price: 2950, ObservedAt: old}, old)
	f.venue.priceErr = exchange.ErrUnsupported

	pp, err := f.gw.GetPrice(context.Background(), eth)
	require.NoError(t, err)
	assert.Equal(t, 2950.0, pp.Price)
	// the true observation time is preserved, freshness is not fabricated
	assert.Equal(t, old, pp.ObservedAt)
}

func TestGetPriceNoDataWhenCacheAndFallbackFail(t *testing.T) {
	f := newFixture(t, true)
	f.venue.priceErr = exchange.ErrUnsupported

	_, err := f.gw.GetPrice(context.Background(), eth)
	assert.ErrorIs(t, err, exchange.ErrNoData)
}

func TestSubmitOrderRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t, true)

	for _, qty := range []float64{0, -1} {
		_, err := f.gw.SubmitOrder(context.Background(), models.OrderRequest{
			Instrument: eth, Side: models.SideBuy, Quantity: qty, Price: 100,
		})
		assert.ErrorIs(t, err, ErrQuantity)
	}

	assert.Equal(t, 0, f.book.Count())
	assert.Equal(t, 0, f.n.count())
	bal, _ := f.gw.GetBalance(context.Background(), "USDC")
	assert.Equal(t, 10000.0, bal.Free)
}

func TestSubmitOrderRejectsLimitWithoutPrice(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.gw.SubmitOrder(context.Background(), models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Type: models.OrderLimit, Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrPriceRequired)
	assert.Equal(t, 0, f.book.Count())
}

func TestPaperBuyMutatesLedgerExactlyOnce(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.gw.SubmitOrder(context.Background(), models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Quantity: 2, Price: 3000,
	})
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.Equal(t, "filled", res.Status)

	pos, ok := f.book.Position(eth)
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 3000.0, pos.Entry)

	quote, _ := f.gw.GetBalance(context.Background(), "USDC")
	assert.InDelta(t, 4000.0, quote.Free, 1e-9)
	base, _ := f.gw.GetBalance(context.Background(), "ETH")
	assert.InDelta(t, 2.0, base.Free, 1e-9)

	assert.Equal(t, 1, f.n.count())
	assert.Equal(t, 1, f.gw.PositionCount())
}

func TestPaperSellRoundTripRealizes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.gw.SubmitOrder(ctx, models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Quantity: 1, Price: 3000,
	})
	require.NoError(t, err)

	_, err = f.gw.SubmitOrder(ctx, models.OrderRequest{
		Instrument: eth, Side: models.SideSell, Quantity: 1, Price: 3300,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.book.Count())
	quote, _ := f.gw.GetBalance(ctx, "USDC")
	assert.InDelta(t, 10300.0, quote.Free, 1e-9)
}

func TestPaperRejectsInsufficientFunds(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.gw.SubmitOrder(context.Background(), models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Quantity: 100, Price: 3000,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 0, f.book.Count())
	assert.Equal(t, 0, f.n.count())

	// selling an asset we do not hold is rejected the same way
	_, err = f.gw.SubmitOrder(context.Background(), models.OrderRequest{
		Instrument: eth, Side: models.SideSell, Quantity: 1, Price: 3000,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestLiveModeWithoutCredentialsDisablesWrites(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.gw.SubmitOrder(context.Background(), models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Quantity: 1, Price: 3000,
	})
	assert.ErrorIs(t, err, exchange.ErrNoCredentials)
	assert.Equal(t, 0, f.venue.orderCalls)
}

func TestGetPositionsLiveReturnsCopyOfCachedList(t *testing.T) {
	f := newFixture(t, false)
	now := time.Now()
	f.positions.Put(exchange.PositionsKey, []models.Position{
		{Instrument: eth, Size: 2, Entry: 3000},
	}, now)

	list, err := f.gw.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	// mutating the returned slice must not corrupt the shared cache entry
	list[0].Size = 999

	again, err := f.gw.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2.0, again[0].Size)
}

func TestGetPositionsPaperServesLedger(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.gw.SubmitOrder(ctx, models.OrderRequest{
		Instrument: eth, Side: models.SideBuy, Quantity: 1.5, Price: 2000,
	})
	require.NoError(t, err)

	positions, err := f.gw.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, eth, positions[0].Instrument)
	assert.Equal(t, 1.5, positions[0].Size)
}
