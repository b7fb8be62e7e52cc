package exchange

import (
	"context"
	"errors"

	"perp_bot/internal/models"
)

var (
	// ErrNoData means neither the cache nor the fallback could produce a
	// value. Strategies treat it as "skip this cycle".
	ErrNoData = errors.New("no data available")

	// ErrUnsupported is returned by venues that genuinely lack a
	// capability, instead of a silent mock value.
	ErrUnsupported = errors.New("not supported by venue")

	// ErrNoCredentials disables the write path while reads keep working.
	ErrNoCredentials = errors.New("missing exchange credentials")
)

// Venue is the capability surface of an exchange backend. Different venues
// support different subsets: an execution-only venue has an order endpoint
// but no public market data. Missing capabilities return ErrUnsupported.
type Venue interface {
	FetchPrice(ctx context.Context, inst models.Instrument) (models.PricePoint, error)
	FetchBalance(ctx context.Context) ([]models.AccountSnapshot, error)
	FetchPositions(ctx context.Context) ([]models.Position, error)
	FetchOHLCV(ctx context.Context, inst models.Instrument, timeframe string, limit int) ([]models.Candle, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}
