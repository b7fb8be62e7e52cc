package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, withCreds bool) *Client {
	cfg := &config.Config{}
	cfg.Exchange.RestURL = url
	if withCreds {
		cfg.Exchange.APIKey = "key"
		cfg.Exchange.APISecret = "secret"
		cfg.Exchange.Passphrase = "pass"
	}
	return NewClient(cfg)
}

func TestFetchPriceDecodesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/ticker", r.URL.Path)
		assert.Equal(t, "ETH-USDC", r.URL.Query().Get("instId"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"ETH-USDC","last":"3000.5","ts":"1700000000000"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, false)
	pp, err := c.FetchPrice(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, 3000.5, pp.Price)
	assert.Equal(t, models.Instrument("ETH/USDC"), pp.Instrument)
	assert.False(t, pp.ObservedAt.IsZero())
}

func TestFetchPriceVenueErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"51001","msg":"instrument does not exist","data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, false)
	_, err := c.FetchPrice(context.Background(), "NOPE/USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51001")
}

func TestFetchBalanceSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-TIMESTAMP"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"details":[
			{"ccy":"USDC","cashBal":"1500","availBal":"1200","frozenBal":"300"}
		]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, true)
	snaps, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "USDC", snaps[0].Currency)
	assert.Equal(t, 1500.0, snaps[0].Total)
	assert.Equal(t, 1200.0, snaps[0].Free)
	assert.Equal(t, 300.0, snaps[0].Used)
}

func TestFetchPositionsSkipsZeroRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"0","data":[
			{"instId":"ETH-USDC","pos":"2","avgPx":"3000","uTime":"1700000000000"},
			{"instId":"BTC-USDC","pos":"0","avgPx":"60000","uTime":"1700000000000"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, true)
	positions, err := c.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, models.Instrument("ETH/USDC"), positions[0].Instrument)
	assert.Equal(t, 2.0, positions[0].Size)
	assert.Equal(t, 3000.0, positions[0].Entry)
}

func TestPlaceOrderRejectedByVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, true)
	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Instrument: "ETH/USDC", Side: models.SideBuy, Type: models.OrderMarket, Quantity: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51008")
}

func TestMarketDataUnsupportedWithoutURL(t *testing.T) {
	c := newTestClient("", false)

	_, err := c.FetchPrice(context.Background(), "ETH/USDC")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.FetchOHLCV(context.Background(), "ETH/USDC", "1m", 10)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSignedCallsNeedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"0","data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, false)
	_, err := c.FetchBalance(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = c.FetchPositions(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = c.PlaceOrder(context.Background(), models.OrderRequest{
		Instrument: "ETH/USDC", Side: models.SideBuy, Type: models.OrderMarket, Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestHTTPErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, false)
	_, err := c.FetchPrice(context.Background(), "ETH/USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
