package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Client is the pull-based REST fallback plus the live order endpoint.
// Every call is a single best-effort query: retry policy belongs to the
// caller. A client configured without a REST URL reports ErrUnsupported
// from every call, the contract for venues lacking that capability.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.Exchange.RestURL,
		apiKey:     cfg.Exchange.APIKey,
		apiSecret:  cfg.Exchange.APISecret,
		passphrase: cfg.Exchange.Passphrase,
	}
}

func (c *Client) FetchPrice(ctx context.Context, inst models.Instrument) (models.PricePoint, error) {
	if c.baseURL == "" {
		return models.PricePoint{}, ErrUnsupported
	}

	var resp tickerResponse
	path := "/api/v5/market/ticker?instId=" + instIDOf(inst)
	if err := c.get(ctx, path, false, &resp); err != nil {
		return models.PricePoint{}, errors.Wrap(err, "fetch ticker")
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return models.PricePoint{}, errors.Errorf("ticker error: code=%s msg=%s", resp.Code, resp.Msg)
	}

	last, err := strconv.ParseFloat(resp.Data[0].Last, 64)
	if err != nil || last <= 0 {
		return models.PricePoint{}, errors.Errorf("bad last price %q for %s", resp.Data[0].Last, inst)
	}
	return models.PricePoint{
		Instrument: inst,
		Price:      last,
		ObservedAt: time.Now(),
	}, nil
}

func (c *Client) FetchBalance(ctx context.Context) ([]models.AccountSnapshot, error) {
	if c.baseURL == "" {
		return nil, ErrUnsupported
	}
	if c.apiKey == "" {
		return nil, ErrNoCredentials
	}

	var resp balanceResponse
	if err := c.get(ctx, "/api/v5/account/balance", true, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch balance")
	}
	if resp.Code != "0" {
		return nil, errors.Errorf("balance error: code=%s msg=%s", resp.Code, resp.Msg)
	}

	now := time.Now()
	var out []models.AccountSnapshot
	for _, d := range resp.Data {
		for _, b := range d.Details {
			total, _ := strconv.ParseFloat(b.CashBal, 64)
			free, _ := strconv.ParseFloat(b.AvailBal, 64)
			used, _ := strconv.ParseFloat(b.FrozenBal, 64)
			out = append(out, models.AccountSnapshot{
				Currency:   b.Ccy,
				Total:      total,
				Free:       free,
				Used:       used,
				ObservedAt: now,
			})
		}
	}
	return out, nil
}

func (c *Client) FetchPositions(ctx context.Context) ([]models.Position, error) {
	if c.baseURL == "" {
		return nil, ErrUnsupported
	}
	if c.apiKey == "" {
		return nil, ErrNoCredentials
	}

	var resp positionsResponse
	if err := c.get(ctx, "/api/v5/account/positions", true, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch positions")
	}
	if resp.Code != "0" {
		return nil, errors.Errorf("positions error: code=%s msg=%s", resp.Code, resp.Msg)
	}

	return mapPositions(resp.Data), nil
}

func mapPositions(rows []positionRow) []models.Position {
	now := time.Now()
	out := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		size, _ := strconv.ParseFloat(r.Pos, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.AvgPx, 64)
		updated := now
		if ms, err := strconv.ParseInt(r.UTime, 10, 64); err == nil && ms > 0 {
			updated = time.UnixMilli(ms)
		}
		out = append(out, models.Position{
			Instrument: instrumentOf(r.InstID),
			Size:       size,
			Entry:      entry,
			UpdatedAt:  updated,
		})
	}
	return out
}

func (c *Client) FetchOHLCV(ctx context.Context, inst models.Instrument, timeframe string, limit int) ([]models.Candle, error) {
	if c.baseURL == "" {
		return nil, ErrUnsupported
	}
	if limit <= 0 {
		limit = 100
	}

	var resp candlesResponse
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", instIDOf(inst), timeframe, limit)
	if err := c.get(ctx, path, false, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch candles")
	}
	if resp.Code != "0" {
		return nil, errors.Errorf("candles error: code=%s msg=%s", resp.Code, resp.Msg)
	}

	out := make([]models.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		o, _ := strconv.ParseFloat(row[1], 64)
		h, _ := strconv.ParseFloat(row[2], 64)
		l, _ := strconv.ParseFloat(row[3], 64)
		cl, _ := strconv.ParseFloat(row[4], 64)
		vol, _ := strconv.ParseFloat(row[5], 64)
		out = append(out, models.Candle{Ts: time.UnixMilli(ms), Open: o, High: h, Low: l, Close: cl, Volume: vol})
	}
	return out, nil
}

// PlaceOrder forwards to the venue's order endpoint and surfaces its result
// verbatim. Simulated orders never reach here.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if c.baseURL == "" {
		return models.OrderResult{}, ErrUnsupported
	}
	if c.apiKey == "" {
		return models.OrderResult{}, ErrNoCredentials
	}

	payload := map[string]string{
		"instId":  instIDOf(req.Instrument),
		"tdMode":  "cash",
		"side":    strings.ToLower(req.Side),
		"ordType": req.Type,
		"sz":      strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	if req.Type == models.OrderLimit {
		payload["px"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return models.OrderResult{}, err
	}

	var resp orderResponse
	if err := c.post(ctx, "/api/v5/trade/order", string(body), &resp); err != nil {
		return models.OrderResult{}, errors.Wrap(err, "place order")
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return models.OrderResult{}, errors.Errorf("order rejected: code=%s msg=%s", resp.Code, resp.Msg)
	}
	d := resp.Data[0]
	if d.SCode != "" && d.SCode != "0" {
		return models.OrderResult{}, errors.Errorf("order rejected: sCode=%s sMsg=%s", d.SCode, d.SMsg)
	}

	return models.OrderResult{
		ID:         d.OrdID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Status:     "submitted",
		CreatedAt:  time.Now(),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, signed bool, out any) error {
	return c.do(ctx, http.MethodGet, path, "", signed, out)
}

func (c *Client) post(ctx context.Context, path, body string, out any) error {
	return c.do(ctx, http.MethodPost, path, body, true, out)
}

func (c *Client) do(ctx context.Context, method, path, body string, signed bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", sign(c.apiSecret, ts+strings.ToUpper(method)+path+body))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}
	return sonic.Unmarshal(rb, out)
}

func sign(secret, msg string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
