package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"perp_bot/internal/cache"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// Feed states. Any I/O or protocol error drops back to Disconnected and the
// supervising loop reconnects; the loop never terminates the process.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

// PositionsKey is the account-cache key holding the full open-position list
// rebuilt from every account frame.
const PositionsKey = "__positions__"

type FillNotifier interface {
	Sendf(format string, args ...any)
}

// Feed is the push half of state synchronization: one long-lived websocket
// per process feeding the price and account caches. Fill confirmations are
// observed and forwarded, never replayed into the ledger.
type Feed struct {
	dialer *websocket.Dialer

	wsURL      string
	apiKey     string
	apiSecret  string
	passphrase string
	accountID  string

	instruments []models.Instrument

	prices    *cache.Cache[models.Instrument, models.PricePoint]
	account   *cache.Cache[string, models.AccountSnapshot]
	positions *cache.Cache[string, []models.Position]

	n FillNotifier

	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewFeed(
	cfg *config.Config,
	prices *cache.Cache[models.Instrument, models.PricePoint],
	account *cache.Cache[string, models.AccountSnapshot],
	positions *cache.Cache[string, []models.Position],
	n FillNotifier,
) *Feed {
	instruments := make([]models.Instrument, 0, len(cfg.Instruments))
	for _, s := range cfg.Instruments {
		instruments = append(instruments, models.Instrument(s))
	}
	// account and fill channels are only served on the private endpoint;
	// tickers are available on both, so one authenticated socket suffices
	wsURL := cfg.Exchange.WsPublic
	if cfg.Exchange.APIKey != "" && cfg.Exchange.WsPrivate != "" {
		wsURL = cfg.Exchange.WsPrivate
	}
	return &Feed{
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsURL:       wsURL,
		apiKey:      cfg.Exchange.APIKey,
		apiSecret:   cfg.Exchange.APISecret,
		passphrase:  cfg.Exchange.Passphrase,
		accountID:   cfg.Exchange.AccountID,
		instruments: instruments,
		prices:      prices,
		account:     account,
		positions:   positions,
		n:           n,
	}
}

func (f *Feed) State() int32 { return f.state.Load() }

// Run supervises the connection until ctx is cancelled. Reconnects use a
// capped exponential delay so a flapping venue cannot spin the loop.
func (f *Feed) Run(ctx context.Context) {
	if f.wsURL == "" {
		logger.Warn("feed: no websocket url configured, running on REST fallback only")
		return
	}

	b := &backoff.Backoff{Min: time.Second, Max: 5 * time.Second, Factor: 2, Jitter: true}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.state.Store(StateConnecting)
		conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
		if err != nil {
			f.state.Store(StateDisconnected)
			logger.Warn("feed: dial %s: %v", f.wsURL, err)
			if !sleep(ctx, b.Duration()) {
				return
			}
			continue
		}
		f.setConn(conn)

		if err := f.subscribe(conn); err != nil {
			logger.Warn("feed: subscribe: %v", err)
			_ = conn.Close()
			f.setConn(nil)
			f.state.Store(StateDisconnected)
			if !sleep(ctx, b.Duration()) {
				return
			}
			continue
		}
		b.Reset()
		f.state.Store(StateSubscribed)

		readerDone := make(chan struct{})

		// close the socket on shutdown so the blocked read returns
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-readerDone:
			}
		}()

		stopPing := make(chan struct{})
		go f.keepAlive(ctx, stopPing)

		f.state.Store(StateStreaming)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("feed: read: %v", err)
				}
				break
			}
			f.handleMessage(msg)
		}

		close(stopPing)
		close(readerDone)
		_ = conn.Close()
		f.setConn(nil)
		f.state.Store(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		default:
			if !sleep(ctx, b.Duration()) {
				return
			}
		}
	}
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
}

func (f *Feed) send(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.WriteJSON(v)
}

// subscribe issues the price-stream subscription and, when credentials are
// configured, the authenticated login. Private channels are subscribed only
// after the venue acknowledges the login.
func (f *Feed) subscribe(conn *websocket.Conn) error {
	args := make([]map[string]string, 0, len(f.instruments))
	for _, inst := range f.instruments {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  instIDOf(inst),
		})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return err
	}

	if f.apiKey == "" {
		return nil
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return conn.WriteJSON(map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     f.apiKey,
			"passphrase": f.passphrase,
			"timestamp":  ts,
			"sign":       sign(f.apiSecret, ts+"GET"+"/users/self/verify"),
		}},
	})
}

func (f *Feed) subscribePrivate() {
	err := f.send(map[string]any{
		"op":   "subscribe",
		"args": f.privateArgs(),
	})
	if err != nil {
		logger.Warn("feed: private subscribe: %v", err)
	}
}

func (f *Feed) privateArgs() []map[string]string {
	args := []map[string]string{
		{"channel": "account"},
		{"channel": "fills"},
	}
	if f.accountID != "" {
		for _, a := range args {
			a["acctId"] = f.accountID
		}
	}
	return args
}

// keepAlive pings every 20s, otherwise the venue drops idle connections.
// Pings go through send: the reader goroutine also writes on a login ack, and
// the connection allows only one concurrent writer.
func (f *Feed) keepAlive(ctx context.Context, stop <-chan struct{}) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			if err := f.send(map[string]string{"op": "ping"}); err != nil {
				logger.Warn("feed: ping: %v", err)
			}
		}
	}
}

type wsFrame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

type accountData struct {
	Details   []balanceDetail `json:"details"`
	Positions []positionRow   `json:"positions"`
}

type fillData struct {
	InstID  string `json:"instId"`
	Side    string `json:"side"`
	FillSz  string `json:"fillSz"`
	FillPx  string `json:"fillPx"`
	TradeID string `json:"tradeId"`
}

// handleMessage classifies one inbound frame by its channel tag and applies
// it to the caches. A malformed frame is dropped and logged, never fatal.
func (f *Feed) handleMessage(msg []byte) {
	var frame wsFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		logger.Warn("feed: malformed frame dropped: %v", err)
		return
	}

	if frame.Event != "" {
		f.handleEvent(frame)
		return
	}

	switch frame.Arg.Channel {
	case "tickers":
		f.applyTickers(frame.Data)
	case "account":
		f.applyAccount(frame.Data)
	case "fills":
		f.applyFills(frame.Data)
	default:
		// unknown topic, ignore
	}
}

func (f *Feed) handleEvent(frame wsFrame) {
	switch frame.Event {
	case "login":
		if frame.Code != "" && frame.Code != "0" {
			// degrade to price-only streaming rather than abort
			logger.Warn("feed: login rejected (code=%s msg=%s), account stream disabled", frame.Code, frame.Msg)
			return
		}
		logger.Info("feed: authenticated, subscribing account stream")
		f.subscribePrivate()
	case "error":
		logger.Warn("feed: venue error: code=%s msg=%s", frame.Code, frame.Msg)
	case "subscribe":
		// ack, nothing to do
	}
}

func (f *Feed) applyTickers(data json.RawMessage) {
	var rows []tickerData
	if err := sonic.Unmarshal(data, &rows); err != nil {
		logger.Warn("feed: malformed ticker payload dropped: %v", err)
		return
	}
	now := time.Now()
	for _, row := range rows {
		last, err := strconv.ParseFloat(row.Last, 64)
		if err != nil || last <= 0 {
			continue
		}
		inst := instrumentOf(row.InstID)
		f.prices.Put(inst, models.PricePoint{
			Instrument: inst,
			Price:      last,
			ObservedAt: now,
		}, now)
	}
}

func (f *Feed) applyAccount(data json.RawMessage) {
	var rows []accountData
	if err := sonic.Unmarshal(data, &rows); err != nil {
		logger.Warn("feed: malformed account payload dropped: %v", err)
		return
	}
	now := time.Now()
	for _, row := range rows {
		for _, b := range row.Details {
			total, _ := strconv.ParseFloat(b.CashBal, 64)
			free, _ := strconv.ParseFloat(b.AvailBal, 64)
			used, _ := strconv.ParseFloat(b.FrozenBal, 64)
			f.account.Put(b.Ccy, models.AccountSnapshot{
				Currency:   b.Ccy,
				Total:      total,
				Free:       free,
				Used:       used,
				ObservedAt: now,
			}, now)
		}
		// the payload always carries the full list, so rebuild wholesale
		f.positions.Put(PositionsKey, mapPositions(row.Positions), now)
	}
}

func (f *Feed) applyFills(data json.RawMessage) {
	var rows []fillData
	if err := sonic.Unmarshal(data, &rows); err != nil {
		logger.Warn("feed: malformed fill payload dropped: %v", err)
		return
	}
	for _, fill := range rows {
		logger.Info("feed: fill observed %s %s %s @ %s", fill.Side, fill.FillSz, fill.InstID, fill.FillPx)
		if f.n != nil {
			f.n.Sendf("fill: %s %s %s @ %s", fill.Side, fill.FillSz, fill.InstID, fill.FillPx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
