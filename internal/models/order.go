package models

import "time"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const (
	OrderMarket = "market"
	OrderLimit  = "limit"
)

type OrderRequest struct {
	Instrument Instrument
	Side       string // BUY/SELL
	Type       string // market/limit
	Quantity   float64
	Price      float64 // required for limit, optional for market
}

type OrderResult struct {
	ID         string
	Instrument Instrument
	Side       string
	Quantity   float64
	Price      float64
	Status     string
	Simulated  bool
	CreatedAt  time.Time
}

// TradeEvent is the record emitted to the notifier on every accepted order.
type TradeEvent struct {
	Instrument Instrument `json:"instrument"`
	Side       string     `json:"side"`
	Price      float64    `json:"price"`
	Quantity   float64    `json:"quantity"`
	Realized   float64    `json:"realized"`
	Unrealized float64    `json:"unrealized"`
	Simulated  bool       `json:"simulated"`
	At         time.Time  `json:"at"`
}

// Report is the periodic account summary emitted to the notifier.
type Report struct {
	Equity        float64   `json:"equity"`
	StartEquity   float64   `json:"start_equity"`
	Change        float64   `json:"change"`
	Unrealized    float64   `json:"unrealized"`
	OpenPositions int       `json:"open_positions"`
	At            time.Time `json:"at"`
}
