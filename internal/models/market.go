package models

import "time"

// PricePoint is the last observed price for an instrument.
// ObservedAt is monotonically non-decreasing per instrument: the cache
// rejects points older than the one it already holds.
type PricePoint struct {
	Instrument Instrument
	Price      float64
	ObservedAt time.Time
}

func (p PricePoint) Age(now time.Time) time.Duration { return now.Sub(p.ObservedAt) }

// AccountSnapshot is the balance view for one quote currency.
type AccountSnapshot struct {
	Currency   string
	Total      float64
	Free       float64
	Used       float64
	ObservedAt time.Time
}

type Candle struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
