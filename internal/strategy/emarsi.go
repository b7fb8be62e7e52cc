package strategy

import (
	"sync"

	"perp_bot/internal/models"
)

// Params for the EMA-cross + RSI filter evaluator.
type Params struct {
	EMAShort   int
	EMALong    int
	RSIPeriod  int
	Overbought float64
	Oversold   float64
}

// EMARSI is a streaming evaluator: one Update per observed price, no candle
// history kept. It consumes only the gateway read API output.
type EMARSI struct {
	p Params

	mu       sync.Mutex
	emaShort map[models.Instrument]float64
	emaLong  map[models.Instrument]float64
	rsi      map[models.Instrument]*rsiState
}

type rsiState struct {
	prev        float64
	avgGain     float64
	avgLoss     float64
	initialized bool
}

func NewEMARSI(p Params) *EMARSI {
	return &EMARSI{
		p:        p,
		emaShort: map[models.Instrument]float64{},
		emaLong:  map[models.Instrument]float64{},
		rsi:      map[models.Instrument]*rsiState{},
	}
}

// Update feeds one price and returns ("BUY"/"SELL", true) when a signal
// fires, ("", false) otherwise.
func (s *EMARSI) Update(inst models.Instrument, price float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kShort := 2.0 / float64(s.p.EMAShort+1)
	kLong := 2.0 / float64(s.p.EMALong+1)
	if s.emaShort[inst] == 0 {
		s.emaShort[inst] = price
	}
	if s.emaLong[inst] == 0 {
		s.emaLong[inst] = price
	}
	s.emaShort[inst] = s.emaShort[inst] + kShort*(price-s.emaShort[inst])
	s.emaLong[inst] = s.emaLong[inst] + kLong*(price-s.emaLong[inst])

	r := s.rsi[inst]
	if r == nil {
		r = &rsiState{}
		s.rsi[inst] = r
	}
	if !r.initialized {
		r.prev = price
		r.initialized = true
		return "", false
	}
	change := price - r.prev
	gain := 0.0
	loss := 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	alpha := 1.0 / float64(s.p.RSIPeriod)
	if r.avgGain == 0 && r.avgLoss == 0 {
		r.avgGain, r.avgLoss = gain, loss
	} else {
		r.avgGain = (1-alpha)*r.avgGain + alpha*gain
		r.avgLoss = (1-alpha)*r.avgLoss + alpha*loss
	}
	r.prev = price
	rsi := 100.0 // no observed losses yet
	if r.avgLoss != 0 {
		rs := r.avgGain / r.avgLoss
		rsi = 100 - (100 / (1 + rs))
	}

	if s.emaShort[inst] > s.emaLong[inst] && rsi < s.p.Oversold {
		return models.SideBuy, true
	}
	if s.emaShort[inst] < s.emaLong[inst] && rsi > s.p.Overbought {
		return models.SideSell, true
	}
	return "", false
}
