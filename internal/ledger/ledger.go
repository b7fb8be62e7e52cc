package ledger

import (
	"context"
	"math"
	"sync"
	"time"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	"github.com/pkg/errors"
)

var ErrBadQuantity = errors.New("fill quantity must be positive")

// sizes below this are treated as fully closed
const closeEpsilon = 1e-12

// Ledger is the authoritative book of simulated positions. Entry price is a
// size-weighted average over same-direction fills; a reducing fill keeps the
// entry untouched; a reduction that overshoots past zero closes the position
// and opens the remainder fresh at the fill price. That last rule is a
// deliberate simplification: realized P&L is booked at the average entry, not
// per lot, so FIFO/LIFO accounting downstream cannot be reconstructed from it.
//
// Fills for one instrument are serialized; reads return copies and may run
// concurrently with fills on other instruments.
type Ledger struct {
	store Store

	mu        sync.RWMutex
	positions map[models.Instrument]models.Position
	realized  map[models.Instrument]float64

	fillMu sync.Mutex
	locks  map[models.Instrument]*sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{
		store:     store,
		positions: make(map[models.Instrument]models.Position),
		realized:  make(map[models.Instrument]float64),
		locks:     make(map[models.Instrument]*sync.Mutex),
	}
}

// Load rehydrates the book from durable storage. Zero-size rows are already
// closed and excluded. Must tolerate an empty store on first run.
func (l *Ledger) Load(ctx context.Context) error {
	entries, err := l.store.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "ledger load")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if math.Abs(e.SignedSize) < closeEpsilon {
			continue
		}
		l.positions[e.Instrument] = models.Position{
			Instrument: e.Instrument,
			Size:       e.SignedSize,
			Entry:      e.EntryPrice,
			UpdatedAt:  e.UpdatedAt,
		}
	}
	logger.Info("ledger: loaded %d open positions", len(l.positions))
	return nil
}

func (l *Ledger) lockFor(inst models.Instrument) *sync.Mutex {
	l.fillMu.Lock()
	defer l.fillMu.Unlock()
	m, ok := l.locks[inst]
	if !ok {
		m = &sync.Mutex{}
		l.locks[inst] = m
	}
	return m
}

// ApplyFill mutates the position for inst and persists the result. It
// returns the post-fill position (zero size when fully closed) and the
// realized P&L of this fill. A subsequent Position call reflects the fill
// immediately.
func (l *Ledger) ApplyFill(ctx context.Context, inst models.Instrument, side string, qty, price float64) (models.Position, float64, error) {
	if qty <= 0 {
		return models.Position{}, 0, ErrBadQuantity
	}

	m := l.lockFor(inst)
	m.Lock()
	defer m.Unlock()

	l.mu.RLock()
	cur := l.positions[inst]
	l.mu.RUnlock()

	signed := qty
	if side == models.SideSell {
		signed = -qty
	}

	next := models.Position{Instrument: inst, UpdatedAt: time.Now()}
	var realized float64

	newSize := cur.Size + signed
	switch {
	case cur.Size == 0 || sameSign(cur.Size, signed):
		// opening or extending: size-weighted average entry
		next.Size = newSize
		next.Entry = (math.Abs(cur.Size)*cur.Entry + qty*price) / (math.Abs(cur.Size) + qty)

	case math.Abs(newSize) < closeEpsilon:
		// exact close
		realized = cur.Size * (price - cur.Entry)
		next.Size = 0

	case sameSign(cur.Size, newSize):
		// reduction: entry price untouched
		realized = -signed * (price - cur.Entry)
		next.Size = newSize
		next.Entry = cur.Entry

	default:
		// overshoot through zero: close fully, reopen remainder at fill price
		realized = cur.Size * (price - cur.Entry)
		next.Size = newSize
		next.Entry = price
	}

	l.mu.Lock()
	if next.Size == 0 {
		delete(l.positions, inst)
	} else {
		l.positions[inst] = next
	}
	l.realized[inst] += realized
	next.Realized = l.realized[inst]
	l.mu.Unlock()

	l.persist(ctx, next)

	return next, realized, nil
}

// persist writes the durable projection. Storage failure is logged, not
// surfaced: the in-memory book stays authoritative for the running process
// and the next successful mutation rewrites the row.
func (l *Ledger) persist(ctx context.Context, p models.Position) {
	var err error
	if p.Size == 0 {
		err = l.store.Delete(ctx, p.Instrument)
	} else {
		err = l.store.Save(ctx, models.LedgerEntry{
			Instrument: p.Instrument,
			SignedSize: p.Size,
			EntryPrice: p.Entry,
			UpdatedAt:  p.UpdatedAt,
		})
	}
	if err != nil {
		logger.Error("ledger: persist %s: %v", p.Instrument, err)
	}
}

// Position returns a copy of the open position for inst, ok=false when flat.
func (l *Ledger) Position(inst models.Instrument) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[inst]
	return p, ok
}

func (l *Ledger) List() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// RealizedTotal is the cumulative realized P&L across all instruments since
// process start. In-memory only: the durable schema tracks open positions.
func (l *Ledger) RealizedTotal() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, r := range l.realized {
		total += r
	}
	return total
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
