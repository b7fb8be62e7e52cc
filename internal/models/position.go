package models

import "time"

const (
	SideLong  = "long"
	SideShort = "short"
	SideFlat  = "flat"
)

// Position is the simulated book entry for one instrument. Size is signed:
// positive long, negative short. A zero-size position is never stored.
type Position struct {
	Instrument Instrument
	Size       float64
	Entry      float64
	Realized   float64
	UpdatedAt  time.Time
}

func (p Position) Side() string {
	switch {
	case p.Size > 0:
		return SideLong
	case p.Size < 0:
		return SideShort
	default:
		return SideFlat
	}
}

// Unrealized P&L at the given mark price.
func (p Position) Unrealized(mark float64) float64 {
	return (mark - p.Entry) * p.Size
}

// LedgerEntry is the durable projection of a Position. A zero SignedSize
// write is equivalent to a delete.
type LedgerEntry struct {
	Instrument Instrument
	SignedSize float64
	EntryPrice float64
	UpdatedAt  time.Time
}
