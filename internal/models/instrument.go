package models

import "strings"

// Instrument is a trading pair in BASE/QUOTE form, e.g. "ETH/USDC".
// It is the key for the price cache and the position ledger.
type Instrument string

func (i Instrument) String() string { return string(i) }

func (i Instrument) Valid() bool {
	base, quote := i.Split()
	return base != "" && quote != ""
}

func (i Instrument) Split() (base, quote string) {
	s := string(i)
	idx := strings.IndexByte(s, '/')
	if idx <= 0 || idx == len(s)-1 {
		return "", ""
	}
	return s[:idx], s[idx+1:]
}

func (i Instrument) Base() string {
	base, _ := i.Split()
	return base
}

func (i Instrument) Quote() string {
	_, quote := i.Split()
	return quote
}
