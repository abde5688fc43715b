package domain

import (
	"time"
)

type Period string

const (
	Period5m  Period = "5m"
	Period1h  Period = "1h"
	Period6h  Period = "6h"
	Period24h Period = "24h"
)

// Snapshot is the best-known view of one symbol's market data.
type Snapshot struct {
	Symbol      string             `json:"symbol"`
	Price       float64            `json:"price"`
	PriceChange map[Period]float64 `json:"priceChange"`
	Volume      string             `json:"volume,omitempty"`
	Liquidity   string             `json:"liquidity,omitempty"`
	Supply      string             `json:"supply,omitempty"`
	Txns        Txns               `json:"txns"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Txns counts buys and sells in the most recent trade sample.
type Txns struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

func (t Txns) IsZero() bool {
	return t.Buys == 0 && t.Sells == 0
}

// Tick is a partial streaming update. Nil fields were absent from the message.
type Tick struct {
	Price      *float64
	Change24h  *float64
	ReceivedAt time.Time
}

func (s Snapshot) Clone() Snapshot {
	out := s
	if s.PriceChange != nil {
		out.PriceChange = make(map[Period]float64, len(s.PriceChange))
		for k, v := range s.PriceChange {
			out.PriceChange[k] = v
		}
	}
	return out
}

// ApplyTick returns a copy of s with the tick's price and 24h change applied.
// Every other field, including the extrapolated shorter windows, is kept.
func (s Snapshot) ApplyTick(t Tick) Snapshot {
	out := s.Clone()
	if t.Price != nil {
		out.Price = *t.Price
	}
	if t.Change24h != nil {
		if out.PriceChange == nil {
			out.PriceChange = make(map[Period]float64, 1)
		}
		out.PriceChange[Period24h] = *t.Change24h
	}
	if !t.ReceivedAt.IsZero() {
		out.UpdatedAt = t.ReceivedAt
	}
	return out
}

// Merge returns a copy of s overlaid with the set fields of u. Zero values in
// u do not overwrite; price change periods are merged key by key.
func (s Snapshot) Merge(u Snapshot) Snapshot {
	out := s.Clone()
	if u.Symbol != "" {
		out.Symbol = u.Symbol
	}
	if u.Price != 0 {
		out.Price = u.Price
	}
	if len(u.PriceChange) > 0 {
		if out.PriceChange == nil {
			out.PriceChange = make(map[Period]float64, len(u.PriceChange))
		}
		for k, v := range u.PriceChange {
			out.PriceChange[k] = v
		}
	}
	if u.Volume != "" {
		out.Volume = u.Volume
	}
	if u.Liquidity != "" {
		out.Liquidity = u.Liquidity
	}
	if u.Supply != "" {
		out.Supply = u.Supply
	}
	if !u.Txns.IsZero() {
		out.Txns = u.Txns
	}
	if !u.UpdatedAt.IsZero() {
		out.UpdatedAt = u.UpdatedAt
	}
	return out
}

// ExtrapolateChanges derives the shorter windows by dividing the 24h change
// linearly. These are estimates, not measurements; only 24h is exact.
func ExtrapolateChanges(change24h float64) map[Period]float64 {
	return map[Period]float64{
		Period5m:  change24h / 288,
		Period1h:  change24h / 24,
		Period6h:  change24h / 4,
		Period24h: change24h,
	}
}
