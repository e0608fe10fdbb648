package models

import (
	"math"
	"time"
)

// Candle is one OHLCV bar for a time interval. Series are kept in
// chronological order; an individual bar may still be malformed and is
// skipped by consumers rather than failing the whole series.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// WellFormed reports whether the bar carries usable numbers: finite prices,
// high >= low, and a non-negative volume.
func (c Candle) WellFormed() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.High >= c.Low && c.Volume >= 0
}
