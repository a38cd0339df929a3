package model

import (
	"encoding/json"
	"time"
)

// Candle is a single OHLCV bar for the traded symbol.
// Prices are in quote currency (USDT), volume in base asset units.
type Candle struct {
	OpenTime time.Time `json:"open_time"` // bucket start (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
