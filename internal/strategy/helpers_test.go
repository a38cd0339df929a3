package strategy

import (
	"time"

	"github.com/xdaguy/LTCBOT/internal/model"
)

func zigzag(n int) []model.Candle {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		c := 80.0
		if i%2 == 0 {
			c += 0.6
		}
		out[i] = model.Candle{
			OpenTime: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c - 0.2, High: c + 0.3, Low: c - 0.4, Close: c, Volume: 500,
		}
	}
	return out
}
