package indicator

import (
	"math"
	"strconv"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// ADX calculates Wilder's Average Directional Index with its +DI and -DI lines.
//
// Warm-up, for period p:
//   - +DI/-DI are defined once p directional movements are summed (candle index p)
//   - ADX is the mean of the first p DX values (candle index 2p-1), Wilder-smoothed after
type ADX struct {
	period int
	count  int

	prevHigh, prevLow, prevClose float64

	// Wilder running sums of TR, +DM, -DM
	moves  int
	trSum  float64
	pdmSum float64
	ndmSum float64

	plusDI  float64
	minusDI float64

	dxCount int
	dxSum   float64
	adx     float64
}

// NewADX creates a new ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string { return "ADX_" + strconv.Itoa(a.period) }

func (a *ADX) Update(candle model.Candle) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = candle.High, candle.Low, candle.Close
		return
	}

	tr := trueRange(candle, a.prevClose)
	upMove := candle.High - a.prevHigh
	downMove := a.prevLow - candle.Low
	a.prevHigh, a.prevLow, a.prevClose = candle.High, candle.Low, candle.Close

	pdm, ndm := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		ndm = downMove
	}

	p := float64(a.period)
	a.moves++
	if a.moves <= a.period {
		a.trSum += tr
		a.pdmSum += pdm
		a.ndmSum += ndm
		if a.moves < a.period {
			return
		}
	} else {
		a.trSum = a.trSum - a.trSum/p + tr
		a.pdmSum = a.pdmSum - a.pdmSum/p + pdm
		a.ndmSum = a.ndmSum - a.ndmSum/p + ndm
	}

	if a.trSum > 0 {
		a.plusDI = 100 * a.pdmSum / a.trSum
		a.minusDI = 100 * a.ndmSum / a.trSum
	} else {
		a.plusDI, a.minusDI = 0, 0
	}

	dx := 0.0
	if sum := a.plusDI + a.minusDI; sum > 0 {
		dx = 100 * math.Abs(a.plusDI-a.minusDI) / sum
	}

	a.dxCount++
	if a.dxCount <= a.period {
		a.dxSum += dx
		if a.dxCount == a.period {
			a.adx = a.dxSum / p
		}
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}

// Value returns ADX.
func (a *ADX) Value() float64 { return a.adx }

// Ready reports whether ADX itself is defined.
func (a *ADX) Ready() bool { return a.dxCount >= a.period }

// PlusDI returns +DI.
func (a *ADX) PlusDI() float64 { return a.plusDI }

// MinusDI returns -DI.
func (a *ADX) MinusDI() float64 { return a.minusDI }

// DIReady reports whether +DI/-DI are defined.
func (a *ADX) DIReady() bool { return a.moves >= a.period }
