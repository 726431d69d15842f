package trades

import (
	"github.com/shopspring/decimal"
)

// PnLPlaces is the number of decimal places stored for realized PnL.
const PnLPlaces = 4

// CalculatePnL returns net realized PnL: the directional gross move times size,
// less fees, rounded half away from zero to four places.
func CalculatePnL(direction Direction, entry, exit, size, fees float64) float64 {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	sz := decimal.NewFromFloat(size)

	var gross decimal.Decimal
	if direction == DirectionShort {
		gross = e.Sub(x).Mul(sz)
	} else {
		gross = x.Sub(e).Mul(sz)
	}

	net := gross.Sub(decimal.NewFromFloat(fees)).Round(PnLPlaces)
	f, _ := net.Float64()
	return f
}

// ComputePnL returns the trade's PnL, or nil when it has no exit price.
func ComputePnL(t *Trade) *float64 {
	if t.ExitPrice == nil {
		return nil
	}
	pnl := CalculatePnL(t.Direction, t.EntryPrice, *t.ExitPrice, t.Size, t.Fees)
	return &pnl
}
