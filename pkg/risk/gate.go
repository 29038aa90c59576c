package risk

import "github.com/gregtusar/fomo-trader/pkg/models"

// Parameters bound how much the bot may hold and when it must exit.
// StopLossPct and TakeProfitPct are fractions (0.02 = 2%).
type Parameters struct {
	MaxPositionSize float64
	StopLossPct     float64
	TakeProfitPct   float64
}

// Gate evaluates positions against fixed risk parameters. It holds no state.
type Gate struct {
	params Parameters
}

func NewGate(params Parameters) *Gate {
	return &Gate{params: params}
}

func (g *Gate) Parameters() Parameters {
	return g.params
}

// AllowsBuy reports whether the position is strictly below the size cap.
func (g *Gate) AllowsBuy(position models.Position) bool {
	return position.Size < g.params.MaxPositionSize
}

// RequiresSell reports whether price has reached the stop-loss or take-profit band
// relative to the average entry price. Both bands are inclusive.
func (g *Gate) RequiresSell(position models.Position, price float64) bool {
	change, ok := Change(position, price)
	if !ok {
		return false
	}
	return change <= -g.params.StopLossPct || change >= g.params.TakeProfitPct
}

// Change returns the fractional move of price from the entry price. ok is false
// when there is no open position or no cost basis to measure against.
func Change(position models.Position, price float64) (change float64, ok bool) {
	if position.Size <= 0 || position.AverageEntryPrice <= 0 {
		return 0, false
	}
	return (price - position.AverageEntryPrice) / position.AverageEntryPrice, true
}
