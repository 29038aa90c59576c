package strategy

import (
	"errors"
	"fmt"
)

// Signal is the directional indicator produced from the price trend.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// ErrInvalidWindows is returned when the short window is not strictly smaller than the long one.
var ErrInvalidWindows = errors.New("short_window must be smaller than long_window")

// Momentum compares a short and a long simple moving average over a bounded price window.
type Momentum struct {
	shortWindow int
	longWindow  int
	prices      []float64
}

func NewMomentum(shortWindow, longWindow int) (*Momentum, error) {
	if shortWindow <= 0 {
		return nil, fmt.Errorf("short_window %d: %w", shortWindow, ErrInvalidWindows)
	}
	if shortWindow >= longWindow {
		return nil, fmt.Errorf("short_window %d, long_window %d: %w", shortWindow, longWindow, ErrInvalidWindows)
	}

	return &Momentum{
		shortWindow: shortWindow,
		longWindow:  longWindow,
		prices:      make([]float64, 0, longWindow),
	}, nil
}

// Update records a price and returns the signal for the current window.
// HOLD is returned until the window holds longWindow samples.
func (m *Momentum) Update(price float64) Signal {
	m.prices = append(m.prices, price)
	if len(m.prices) > m.longWindow {
		m.prices = m.prices[1:]
	}

	if len(m.prices) < m.longWindow {
		return SignalHold
	}

	shortAvg := mean(m.prices[len(m.prices)-m.shortWindow:])
	longAvg := mean(m.prices)

	switch {
	case shortAvg > longAvg:
		return SignalBuy
	case shortAvg < longAvg:
		return SignalSell
	default:
		return SignalHold
	}
}

func (m *Momentum) Len() int {
	return len(m.prices)
}

// Prices returns a copy of the window, oldest first.
func (m *Momentum) Prices() []float64 {
	out := make([]float64, len(m.prices))
	copy(out, m.prices)
	return out
}

func (m *Momentum) ShortWindow() int { return m.shortWindow }
func (m *Momentum) LongWindow() int  { return m.longWindow }

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
