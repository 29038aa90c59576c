package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMomentum_RejectsInvalidWindows(t *testing.T) {
	cases := []struct {
		name        string
		short, long int
	}{
		{"equal", 5, 5},
		{"short longer", 20, 5},
		{"zero short", 0, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewMomentum(tc.short, tc.long)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalidWindows)
		})
	}
}

func TestMomentum_HoldsUntilWindowIsFull(t *testing.T) {
	m, err := NewMomentum(2, 5)
	require.NoError(t, err)

	// Strongly trending input must still be HOLD while history is short
	for _, p := range []float64{1, 10, 100, 1000} {
		assert.Equal(t, SignalHold, m.Update(p), "Signal should be HOLD with insufficient history")
	}
	assert.Equal(t, 4, m.Len())
}

func TestMomentum_BuyScenario(t *testing.T) {
	m, err := NewMomentum(1, 3)
	require.NoError(t, err)

	m.Update(10)
	m.Update(10)
	assert.Equal(t, SignalHold, m.Update(10), "Flat window should be HOLD")

	// short_avg = 20, long_avg = (10+10+20)/3
	assert.Equal(t, SignalBuy, m.Update(20))
	assert.Equal(t, []float64{10, 10, 20}, m.Prices(), "Oldest price should be evicted")
}

func TestMomentum_IncreasingSequenceIsBuy(t *testing.T) {
	m, err := NewMomentum(5, 20)
	require.NoError(t, err)

	var last Signal
	for i := 1; i <= 25; i++ {
		last = m.Update(float64(100 + i))
	}

	assert.Equal(t, SignalBuy, last)
	assert.Equal(t, 20, m.Len(), "Window should be capped at long_window")
}

func TestMomentum_DecreasingSequenceIsSell(t *testing.T) {
	m, err := NewMomentum(5, 20)
	require.NoError(t, err)

	var last Signal
	for i := 1; i <= 25; i++ {
		last = m.Update(float64(200 - i))
	}

	assert.Equal(t, SignalSell, last)
}

func TestMomentum_TieIsHold(t *testing.T) {
	m, err := NewMomentum(2, 4)
	require.NoError(t, err)

	// short = (5+5)/2, long = (5+5+5+5)/4
	for _, p := range []float64{5, 5, 5} {
		m.Update(p)
	}
	assert.Equal(t, SignalHold, m.Update(5))
}

func TestMomentum_PricesReturnsCopy(t *testing.T) {
	m, err := NewMomentum(1, 2)
	require.NoError(t, err)
	m.Update(1)

	prices := m.Prices()
	prices[0] = 99

	assert.Equal(t, []float64{1}, m.Prices())
}
