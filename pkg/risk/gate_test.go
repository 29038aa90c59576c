package risk

import (
	"testing"

	"github.com/gregtusar/fomo-trader/pkg/models"
	"github.com/stretchr/testify/assert"
)

var testParams = Parameters{
	MaxPositionSize: 0.01,
	StopLossPct:     0.02,
	TakeProfitPct:   0.03,
}

func TestGate_AllowsBuy(t *testing.T) {
	gate := NewGate(testParams)

	assert.True(t, gate.AllowsBuy(models.Position{}), "Empty position should allow buys")
	assert.True(t, gate.AllowsBuy(models.Position{Size: 0.0099}))
	assert.False(t, gate.AllowsBuy(models.Position{Size: 0.01}), "Position exactly at the cap should block buys")
	assert.False(t, gate.AllowsBuy(models.Position{Size: 0.02}))
}

func TestGate_RequiresSell_Bands(t *testing.T) {
	gate := NewGate(testParams)
	position := models.Position{Size: 0.005, AverageEntryPrice: 100}

	cases := []struct {
		name  string
		price float64
		want  bool
	}{
		{"inside band", 100, false},
		{"small loss", 99, false},
		{"stop loss boundary", 98, true},
		{"beyond stop loss", 97, true},
		{"small gain", 102, false},
		{"take profit boundary", 103, true},
		{"beyond take profit", 110, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gate.RequiresSell(position, tc.price))
		})
	}
}

func TestGate_RequiresSell_NoCostBasis(t *testing.T) {
	gate := NewGate(testParams)

	assert.False(t, gate.RequiresSell(models.Position{}, 1), "No position means nothing to protect")
	assert.False(t, gate.RequiresSell(models.Position{Size: 1, AverageEntryPrice: 0}, 1))
	assert.False(t, gate.RequiresSell(models.Position{Size: 0, AverageEntryPrice: 100}, 50))
}

func TestChange(t *testing.T) {
	change, ok := Change(models.Position{Size: 0.005, AverageEntryPrice: 100}, 97)
	assert.True(t, ok)
	assert.InDelta(t, -0.03, change, 1e-12)

	_, ok = Change(models.Position{Size: 0.005}, 97)
	assert.False(t, ok)
}
