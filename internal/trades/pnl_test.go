package trades

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePnL(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		entry     float64
		exit      float64
		size      float64
		fees      float64
		want      float64
	}{
		{"long winner less fees", DirectionLong, 100, 110, 10, 1.5, 98.5},
		{"long loser", DirectionLong, 100, 96, 100, 0, -400},
		{"short winner", DirectionShort, 50, 45, 2, 0, 10},
		{"short loser with fees", DirectionShort, 50, 52.25, 4, 2, -11},
		{"fees turn a scratch into a loss", DirectionLong, 20, 20, 10, 0.65, -0.65},
		{"binary fractions", DirectionLong, 0.1, 0.3, 1, 0, 0.2},
		{"half rounds away from zero", DirectionLong, 1, 1.00001, 5, 0, 0.0001},
		{"negative half rounds away from zero", DirectionShort, 1, 1.00001, 5, 0, -0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculatePnL(tt.direction, tt.entry, tt.exit, tt.size, tt.fees))
		})
	}
}

func TestComputePnLOpenTrade(t *testing.T) {
	open := &Trade{Direction: DirectionLong, EntryPrice: 10, Size: 1}
	assert.Nil(t, ComputePnL(open))

	exit := 12.0
	open.ExitPrice = &exit
	pnl := ComputePnL(open)
	if assert.NotNil(t, pnl) {
		assert.Equal(t, 2.0, *pnl)
	}
}
