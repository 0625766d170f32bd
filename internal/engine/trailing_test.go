package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTrailing_Observe(t *testing.T) {
	tests := []struct {
		name   string
		prices []string
		want   []TrailAction
		stop   string
	}{
		{
			name:   "below activation stays disarmed",
			prices: []string{"100", "100.9"},
			want:   []TrailAction{TrailNone, TrailNone},
			stop:   "0",
		},
		{
			name:   "arms at activation",
			prices: []string{"101"},
			want:   []TrailAction{TrailArmed},
			stop:   "100.495",
		},
		{
			name:   "ratchets once the step is cleared",
			prices: []string{"101", "100.55", "102"},
			want:   []TrailAction{TrailArmed, TrailNone, TrailRatcheted},
			stop:   "101.49",
		},
		{
			name:   "triggers at the stop",
			prices: []string{"101", "102", "101.49"},
			want:   []TrailAction{TrailArmed, TrailRatcheted, TrailTriggered},
			stop:   "101.49",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTrailing(decimal.NewFromInt(1), decimal.RequireFromString("0.5"), decimal.RequireFromString("0.1"))
			tr.SetBreakEven(decimal.NewFromInt(100))
			for i, p := range tt.prices {
				assert.Equal(t, tt.want[i], tr.Observe(decimal.RequireFromString(p)), "price %s", p)
			}
			assert.True(t, tr.Stop().Equal(decimal.RequireFromString(tt.stop)), "stop %s", tr.Stop())
		})
	}
}

func TestTrailing_StopNeverMovesDown(t *testing.T) {
	tr := NewTrailing(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero)
	tr.SetBreakEven(decimal.NewFromInt(100))

	prices := []string{"101", "105", "104", "106", "103.95", "110", "109"}
	prev := decimal.Zero
	for _, p := range prices {
		if tr.Observe(decimal.RequireFromString(p)) == TrailTriggered {
			break
		}
		assert.True(t, tr.Stop().GreaterThanOrEqual(prev), "stop moved down at %s", p)
		prev = tr.Stop()
	}
}

func TestTrailing_BreakEvenFrozenWhileArmed(t *testing.T) {
	tr := NewTrailing(decimal.NewFromInt(1), decimal.RequireFromString("0.5"), decimal.Zero)
	tr.SetBreakEven(decimal.NewFromInt(100))
	assert.Equal(t, TrailArmed, tr.Observe(decimal.NewFromInt(102)))

	tr.SetBreakEven(decimal.NewFromInt(90))
	assert.True(t, tr.Activation().Equal(decimal.NewFromInt(101)))
	assert.True(t, tr.Armed())

	tr.Disarm()
	tr.SetBreakEven(decimal.NewFromInt(90))
	assert.True(t, tr.Activation().Equal(decimal.RequireFromString("90.9")))
}

func TestTrailing_DisabledWithoutDistance(t *testing.T) {
	tr := NewTrailing(decimal.NewFromInt(1), decimal.Zero, decimal.Zero)
	tr.SetBreakEven(decimal.NewFromInt(100))
	assert.Equal(t, TrailNone, tr.Observe(decimal.NewFromInt(200)))
	assert.False(t, tr.Armed())
}

func TestTrailing_Rearm(t *testing.T) {
	tr := NewTrailing(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero)
	tr.Rearm(decimal.NewFromInt(200))
	assert.True(t, tr.Armed())
	assert.True(t, tr.Stop().Equal(decimal.NewFromInt(198)))
	assert.Equal(t, TrailTriggered, tr.Observe(decimal.NewFromInt(197)))
}
