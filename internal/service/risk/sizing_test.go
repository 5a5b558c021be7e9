package risk_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/risk"
)

func forexInstrument() entity.Instrument {
	return entity.Instrument{
		Symbol:     "EURUSD",
		TickSize:   decimal.NewFromFloat(0.0001),
		TickValue:  decimal.NewFromInt(1),
		VolumeMin:  decimal.NewFromFloat(0.01),
		VolumeMax:  decimal.NewFromInt(100),
		VolumeStep: decimal.NewFromFloat(0.01),
	}
}

func TestComputeSize(t *testing.T) {
	// 1% of 10000 = 100 at risk; 50 ticks to the stop at 1 per tick per lot
	// means 50 lost per lot, so 2 lots.
	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       decimal.NewFromInt(10000),
		RiskPercent:   decimal.NewFromInt(1),
		EntryPrice:    decimal.NewFromFloat(1.1000),
		StopLossPrice: decimal.NewFromFloat(1.0950),
		Instrument:    forexInstrument(),
	})
	require.NoError(t, err)

	assert.True(t, result.Volume.Equal(decimal.NewFromInt(2)), "volume = %s", result.Volume)
	assert.True(t, result.RiskAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.LossPerUnit.Equal(decimal.NewFromInt(50)))
	assert.False(t, result.ClampedToMin)
	assert.False(t, result.ClampedToMax)
}

func TestComputeSizeStopAboveEntry(t *testing.T) {
	// sell setup: the distance is absolute, direction does not matter
	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       decimal.NewFromInt(10000),
		RiskPercent:   decimal.NewFromInt(1),
		EntryPrice:    decimal.NewFromFloat(1.0950),
		StopLossPrice: decimal.NewFromFloat(1.1000),
		Instrument:    forexInstrument(),
	})
	require.NoError(t, err)
	assert.True(t, result.Volume.Equal(decimal.NewFromInt(2)))
}

func TestComputeSizeFloorsToStep(t *testing.T) {
	// raw volume 100/(30*1) = 3.333..., floored to 3.33
	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       decimal.NewFromInt(10000),
		RiskPercent:   decimal.NewFromInt(1),
		EntryPrice:    decimal.NewFromFloat(1.1000),
		StopLossPrice: decimal.NewFromFloat(1.0970),
		Instrument:    forexInstrument(),
	})
	require.NoError(t, err)
	assert.True(t, result.Volume.Equal(decimal.NewFromFloat(3.33)), "volume = %s", result.Volume)
}

func TestComputeSizeClampsToMin(t *testing.T) {
	instrument := forexInstrument()

	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       decimal.NewFromInt(100),
		RiskPercent:   decimal.NewFromFloat(0.1),
		EntryPrice:    decimal.NewFromFloat(1.1000),
		StopLossPrice: decimal.NewFromFloat(1.0000),
		Instrument:    instrument,
	})
	require.NoError(t, err)
	assert.True(t, result.Volume.Equal(instrument.VolumeMin))
	assert.True(t, result.ClampedToMin)
}

func TestComputeSizeClampsToMax(t *testing.T) {
	instrument := forexInstrument()

	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       decimal.NewFromInt(100000000),
		RiskPercent:   decimal.NewFromInt(2),
		EntryPrice:    decimal.NewFromFloat(1.1000),
		StopLossPrice: decimal.NewFromFloat(1.0990),
		Instrument:    instrument,
	})
	require.NoError(t, err)
	assert.True(t, result.Volume.Equal(instrument.VolumeMax))
	assert.True(t, result.ClampedToMax)
}

func TestComputeSizeInvalidInputs(t *testing.T) {
	valid := risk.SizingInput{
		Balance:       decimal.NewFromInt(10000),
		RiskPercent:   decimal.NewFromInt(1),
		EntryPrice:    decimal.NewFromFloat(1.1000),
		StopLossPrice: decimal.NewFromFloat(1.0950),
		Instrument:    forexInstrument(),
	}

	tests := []struct {
		name   string
		mutate func(*risk.SizingInput)
	}{
		{"zero balance", func(in *risk.SizingInput) { in.Balance = decimal.Zero }},
		{"negative balance", func(in *risk.SizingInput) { in.Balance = decimal.NewFromInt(-5) }},
		{"zero risk percent", func(in *risk.SizingInput) { in.RiskPercent = decimal.Zero }},
		{"stop equals entry", func(in *risk.SizingInput) { in.StopLossPrice = in.EntryPrice }},
		{"zero tick size", func(in *risk.SizingInput) { in.Instrument.TickSize = decimal.Zero }},
		{"zero tick value", func(in *risk.SizingInput) { in.Instrument.TickValue = decimal.Zero }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			_, err := risk.ComputeSize(in)
			assert.ErrorIs(t, err, entity.ErrInvalidRiskInput)
		})
	}
}

func TestComputeSizeFromTicks(t *testing.T) {
	// 50 ticks at tick size 0.0001 is the same 0.0050 stop distance.
	result, err := risk.ComputeSizeFromTicks(
		decimal.NewFromInt(10000),
		decimal.NewFromInt(1),
		decimal.NewFromInt(50),
		forexInstrument(),
	)
	require.NoError(t, err)
	assert.True(t, result.Volume.Equal(decimal.NewFromInt(2)), "volume = %s", result.Volume)
}

func TestComputeSizeFromTicksRejectsZeroDistance(t *testing.T) {
	_, err := risk.ComputeSizeFromTicks(
		decimal.NewFromInt(10000),
		decimal.NewFromInt(1),
		decimal.Zero,
		forexInstrument(),
	)
	assert.ErrorIs(t, err, entity.ErrInvalidRiskInput)
}
