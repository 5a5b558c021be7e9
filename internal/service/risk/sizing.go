// Package risk converts an account balance, a risk percentage and a stop-loss
// distance into a broker-valid position size. Pure computation, no I/O.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avelios/terminal-gateway/internal/entity"
)

var hundred = decimal.NewFromInt(100)

type SizingInput struct {
	Balance       decimal.Decimal
	RiskPercent   decimal.Decimal
	EntryPrice    decimal.Decimal
	StopLossPrice decimal.Decimal
	Instrument    entity.Instrument
}

type SizingResult struct {
	Volume       decimal.Decimal `json:"volume"`
	RiskAmount   decimal.Decimal `json:"risk_amount"`
	LossPerUnit  decimal.Decimal `json:"loss_per_unit"`
	ClampedToMin bool            `json:"clamped_to_min"`
	ClampedToMax bool            `json:"clamped_to_max"`
}

// ComputeSize derives the volume that risks RiskPercent of Balance between
// entry and stop, rounded DOWN to the instrument's volume step (never past the
// requested risk) and clamped to [VolumeMin, VolumeMax].
func ComputeSize(in SizingInput) (SizingResult, error) {
	if err := validateRisk(in.Balance, in.RiskPercent); err != nil {
		return SizingResult{}, err
	}

	priceDistance := in.EntryPrice.Sub(in.StopLossPrice).Abs()
	if priceDistance.IsZero() {
		return SizingResult{}, fmt.Errorf("%w: stop loss equals entry price", entity.ErrInvalidRiskInput)
	}

	return computeFromDistance(in.Balance, in.RiskPercent, priceDistance, in.Instrument)
}

// ComputeSizeFromTicks sizes from a stop distance expressed in ticks instead
// of a price level.
func ComputeSizeFromTicks(balance, riskPercent, tickDistance decimal.Decimal, instrument entity.Instrument) (SizingResult, error) {
	if err := validateRisk(balance, riskPercent); err != nil {
		return SizingResult{}, err
	}

	if !tickDistance.IsPositive() {
		return SizingResult{}, fmt.Errorf("%w: tick distance must be positive, got %s", entity.ErrInvalidRiskInput, tickDistance)
	}
	if !instrument.TickSize.IsPositive() {
		return SizingResult{}, fmt.Errorf("%w: instrument %s has no tick size/value", entity.ErrInvalidRiskInput, instrument.Symbol)
	}

	return computeFromDistance(balance, riskPercent, tickDistance.Mul(instrument.TickSize), instrument)
}

func validateRisk(balance, riskPercent decimal.Decimal) error {
	if !balance.IsPositive() {
		return fmt.Errorf("%w: balance must be positive, got %s", entity.ErrInvalidRiskInput, balance)
	}
	if !riskPercent.IsPositive() {
		return fmt.Errorf("%w: risk percent must be positive, got %s", entity.ErrInvalidRiskInput, riskPercent)
	}

	return nil
}

func computeFromDistance(balance, riskPercent, priceDistance decimal.Decimal, instrument entity.Instrument) (SizingResult, error) {
	if !instrument.TickSize.IsPositive() || !instrument.TickValue.IsPositive() {
		return SizingResult{}, fmt.Errorf("%w: instrument %s has no tick size/value", entity.ErrInvalidRiskInput, instrument.Symbol)
	}

	riskAmount := balance.Mul(riskPercent).Div(hundred)
	ticksAtRisk := priceDistance.Div(instrument.TickSize)
	lossPerUnit := ticksAtRisk.Mul(instrument.TickValue)

	volume := riskAmount.Div(lossPerUnit)

	result := SizingResult{
		RiskAmount:  riskAmount,
		LossPerUnit: lossPerUnit,
	}

	if step := instrument.VolumeStep; step.IsPositive() {
		volume = volume.Div(step).Floor().Mul(step)
	}

	if min := instrument.VolumeMin; min.IsPositive() && volume.LessThan(min) {
		volume = min
		result.ClampedToMin = true
	}
	if max := instrument.VolumeMax; max.IsPositive() && volume.GreaterThan(max) {
		volume = max
		result.ClampedToMax = true
	}

	result.Volume = volume

	return result, nil
}
