package decision

import (
	"errors"
	"fmt"
)

// ErrInvalidParams — параметры Decision Engine вне допустимых диапазонов.
var ErrInvalidParams = errors.New("invalid decision params")

// Params — бизнес-параметры Decision Engine.
//
// Все значения задаются конфигурацией; DefaultParams возвращает
// значения по умолчанию.
type Params struct {
	// Веса сигналов в upside. В сумме должны давать 1.
	GrowthWeight     float64 `yaml:"growth_weight"`
	MarginWeight     float64 `yaml:"margin_weight"`
	CashFlowWeight   float64 `yaml:"cashflow_weight"`
	EfficiencyWeight float64 `yaml:"efficiency_weight"`

	// LeverageThreshold — порог NetDebt/EBITDA, выше которого сделка считается закредитованной.
	LeverageThreshold float64 `yaml:"leverage_threshold"`

	// ConcentrationThreshold — порог концентрации клиентов.
	ConcentrationThreshold float64 `yaml:"concentration_threshold"`

	// FlagPenalty — вклад одного флага риска в bearish.
	FlagPenalty float64 `yaml:"flag_penalty"`

	// LeveragePenaltyMultiplier — множитель bearish для закредитованных сделок.
	LeveragePenaltyMultiplier float64 `yaml:"leverage_penalty_multiplier"`

	UpsideWeight          float64 `yaml:"upside_weight"`
	DownsideWeightNormal  float64 `yaml:"downside_weight_normal"`
	DownsideWeightLevered float64 `yaml:"downside_weight_levered"`

	// AcceptCutoff — минимальный score для ACCEPT.
	AcceptCutoff float64 `yaml:"accept_cutoff"`
}

// DefaultParams возвращает параметры по умолчанию.
func DefaultParams() Params {
	return Params{
		GrowthWeight:              0.30,
		MarginWeight:              0.35,
		CashFlowWeight:            0.25,
		EfficiencyWeight:          0.10,
		LeverageThreshold:         4.0,
		ConcentrationThreshold:    0.40,
		FlagPenalty:               0.35,
		LeveragePenaltyMultiplier: 2.0,
		UpsideWeight:              1.2,
		DownsideWeightNormal:      1.0,
		DownsideWeightLevered:     1.3,
		AcceptCutoff:              0.60,
	}
}

// Validate проверяет диапазоны параметров.
func (p Params) Validate() error {
	weights := []float64{p.GrowthWeight, p.MarginWeight, p.CashFlowWeight, p.EfficiencyWeight}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: negative signal weight", ErrInvalidParams)
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: signal weights sum to %.4f", ErrInvalidParams, sum)
	}

	if p.LeverageThreshold <= 0 {
		return fmt.Errorf("%w: leverage_threshold must be positive", ErrInvalidParams)
	}
	if p.ConcentrationThreshold <= 0 || p.ConcentrationThreshold > 1 {
		return fmt.Errorf("%w: concentration_threshold must be in (0, 1]", ErrInvalidParams)
	}
	if p.FlagPenalty < 0 || p.FlagPenalty > 1 {
		return fmt.Errorf("%w: flag_penalty must be in [0, 1]", ErrInvalidParams)
	}
	if p.LeveragePenaltyMultiplier < 1 {
		return fmt.Errorf("%w: leverage_penalty_multiplier must be >= 1", ErrInvalidParams)
	}
	if p.UpsideWeight <= 0 || p.DownsideWeightNormal <= 0 || p.DownsideWeightLevered <= 0 {
		return fmt.Errorf("%w: upside/downside weights must be positive", ErrInvalidParams)
	}
	if p.AcceptCutoff < 0 || p.AcceptCutoff > 1 {
		return fmt.Errorf("%w: accept_cutoff must be in [0, 1]", ErrInvalidParams)
	}
	return nil
}
