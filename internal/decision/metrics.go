package decision

import (
	"fmt"
	"math"

	"github.com/shaiso/DealFlow/internal/domain"
)

// Эталонные значения для нормализации сигналов.
const (
	growthBenchmark    = 0.35
	marginBenchmark    = 0.40
	fcfBurnScale       = 1_000_000.0
	debtCoverYears     = 5.0
	revPerEmpBenchmark = 300_000.0
	grossMarginShare   = 0.4
	ebitdaMarginShare  = 0.6
	fcfShare           = 0.6
	debtCoverShare     = 0.4
)

// Коды жёстких флагов риска.
const (
	FlagLeverage      = "LEVERAGE"
	FlagCashBurn      = "CASH_BURN"
	FlagConcentration = "CONCENTRATION"
)

// Metrics вычисляет количественные сигналы сделки.
//
//   - growth — смесь роста за год и CAGR за 3 года относительно 35%
//   - margin — валовая маржа (40%) и EBITDA-маржа (60%) относительно 40%
//   - cashflow — знак FCF (60%) и покрытие чистого долга EBITDA за 5 лет (40%)
//   - efficiency — выручка на сотрудника относительно $300k
//
// Composite — взвешенная сумма по весам из p.
func Metrics(d *domain.Deal, p Params) domain.ScoutMetrics {
	growth := clamp((0.5*d.RevenueGrowth+0.5*d.RevenueCAGR3Y)/growthBenchmark, 0, 1)

	margin := clamp((d.GrossMargin*grossMarginShare+d.EBITDAMargin*ebitdaMarginShare)/marginBenchmark, 0, 1)

	fcfScore := 1.0
	if d.FreeCashFlow <= 0 {
		fcfScore = math.Max(0, 1+d.FreeCashFlow/fcfBurnScale)
	}
	debtCover := 1.0
	if ebitda := d.EffectiveEBITDA(); ebitda > 0 {
		debtCover = clamp(1-d.NetDebt/(ebitda*debtCoverYears), 0, 1)
	}
	cashflow := fcfShare*fcfScore + debtCoverShare*debtCover

	employees := d.EmployeeCount
	if employees <= 0 {
		employees = 1
	}
	efficiency := clamp(d.Revenue/float64(employees)/revPerEmpBenchmark, 0, 1)

	composite := p.GrowthWeight*growth +
		p.MarginWeight*margin +
		p.CashFlowWeight*cashflow +
		p.EfficiencyWeight*efficiency

	return domain.ScoutMetrics{
		Growth:     Round4(growth),
		Margin:     Round4(margin),
		CashFlow:   Round4(cashflow),
		Efficiency: Round4(efficiency),
		Composite:  Round4(composite),
	}
}

// RiskFlags возвращает жёсткие флаги риска сделки.
// Порядок фиксирован: leverage, cash burn, concentration.
func RiskFlags(d *domain.Deal, p Params) []domain.RiskFlag {
	var flags []domain.RiskFlag

	if ratio, ok := d.NetDebtToEBITDA(); ok && ratio > p.LeverageThreshold {
		flags = append(flags, domain.RiskFlag{
			Code:   FlagLeverage,
			Detail: fmt.Sprintf("Net Debt/EBITDA = %.2fx (threshold: %.1fx)", ratio, p.LeverageThreshold),
		})
	}
	if d.FreeCashFlow < 0 {
		flags = append(flags, domain.RiskFlag{
			Code:   FlagCashBurn,
			Detail: fmt.Sprintf("Negative FCF = $%.0fk (cash burn)", d.FreeCashFlow/1e3),
		})
	}
	if d.CustomerConcentration > p.ConcentrationThreshold {
		flags = append(flags, domain.RiskFlag{
			Code: FlagConcentration,
			Detail: fmt.Sprintf("Customer concentration = %.0f%% (threshold: %.0f%%)",
				d.CustomerConcentration*100, p.ConcentrationThreshold*100),
		})
	}

	return flags
}

// HasFlag проверяет наличие флага с кодом code.
func HasFlag(flags []domain.RiskFlag, code string) bool {
	for _, f := range flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round4 округляет до 4 знаков после запятой.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
