package decision

import (
	"math"

	"github.com/shaiso/DealFlow/internal/domain"
)

// ambiguousBand — полуширина полосы вокруг нейтрального score 0.5,
// внутри которой сигнал считается неоднозначным.
const ambiguousBand = 0.10

// Inputs — числовые факторы, из которых считается score.
type Inputs struct {
	Metrics   domain.ScoutMetrics
	Flags     []domain.RiskFlag
	Leveraged bool
}

// Result — результат оценки Decision Engine.
type Result struct {
	// Score — итоговая оценка в [0, 1].
	Score float64

	// Raw — сырая оценка в [-1, 1] до нормализации.
	Raw float64

	Decision  domain.Decision
	Upside    float64
	Bearish   float64
	Leveraged bool
	Flags     []domain.RiskFlag
}

// View возвращает представление результата для отчёта судьи.
func (r Result) View() domain.EngineView {
	return domain.EngineView{
		Score:     r.Score,
		Decision:  r.Decision,
		Leveraged: r.Leveraged,
		Flags:     len(r.Flags),
	}
}

// InputsFromDeal вычисляет факторы из сырых атрибутов сделки.
// Результаты предыдущих стадий не используются.
func InputsFromDeal(d *domain.Deal, p Params) Inputs {
	flags := RiskFlags(d, p)
	return Inputs{
		Metrics:   Metrics(d, p),
		Flags:     flags,
		Leveraged: HasFlag(flags, FlagLeverage),
	}
}

// Evaluate считает score и решение.
//
// Чистая функция: одинаковые входы всегда дают одинаковый результат.
//
//	upside  = wg*growth + wm*margin + wc*cashflow + we*efficiency
//	bearish = min(1, flags * FlagPenalty), удваивается для закредитованных
//	raw     = clamp(upside*UpsideWeight - bearish*downside, -1, 1)
//	score   = round4((raw + 1) / 2)
func Evaluate(p Params, in Inputs) Result {
	m := in.Metrics
	upside := p.GrowthWeight*m.Growth +
		p.MarginWeight*m.Margin +
		p.CashFlowWeight*m.CashFlow +
		p.EfficiencyWeight*m.Efficiency

	bearish := math.Min(1, float64(len(in.Flags))*p.FlagPenalty)
	downside := p.DownsideWeightNormal
	if in.Leveraged {
		bearish = math.Min(1, bearish*p.LeveragePenaltyMultiplier)
		downside = p.DownsideWeightLevered
	}

	raw := clamp(upside*p.UpsideWeight-bearish*downside, -1, 1)
	score := Round4((raw + 1) / 2)

	decision := domain.DecisionReject
	if score >= p.AcceptCutoff {
		decision = domain.DecisionAccept
	}

	return Result{
		Score:     score,
		Raw:       Round4(raw),
		Decision:  decision,
		Upside:    Round4(upside),
		Bearish:   Round4(bearish),
		Leveraged: in.Leveraged,
		Flags:     in.Flags,
	}
}

// EvaluateDeal — InputsFromDeal + Evaluate.
func EvaluateDeal(d *domain.Deal, p Params) Result {
	return Evaluate(p, InputsFromDeal(d, p))
}

// Gap возвращает расхождение двух направленных оценок.
func Gap(a, b float64) float64 {
	return Round4(math.Abs(a - b))
}

// ClassifyConflict классифицирует расхождение между стадиями.
//
//   - gap > threshold — PROBABILITY_DISAGREEMENT
//   - score в полосе ±0.10 вокруг 0.5 — AMBIGUOUS_SIGNAL
//   - иначе — STRUCTURAL_DISAGREEMENT
func ClassifyConflict(gap, score, threshold float64) domain.ConflictType {
	if gap > threshold {
		return domain.ConflictProbabilityDisagreement
	}
	if math.Abs(score-0.5) < ambiguousBand {
		return domain.ConflictAmbiguousSignal
	}
	return domain.ConflictStructuralDisagreement
}
