package steps

import (
	"fmt"
	"strings"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
)

// scoutWire — ответ коллаборатора на стадии scout.
// Оценки в ответе нет: она считается детерминированно.
type scoutWire struct {
	Analysis     *string  `json:"analysis" jsonschema_description:"Honest qualitative analysis of the deal in 3 to 5 sentences"`
	KeyStrengths []string `json:"key_strengths" jsonschema:"minItems=3,maxItems=3" jsonschema_description:"Exactly 3 bullish signals each citing a specific number"`
	Concerns     []string `json:"concerns" jsonschema:"minItems=3,maxItems=3" jsonschema_description:"Exactly 3 concerns each citing a specific number"`
}

const scoutSystem = "You are an M&A Scout. Be honest: not every deal is good."

// ScoutStage — первая стадия цикла.
//
// Считает количественные метрики сделки; при включённой аннотации
// запрашивает у коллаборатора нарратив (анализ, 3 сильные стороны, 3 риска).
type ScoutStage struct {
	params   decision.Params
	annotate bool
	format   string
}

// NewScoutStage создаёт стадию scout.
func NewScoutStage(opts Options) *ScoutStage {
	return &ScoutStage{
		params:   opts.Params,
		annotate: opts.Annotate,
		format:   FormatInstructions(&scoutWire{}),
	}
}

// Name возвращает имя стадии.
func (s *ScoutStage) Name() domain.StageName { return domain.StageScout }

// System возвращает системную инструкцию.
func (s *ScoutStage) System() string { return scoutSystem }

// Prompt строит промпт аннотации. Без аннотации возвращает пустую строку.
func (s *ScoutStage) Prompt(state domain.CycleState, feedback string) string {
	if !s.annotate {
		return ""
	}

	m := decision.Metrics(&state.Deal, s.params)

	var b strings.Builder
	b.WriteString(FactSheet(&state.Deal))
	b.WriteString("\nQuantitative scores (0 = worst, 1 = best):\n")
	fmt.Fprintf(&b, "  Growth:     %.3f\n", m.Growth)
	fmt.Fprintf(&b, "  Margin:     %.3f\n", m.Margin)
	fmt.Fprintf(&b, "  Cash flow:  %.3f\n", m.CashFlow)
	fmt.Fprintf(&b, "  Efficiency: %.3f\n", m.Efficiency)
	fmt.Fprintf(&b, "  Composite:  %.3f\n", m.Composite)
	b.WriteString("Score guide: 0.0-0.3 weak, 0.3-0.6 mixed, 0.6-0.8 solid, 0.8-1.0 strong.\n")
	b.WriteString("The scores are final. Explain them; do not re-score the deal.\n")

	if prior := priorCycle(state); prior != "" {
		b.WriteString("\n")
		b.WriteString(prior)
	}

	b.WriteString("\n")
	b.WriteString(s.format)
	b.WriteString(retryNote(feedback))

	return b.String()
}

// Parse строит выход стадии. Оценка всегда детерминированная.
func (s *ScoutStage) Parse(state domain.CycleState, raw string) (domain.StageOutput, error) {
	m := decision.Metrics(&state.Deal, s.params)
	report := &domain.ScoutReport{Metrics: m}

	if s.annotate {
		var w scoutWire
		if err := decodeStrict(raw, &w); err != nil {
			return domain.StageOutput{}, err
		}
		if w.Analysis == nil || strings.TrimSpace(*w.Analysis) == "" {
			return domain.StageOutput{}, schemaErrorf("analysis is required")
		}
		strengths := nonEmpty(w.KeyStrengths)
		if len(strengths) != 3 {
			return domain.StageOutput{}, schemaErrorf("need exactly 3 key_strengths, got %d", len(strengths))
		}
		concerns := nonEmpty(w.Concerns)
		if len(concerns) != 3 {
			return domain.StageOutput{}, schemaErrorf("need exactly 3 concerns, got %d", len(concerns))
		}

		report.Analysis = strings.TrimSpace(*w.Analysis)
		report.Strengths = strengths
		report.Concerns = concerns
		report.Annotated = true
	}

	return domain.StageOutput{
		Stage:      domain.StageScout,
		Score:      m.Composite,
		Confidence: m.Composite,
		Scout:      report,
	}, nil
}
