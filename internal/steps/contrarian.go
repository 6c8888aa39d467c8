package steps

import (
	"fmt"
	"strings"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
)

type contrarianWire struct {
	RedFlags          []string `json:"red_flags" jsonschema:"minItems=1" jsonschema_description:"Material red flags each citing specific numbers"`
	RiskSummary       *string  `json:"risk_summary" jsonschema_description:"Overall risk summary in 2 to 3 sentences"`
	BearishConfidence *float64 `json:"bearish_confidence" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Probability of permanent capital loss from 0.0 to 1.0"`
}

const contrarianSystem = "You are the Risk Auditor. Stress-test the deal honestly: be fair, not just negative."

// ContrarianStage — вторая стадия цикла: стресс-тест сделки.
//
// Жёсткие флаги риска вычисляются заранее и передаются коллаборатору
// как опорные точки для калибровки bearish_confidence.
// Направленная оценка стадии = 1 - bearish_confidence.
type ContrarianStage struct {
	params decision.Params
	format string
}

// NewContrarianStage создаёт стадию contrarian.
func NewContrarianStage(opts Options) *ContrarianStage {
	return &ContrarianStage{
		params: opts.Params,
		format: FormatInstructions(&contrarianWire{}),
	}
}

func (s *ContrarianStage) Name() domain.StageName { return domain.StageContrarian }

func (s *ContrarianStage) System() string { return contrarianSystem }

// Prompt строит промпт стадии.
func (s *ContrarianStage) Prompt(state domain.CycleState, feedback string) string {
	var b strings.Builder
	b.WriteString(FactSheet(&state.Deal))

	if o := state.Scout; o != nil && o.Scout != nil {
		fmt.Fprintf(&b, "\nScout's case (score %.3f):\n", o.Score)
		if o.Scout.Analysis != "" {
			fmt.Fprintf(&b, "  %s\n", o.Scout.Analysis)
		}
		if len(o.Scout.Strengths) > 0 {
			fmt.Fprintf(&b, "  Strengths: %s\n", strings.Join(o.Scout.Strengths, " | "))
		}
	}

	b.WriteString("\nHard flag check:\n")
	flags := decision.RiskFlags(&state.Deal, s.params)
	if len(flags) == 0 {
		b.WriteString("  No hard threshold breaches: adjust bearish_confidence down accordingly\n")
	}
	for _, f := range flags {
		fmt.Fprintf(&b, "  %s\n", f.Detail)
	}

	b.WriteString(`
Calibration: bearish_confidence must match the evidence.
  No hard flags and a strong scout case: 0.15-0.35
  1 hard flag:                          0.35-0.55
  2 or more hard flags:                 0.55-0.80
  Fundamental business failure:         0.80-1.00
Only flag risks backed by actual numbers. If the data is genuinely strong, say so in risk_summary.
`)

	if prior := priorCycle(state); prior != "" {
		b.WriteString("\n")
		b.WriteString(prior)
	}

	b.WriteString("\n")
	b.WriteString(s.format)
	b.WriteString(retryNote(feedback))

	return b.String()
}

// Parse разбирает ответ и проверяет: минимум один red flag,
// непустое резюме, bearish_confidence в [0, 1].
func (s *ContrarianStage) Parse(state domain.CycleState, raw string) (domain.StageOutput, error) {
	var w contrarianWire
	if err := decodeStrict(raw, &w); err != nil {
		return domain.StageOutput{}, err
	}

	redFlags := nonEmpty(w.RedFlags)
	if len(redFlags) < 1 {
		return domain.StageOutput{}, schemaErrorf("need at least 1 red_flag")
	}
	if w.RiskSummary == nil || strings.TrimSpace(*w.RiskSummary) == "" {
		return domain.StageOutput{}, schemaErrorf("risk_summary is required")
	}
	if !inUnit(w.BearishConfidence) {
		return domain.StageOutput{}, schemaErrorf("bearish_confidence must be a number in [0, 1]")
	}

	bearish := *w.BearishConfidence
	return domain.StageOutput{
		Stage:      domain.StageContrarian,
		Score:      decision.Round4(1 - bearish),
		Confidence: bearish,
		Contrarian: &domain.ContrarianReport{
			RedFlags:          redFlags,
			RiskSummary:       strings.TrimSpace(*w.RiskSummary),
			BearishConfidence: bearish,
			HardFlags:         decision.RiskFlags(&state.Deal, s.params),
		},
	}, nil
}
