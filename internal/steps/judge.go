package steps

import (
	"fmt"
	"strings"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
)

// minReasoningLen — минимальная длина обоснования судьи.
const minReasoningLen = 60

type judgeWire struct {
	Decision   *string  `json:"decision" jsonschema:"enum=ACCEPT,enum=REJECT" jsonschema_description:"Final call on the deal"`
	Confidence *float64 `json:"confidence" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Confidence in the decision from 0.0 to 1.0"`
	Reasoning  *string  `json:"reasoning" jsonschema:"minLength=60" jsonschema_description:"3 to 5 sentences citing specific numbers from both reports"`
}

const judgeSystem = "You are the Investment Committee Chair. Make a decisive call."

// JudgeStage — третья стадия цикла: арбитраж.
//
// Судье показывается оценка Decision Engine. Окончательное решение
// принимает engine.Resolve, а не эта стадия.
type JudgeStage struct {
	params    decision.Params
	threshold float64
	format    string
}

// NewJudgeStage создаёт стадию judge.
func NewJudgeStage(opts Options) *JudgeStage {
	return &JudgeStage{
		params:    opts.Params,
		threshold: opts.DisagreementThreshold,
		format:    FormatInstructions(&judgeWire{}),
	}
}

func (s *JudgeStage) Name() domain.StageName { return domain.StageJudge }

func (s *JudgeStage) System() string { return judgeSystem }

// Prompt строит промпт стадии.
func (s *JudgeStage) Prompt(state domain.CycleState, feedback string) string {
	result := decision.EvaluateDeal(&state.Deal, s.params)

	var b strings.Builder
	b.WriteString(FactSheet(&state.Deal))

	scoutScore, contrarianScore, _ := state.Scores()

	if o := state.Scout; o != nil && o.Scout != nil {
		fmt.Fprintf(&b, "\nSCOUT (score %.3f)\n", o.Score)
		if o.Scout.Analysis != "" {
			fmt.Fprintf(&b, "%s\n", o.Scout.Analysis)
		}
		if len(o.Scout.Strengths) > 0 {
			fmt.Fprintf(&b, "Strengths: %s\n", strings.Join(o.Scout.Strengths, " | "))
		}
		if len(o.Scout.Concerns) > 0 {
			fmt.Fprintf(&b, "Concerns:  %s\n", strings.Join(o.Scout.Concerns, " | "))
		}
	}
	if o := state.Contrarian; o != nil && o.Contrarian != nil {
		fmt.Fprintf(&b, "\nCONTRARIAN (bearish %.3f)\n", o.Contrarian.BearishConfidence)
		fmt.Fprintf(&b, "%s\n", o.Contrarian.RiskSummary)
		fmt.Fprintf(&b, "Flags: %s\n", strings.Join(o.Contrarian.RedFlags, " | "))
	}

	b.WriteString("\nQUANT SYNTHESIS\n")
	fmt.Fprintf(&b, "  Risk-adjusted score: %.3f (accept at >= %.2f)\n", result.Score, s.params.AcceptCutoff)
	fmt.Fprintf(&b, "  System verdict:      %s\n", result.Decision)
	fmt.Fprintf(&b, "  Scout/contrarian gap: %.3f\n", decision.Gap(scoutScore, contrarianScore))
	b.WriteString("Your decision should match the system verdict unless you have a strong qualitative reason.\n")

	if prior := priorCycle(state); prior != "" {
		b.WriteString("\n")
		b.WriteString(prior)
		b.WriteString("FINAL REVIEW: provide your definitive call.\n")
	}

	b.WriteString("\n")
	b.WriteString(s.format)
	b.WriteString(retryNote(feedback))

	return b.String()
}

// Parse разбирает ответ и проверяет: решение ACCEPT или REJECT,
// уверенность в [0, 1], обоснование не короче 60 символов.
func (s *JudgeStage) Parse(state domain.CycleState, raw string) (domain.StageOutput, error) {
	var w judgeWire
	if err := decodeStrict(raw, &w); err != nil {
		return domain.StageOutput{}, err
	}

	if w.Decision == nil {
		return domain.StageOutput{}, schemaErrorf("decision is required")
	}
	dec := domain.Decision(strings.ToUpper(strings.TrimSpace(*w.Decision)))
	if !dec.Valid() {
		return domain.StageOutput{}, schemaErrorf("invalid decision %q: must be ACCEPT or REJECT", *w.Decision)
	}
	if !inUnit(w.Confidence) {
		return domain.StageOutput{}, schemaErrorf("confidence must be a number in [0, 1]")
	}
	if w.Reasoning == nil || len(strings.TrimSpace(*w.Reasoning)) < minReasoningLen {
		return domain.StageOutput{}, schemaErrorf("reasoning too short: must be at least %d characters citing specific numbers", minReasoningLen)
	}

	result := decision.EvaluateDeal(&state.Deal, s.params)

	var conflictType domain.ConflictType
	if scout, contrarian, ok := state.Scores(); ok {
		gap := decision.Gap(scout, contrarian)
		if gap > s.threshold || dec != result.Decision {
			conflictType = decision.ClassifyConflict(gap, result.Score, s.threshold)
		}
	}

	confidence := *w.Confidence
	score := confidence
	if dec == domain.DecisionReject {
		score = decision.Round4(1 - confidence)
	}

	return domain.StageOutput{
		Stage:      domain.StageJudge,
		Score:      score,
		Confidence: confidence,
		Judge: &domain.JudgeReport{
			Decision:     dec,
			Confidence:   confidence,
			Reasoning:    strings.TrimSpace(*w.Reasoning),
			ConflictType: conflictType,
			Engine:       result.View(),
		},
	}, nil
}
