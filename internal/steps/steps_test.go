package steps

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shaiso/DealFlow/internal/domain"
)

func testDeal() domain.Deal {
	return domain.Deal{
		Sector:                "Technology",
		Revenue:               20_000_000,
		RevenueGrowth:         0.2,
		RevenueCAGR3Y:         0.18,
		GrossMargin:           0.7,
		EBITDA:                4_000_000,
		EBITDAMargin:          0.2,
		NetDebt:               20_000_000,
		FreeCashFlow:          -300_000,
		EmployeeCount:         60,
		CustomerConcentration: 0.3,
		MarketGrowth:          0.1,
	}
}

const validJudge = `{"decision":"accept","confidence":0.8,"reasoning":"Revenue of $20M growing 20% with 70% gross margin outweighs leverage of 5.0x EBITDA."}`

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	r.Register(NewScoutStage(DefaultOptions()))
	if !r.Has(domain.StageScout) {
		t.Error("should have scout")
	}

	_, err := r.Get(domain.StageJudge)
	if !errors.Is(err, ErrStageNotFound) {
		t.Errorf("expected ErrStageNotFound, got %v", err)
	}

	// Неполный реестр не даёт последовательность
	if _, err := r.Sequence(); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("expected ErrStageNotFound from Sequence, got %v", err)
	}
}

func TestDefaultRegistry_Sequence(t *testing.T) {
	seq, err := DefaultRegistry(DefaultOptions()).Sequence()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.StageName{domain.StageScout, domain.StageContrarian, domain.StageJudge}
	if len(seq) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(seq))
	}
	for i, s := range seq {
		if s.Name() != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], s.Name())
		}
	}
}

// Scout Tests

func TestScout_Computational(t *testing.T) {
	opts := DefaultOptions()
	opts.Annotate = false
	stage := NewScoutStage(opts)
	state := domain.NewCycleState(testDeal())

	if p := stage.Prompt(state, ""); p != "" {
		t.Fatalf("computational scout must have empty prompt, got %q", p)
	}

	out, err := stage.Parse(state, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != domain.StageScout || out.Scout == nil {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Score != out.Scout.Metrics.Composite {
		t.Errorf("score must equal composite: %v vs %v", out.Score, out.Scout.Metrics.Composite)
	}
	if out.Scout.Annotated {
		t.Error("expected not annotated")
	}
}

func TestScout_Annotated(t *testing.T) {
	stage := NewScoutStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	raw := "```json\n" + `{
		"analysis": "Solid growth with strong margins.",
		"key_strengths": ["20% growth", "70% gross margin", "$333k revenue per employee"],
		"concerns": ["5.0x leverage", "negative FCF of $-300k", "30% concentration"]
	}` + "\n```"

	out, err := stage.Parse(state, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Scout.Annotated || len(out.Scout.Strengths) != 3 {
		t.Errorf("unexpected report: %+v", out.Scout)
	}
}

func TestScout_AnnotatedWrongCount(t *testing.T) {
	stage := NewScoutStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	raw := `{"analysis":"ok","key_strengths":["a","b"],"concerns":["x","y","z"]}`

	_, err := stage.Parse(state, raw)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), "key_strengths") {
		t.Errorf("error must name the field: %v", err)
	}
}

func TestScout_PromptIncludesPriorCycle(t *testing.T) {
	stage := NewScoutStage(DefaultOptions())

	state := domain.NewCycleState(testDeal())
	if strings.Contains(stage.Prompt(state, ""), "PRIOR CYCLE") {
		t.Error("first cycle must not mention prior cycle")
	}

	state = state.With(domain.StageOutput{Stage: domain.StageScout, Score: 0.74, Scout: &domain.ScoutReport{Analysis: "bullish"}})
	state = state.With(domain.StageOutput{Stage: domain.StageContrarian, Score: 0.28, Contrarian: &domain.ContrarianReport{BearishConfidence: 0.72, RiskSummary: "levered"}})
	state = state.LoopBack(true, 0.46)

	prompt := stage.Prompt(state, "")
	if !strings.Contains(prompt, "PRIOR CYCLE 1") {
		t.Error("second cycle prompt must include prior cycle")
	}
	if !strings.Contains(prompt, "levered") {
		t.Error("prior contrarian summary must be carried")
	}
}

func TestPrompt_RetryFeedback(t *testing.T) {
	stage := NewContrarianStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	prompt := stage.Prompt(state, "need at least 1 red_flag")
	if !strings.Contains(prompt, "PREVIOUS ATTEMPT FAILED: need at least 1 red_flag") {
		t.Error("expected feedback in prompt")
	}
}

func TestPrompt_RetryFeedbackKeepsUTF8(t *testing.T) {
	note := retryNote(strings.Repeat("a", maxFeedbackLen-1) + "ж")

	if !utf8.ValidString(note) {
		t.Fatal("retry note must stay valid UTF-8")
	}
	if strings.Contains(note, "ж") {
		t.Error("character crossing the limit must be dropped")
	}
	if !strings.Contains(note, strings.Repeat("a", maxFeedbackLen-1)) {
		t.Error("feedback before the limit must be kept")
	}
}

func TestScout_AnnotatedUnknownField(t *testing.T) {
	stage := NewScoutStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	raw := `{"analysis":"ok","key_strengths":["a","b","c"],"concerns":["x","y","z"],"score":0.9}`

	_, err := stage.Parse(state, raw)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), "score") {
		t.Errorf("error must name the unknown field: %v", err)
	}
}

// Contrarian Tests

func TestContrarian_Parse(t *testing.T) {
	stage := NewContrarianStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	raw := `Here is my answer: {"red_flags":["Leverage 5.0x"],"risk_summary":"High leverage.","bearish_confidence":0.72}`

	out, err := stage.Parse(state, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Score != 0.28 {
		t.Errorf("expected directional score 0.28, got %v", out.Score)
	}
	if out.Contrarian.BearishConfidence != 0.72 {
		t.Errorf("expected bearish 0.72, got %v", out.Contrarian.BearishConfidence)
	}
	// Leverage 5x и отрицательный FCF
	if len(out.Contrarian.HardFlags) != 2 {
		t.Errorf("expected 2 hard flags, got %+v", out.Contrarian.HardFlags)
	}
}

func TestContrarian_ParseInvalid(t *testing.T) {
	stage := NewContrarianStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I think this deal is risky"},
		{"no red flags", `{"red_flags":[],"risk_summary":"x","bearish_confidence":0.5}`},
		{"bearish out of range", `{"red_flags":["a"],"risk_summary":"x","bearish_confidence":1.5}`},
		{"missing bearish", `{"red_flags":["a"],"risk_summary":"x"}`},
		{"missing summary", `{"red_flags":["a"],"bearish_confidence":0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := stage.Parse(state, tt.raw); !errors.Is(err, ErrSchema) {
				t.Errorf("expected ErrSchema, got %v", err)
			}
		})
	}
}

// Judge Tests

func TestJudge_Parse(t *testing.T) {
	stage := NewJudgeStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	out, err := stage.Parse(state, validJudge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Judge.Decision != domain.DecisionAccept {
		t.Errorf("expected ACCEPT, got %s", out.Judge.Decision)
	}
	if out.Judge.Confidence != 0.8 || out.Score != 0.8 {
		t.Errorf("unexpected confidence/score: %v %v", out.Judge.Confidence, out.Score)
	}
	if !out.Judge.Engine.Decision.Valid() {
		t.Error("engine view must be filled")
	}
}

func TestJudge_ParseInvalid(t *testing.T) {
	stage := NewJudgeStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown decision", `{"decision":"REQUIRES_DUE_DILIGENCE","confidence":0.5,"reasoning":"` + strings.Repeat("x", 80) + `"}`},
		{"short reasoning", `{"decision":"ACCEPT","confidence":0.5,"reasoning":"too short"}`},
		{"confidence out of range", `{"decision":"ACCEPT","confidence":-0.1,"reasoning":"` + strings.Repeat("x", 80) + `"}`},
		{"trailing garbage", `{"decision":"ACCEPT","confidence":0.5,"reasoning":"x"} {"second":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := stage.Parse(state, tt.raw); !errors.Is(err, ErrSchema) {
				t.Errorf("expected ErrSchema, got %v", err)
			}
		})
	}
}

func TestJudge_RejectDirectionalScore(t *testing.T) {
	stage := NewJudgeStage(DefaultOptions())
	state := domain.NewCycleState(testDeal())

	raw := `{"decision":"REJECT","confidence":0.9,"reasoning":"` + strings.Repeat("Leverage of 5.0x EBITDA is too high. ", 3) + `"}`

	out, err := stage.Parse(state, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Score < 0.099 || out.Score > 0.101 {
		t.Errorf("expected directional score 0.1, got %v", out.Score)
	}
}

func TestJudge_PromptShowsEngine(t *testing.T) {
	stage := NewJudgeStage(DefaultOptions())
	prompt := stage.Prompt(domain.NewCycleState(testDeal()), "")

	if !strings.Contains(prompt, "Risk-adjusted score") || !strings.Contains(prompt, "System verdict") {
		t.Error("judge prompt must include the engine evaluation")
	}
}

// Schema Tests

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{`Sure! {"a":{"b":2}} Hope this helps.`, `{"a":{"b":2}}`},
	}

	for _, tt := range tests {
		got, err := extractJSON(tt.raw)
		if err != nil {
			t.Errorf("extractJSON(%q): unexpected error %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	if _, err := extractJSON("no json here"); !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema, got %v", err)
	}
}

func TestFormatInstructions(t *testing.T) {
	instr := FormatInstructions(&scoutWire{})

	for _, field := range []string{"analysis", "key_strengths", "concerns"} {
		if !strings.Contains(instr, field) {
			t.Errorf("format instructions must mention %s", field)
		}
	}
	if strings.Contains(instr, "bullish_confidence") {
		t.Error("scout format must not ask for a score")
	}
}
