package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/reasoning"
	"github.com/shaiso/DealFlow/internal/steps"
	"github.com/shaiso/DealFlow/internal/telemetry"
	"github.com/shaiso/DealFlow/internal/worker"
)

// fakeRunner возвращает заранее заданные оценки по стадиям и циклам.
type fakeRunner struct {
	mu sync.Mutex

	scout      map[int]float64
	contrarian map[int]float64
	judge      domain.Decision

	// failAt — стадия и цикл, на которых вернуть ошибку.
	failStage domain.StageName
	failCycle int

	calls     int
	previous  map[int]*domain.CycleRecord
	seenCycle []int
}

func newFakeRunner(scout, contrarian float64, judge domain.Decision) *fakeRunner {
	return &fakeRunner{
		scout:      map[int]float64{1: scout, 2: scout},
		contrarian: map[int]float64{1: contrarian, 2: contrarian},
		judge:      judge,
		previous:   make(map[int]*domain.CycleRecord),
	}
}

func (f *fakeRunner) Run(_ context.Context, stage steps.Stage, state domain.CycleState) (domain.StageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.seenCycle = append(f.seenCycle, state.Cycle)

	if stage.Name() == f.failStage && state.Cycle == f.failCycle {
		return domain.StageOutput{}, &worker.StageError{Stage: stage.Name(), Cycle: state.Cycle, Err: worker.ErrValidationExhausted}
	}

	out := domain.StageOutput{Stage: stage.Name(), Cycle: state.Cycle, Attempts: 1}
	switch stage.Name() {
	case domain.StageScout:
		f.previous[state.Cycle] = state.Previous()
		out.Score = f.scout[state.Cycle]
		out.Scout = &domain.ScoutReport{Metrics: domain.ScoutMetrics{Composite: out.Score}}
	case domain.StageContrarian:
		out.Score = f.contrarian[state.Cycle]
		out.Contrarian = &domain.ContrarianReport{BearishConfidence: 1 - out.Score, RedFlags: []string{"x"}}
	case domain.StageJudge:
		out.Score = 0.8
		out.Judge = &domain.JudgeReport{Decision: f.judge, Confidence: 0.8, Reasoning: "judge reasoning"}
	}
	return out, nil
}

// leveredDeal — сделка, которую Decision Engine отклоняет.
func leveredDeal() domain.Deal {
	return domain.Deal{
		ID:                    uuid.New(),
		Sector:                "Manufacturing",
		Revenue:               20_000_000,
		RevenueGrowth:         -0.1,
		RevenueCAGR3Y:         -0.1,
		GrossMargin:           0.2,
		EBITDA:                1_000_000,
		EBITDAMargin:          0.05,
		NetDebt:               6_000_000,
		FreeCashFlow:          -500_000,
		EmployeeCount:         200,
		CustomerConcentration: 0.5,
	}
}

func newMachine(t *testing.T, runner StageRunner, policy Policy) *Machine {
	t.Helper()
	m, err := New(Config{
		Runner: runner,
		Policy: policy,
		Logger: telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

// --- Next / Resolve ---

func TestNext(t *testing.T) {
	p := DefaultPolicy()
	conflict := ScorePair{Scout: 0.74, Contrarian: 0.28}
	agree := ScorePair{Scout: 0.6, Contrarian: 0.5}

	tests := []struct {
		name    string
		current State
		in      Input
		want    State
	}{
		{"scouting", StateScouting, Input{Cycle: 1}, StateContrarianReview},
		{"contrarian", StateContrarianReview, Input{Cycle: 1}, StateArbitration},
		{"conflict below max", StateArbitration, Input{Cycle: 1, Scores: conflict}, StateLoopBack},
		{"conflict at max", StateArbitration, Input{Cycle: 2, Scores: conflict}, StateFinalize},
		{"agreement", StateArbitration, Input{Cycle: 1, Scores: agree}, StateFinalize},
		{"loop back", StateLoopBack, Input{Cycle: 2}, StateScouting},
		{"failed", StateContrarianReview, Input{Cycle: 1, Failed: true}, StateAbort},
		{"finalize terminal", StateFinalize, Input{Failed: true}, StateFinalize},
		{"abort terminal", StateAbort, Input{}, StateAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.current, tt.in, p); got != tt.want {
				t.Errorf("Next(%s) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}

func TestConflict_ThresholdExclusive(t *testing.T) {
	p := Policy{MaxCycles: 2, DisagreementThreshold: 0.40}

	if Conflict(ScorePair{Scout: 0.7, Contrarian: 0.3}, p) {
		t.Error("gap equal to threshold must not be a conflict")
	}
	if !Conflict(ScorePair{Scout: 0.74, Contrarian: 0.28}, p) {
		t.Error("gap 0.46 must be a conflict")
	}
}

func TestResolve(t *testing.T) {
	p := DefaultPolicy()
	accept, reject := domain.DecisionAccept, domain.DecisionReject

	tests := []struct {
		name       string
		cycle      int
		judge      domain.Decision
		engine     domain.Decision
		want       domain.Decision
		wantSource domain.VerdictSource
	}{
		{"agree", 1, accept, accept, accept, domain.SourceJudgeAgrees},
		{"agree terminal", 2, reject, reject, reject, domain.SourceJudgeAgrees},
		{"judge stands", 1, accept, reject, accept, domain.SourceJudgeStands},
		{"override", 2, accept, reject, reject, domain.SourceDeterministicOverride},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := Resolve(tt.cycle, p, tt.judge, tt.engine)
			if got != tt.want || source != tt.wantSource {
				t.Errorf("Resolve = %s/%s, want %s/%s", got, source, tt.want, tt.wantSource)
			}
		})
	}
}

// --- Machine ---

func TestMachine_ConflictLoopsThenOverrides(t *testing.T) {
	runner := newFakeRunner(0.74, 0.28, domain.DecisionAccept)
	m := newMachine(t, runner, DefaultPolicy())

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Cycles != 2 {
		t.Errorf("expected 2 cycles, got %d", outcome.Cycles)
	}
	if len(outcome.Outputs) != 6 {
		t.Fatalf("expected 6 outputs, got %d", len(outcome.Outputs))
	}
	for i, o := range outcome.Outputs {
		if o.Seq != i+1 {
			t.Errorf("output %d: expected seq %d, got %d", i, i+1, o.Seq)
		}
		if o.ID == uuid.Nil {
			t.Errorf("output %d: expected ID", i)
		}
	}

	v := outcome.Verdict
	if v.Source != domain.SourceDeterministicOverride {
		t.Errorf("expected DETERMINISTIC_OVERRIDE, got %s", v.Source)
	}
	if v.Decision != v.EngineDecision || v.Decision != domain.DecisionReject {
		t.Errorf("expected engine decision REJECT, got %s (engine %s)", v.Decision, v.EngineDecision)
	}
	if v.JudgeDecision != domain.DecisionAccept {
		t.Errorf("expected judge decision ACCEPT, got %s", v.JudgeDecision)
	}
	if !v.Conflict || v.ConflictType != domain.ConflictProbabilityDisagreement {
		t.Errorf("expected probability disagreement, got %v %s", v.Conflict, v.ConflictType)
	}

	wantTrace := []State{
		StateScouting, StateContrarianReview, StateArbitration, StateLoopBack,
		StateScouting, StateContrarianReview, StateArbitration, StateFinalize,
	}
	if len(outcome.Trace) != len(wantTrace) {
		t.Fatalf("unexpected trace: %v", outcome.Trace)
	}
	for i := range wantTrace {
		if outcome.Trace[i] != wantTrace[i] {
			t.Errorf("trace[%d] = %s, want %s", i, outcome.Trace[i], wantTrace[i])
		}
	}
}

func TestMachine_LoopBackCarriesHistory(t *testing.T) {
	runner := newFakeRunner(0.74, 0.28, domain.DecisionReject)
	m := newMachine(t, runner, DefaultPolicy())

	if _, err := m.Run(context.Background(), leveredDeal()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.previous[1] != nil {
		t.Error("first cycle must have no history")
	}
	prev := runner.previous[2]
	if prev == nil {
		t.Fatal("second cycle must see the first cycle")
	}
	if prev.Cycle != 1 || prev.Scout.Score != 0.74 || prev.Contrarian.Score != 0.28 {
		t.Errorf("unexpected previous cycle: %+v", prev)
	}
	if !prev.Conflict {
		t.Error("previous cycle must record the conflict")
	}
}

func TestMachine_AgreementFinalizesFirstCycle(t *testing.T) {
	runner := newFakeRunner(0.6, 0.5, domain.DecisionAccept)
	m := newMachine(t, runner, DefaultPolicy())

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Cycles != 1 || len(outcome.Outputs) != 3 {
		t.Errorf("expected 1 cycle with 3 outputs, got %d/%d", outcome.Cycles, len(outcome.Outputs))
	}
	// Цикл не терминальный: решение судьи остаётся
	if outcome.Verdict.Source != domain.SourceJudgeStands || outcome.Verdict.Decision != domain.DecisionAccept {
		t.Errorf("expected judge to stand, got %s/%s", outcome.Verdict.Source, outcome.Verdict.Decision)
	}
	if outcome.Verdict.Conflict {
		t.Error("expected no conflict")
	}
}

func TestMachine_SingleCycleOverride(t *testing.T) {
	runner := newFakeRunner(0.74, 0.28, domain.DecisionAccept)
	m := newMachine(t, runner, Policy{MaxCycles: 1, DisagreementThreshold: 0.40})

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Cycles != 1 {
		t.Errorf("expected 1 cycle, got %d", outcome.Cycles)
	}
	if outcome.Verdict.Source != domain.SourceDeterministicOverride {
		t.Errorf("expected override on terminal cycle, got %s", outcome.Verdict.Source)
	}
}

func TestMachine_BoundedExecutions(t *testing.T) {
	// Конфликт на каждом цикле
	runner := newFakeRunner(0.95, 0.05, domain.DecisionReject)
	m := newMachine(t, runner, DefaultPolicy())

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.calls != 6 {
		t.Errorf("expected exactly 6 stage executions, got %d", runner.calls)
	}
	if outcome.Cycles > 2 {
		t.Errorf("cycles must not exceed 2, got %d", outcome.Cycles)
	}
}

func TestMachine_MaxCyclesClamped(t *testing.T) {
	runner := newFakeRunner(0.95, 0.05, domain.DecisionReject)
	m := newMachine(t, runner, Policy{MaxCycles: 5, DisagreementThreshold: 0.40})

	if m.Policy().MaxCycles != 2 {
		t.Errorf("expected max cycles clamped to 2, got %d", m.Policy().MaxCycles)
	}

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Cycles != 2 {
		t.Errorf("expected 2 cycles, got %d", outcome.Cycles)
	}
}

func TestMachine_AbortOnStageFailure(t *testing.T) {
	runner := newFakeRunner(0.74, 0.28, domain.DecisionAccept)
	runner.failStage = domain.StageContrarian
	runner.failCycle = 2
	m := newMachine(t, runner, DefaultPolicy())

	outcome, err := m.Run(context.Background(), leveredDeal())

	if outcome != nil {
		t.Error("aborted run must not produce an outcome")
	}
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !errors.Is(err, worker.ErrValidationExhausted) {
		t.Errorf("expected stage cause, got %v", err)
	}

	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatal("expected AbortError")
	}
	if abortErr.Stage != domain.StageContrarian || abortErr.Cycle != 2 {
		t.Errorf("unexpected abort location: %s cycle %d", abortErr.Stage, abortErr.Cycle)
	}
	if last := abortErr.Trace[len(abortErr.Trace)-1]; last != StateAbort {
		t.Errorf("trace must end with ABORT, got %s", last)
	}
}

func TestMachine_VerdictDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	m, err := New(Config{
		Runner: newFakeRunner(0.6, 0.5, domain.DecisionReject),
		Logger: telemetry.Discard(),
		Now:    clock,
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Verdict.Duration != time.Second {
		t.Errorf("expected duration 1s, got %v", outcome.Verdict.Duration)
	}
}

func TestNew_RequiresRunner(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without runner")
	}
}

// --- Machine + worker.Runner ---

// stageClient отвечает по системной инструкции стадии.
type stageClient struct {
	contrarian string
	judge      string
	calls      int
}

func (c *stageClient) Complete(_ context.Context, req reasoning.Request) (string, error) {
	c.calls++
	if req.System == steps.NewJudgeStage(steps.DefaultOptions()).System() {
		return c.judge, nil
	}
	return c.contrarian, nil
}

func TestMachine_WithRunner(t *testing.T) {
	opts := steps.DefaultOptions()
	opts.Annotate = false

	client := &stageClient{
		contrarian: `{"red_flags":["Net Debt/EBITDA 6.0x"],"risk_summary":"Leverage and cash burn dominate.","bearish_confidence":0.9}`,
		judge:      `{"decision":"REJECT","confidence":0.85,"reasoning":"Leverage of 6.0x EBITDA and negative FCF of -$500k outweigh any upside here."}`,
	}

	m, err := New(Config{
		Runner: worker.NewRunner(worker.Config{
			Client:      client,
			MaxAttempts: 2,
			CallTimeout: time.Second,
			Logger:      telemetry.Discard(),
		}),
		Registry: steps.DefaultRegistry(opts),
		Policy:   DefaultPolicy(),
		Params:   decision.DefaultParams(),
		Logger:   telemetry.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := m.Run(context.Background(), leveredDeal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Scout вычислительный, contrarian и judge по одному вызову
	if client.calls != 2 {
		t.Errorf("expected 2 collaborator calls, got %d", client.calls)
	}
	if outcome.Verdict.Decision != domain.DecisionReject || outcome.Verdict.Source != domain.SourceJudgeAgrees {
		t.Errorf("unexpected verdict: %s/%s", outcome.Verdict.Decision, outcome.Verdict.Source)
	}
}
