package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/steps"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

// StageRunner выполняет одну стадию (реализуется worker.Runner).
type StageRunner interface {
	Run(ctx context.Context, stage steps.Stage, state domain.CycleState) (domain.StageOutput, error)
}

// Config — конфигурация Machine.
type Config struct {
	Runner   StageRunner
	Registry *steps.Registry
	Policy   Policy
	Params   decision.Params
	Logger   *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Outcome — результат успешного прогона.
type Outcome struct {
	Verdict domain.Verdict

	// Outputs — выходы всех стадий всех циклов в порядке выполнения.
	Outputs []domain.StageOutput

	// Trace — последовательность состояний машины.
	Trace []State

	Cycles int
}

// Machine прогоняет сделку через стадии.
//
// Состояние машины живёт только в памяти одного вызова Run.
// Machine не пишет в хранилище: запись результата делает вызывающая сторона.
type Machine struct {
	runner StageRunner
	stages map[domain.StageName]steps.Stage
	policy Policy
	params decision.Params
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Machine. Ошибка, если в реестре нет какой-то из стадий.
func New(cfg Config) (*Machine, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("engine: runner is required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry(steps.DefaultOptions())
	}
	seq, err := registry.Sequence()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	stages := make(map[domain.StageName]steps.Stage, len(seq))
	for _, s := range seq {
		stages[s.Name()] = s
	}

	policy := cfg.Policy
	if policy.MaxCycles <= 0 {
		policy.MaxCycles = DefaultPolicy().MaxCycles
	}
	if policy.MaxCycles > maxCyclesLimit {
		policy.MaxCycles = maxCyclesLimit
	}

	params := cfg.Params
	if params == (decision.Params{}) {
		params = decision.DefaultParams()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Machine{
		runner: cfg.Runner,
		stages: stages,
		policy: policy,
		params: params,
		logger: logger,
		now:    now,
	}, nil
}

// Policy возвращает действующую политику.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Run прогоняет сделку до FINALIZE или ABORT.
//
// Число выполнений стадий ограничено MaxCycles * 3.
// При ABORT возвращает *AbortError и nil Outcome.
func (m *Machine) Run(ctx context.Context, deal domain.Deal) (*Outcome, error) {
	start := m.now()
	logger := telemetry.WithDealID(m.logger, deal.ID.String())

	bound := m.policy.MaxCycles * len(domain.Stages)
	executions := 0
	seq := 0

	state := domain.NewCycleState(deal)
	current := StateScouting
	trace := []State{current}

	var abortErr *AbortError

	for !current.IsTerminal() {
		var in Input

		switch current {
		case StateLoopBack:
			scout, contrarian, _ := state.Scores()
			state = state.LoopBack(true, decision.Gap(scout, contrarian))
			logger.Info("loop back", "cycle", state.Cycle)

		default:
			name, ok := current.Stage()
			if !ok {
				return nil, fmt.Errorf("engine: no stage for state %s", current)
			}
			if executions >= bound {
				return nil, &AbortError{Stage: name, Cycle: state.Cycle, Trace: trace, Err: ErrExecutionBound}
			}
			executions++

			out, err := m.runner.Run(ctx, m.stages[name], state)
			if err != nil {
				in.Failed = true
				abortErr = &AbortError{Stage: name, Cycle: state.Cycle, Err: err}
				break
			}

			seq++
			out.ID = uuid.New()
			out.Seq = seq
			state = state.With(out)
		}

		in.Cycle = state.Cycle
		if scout, contrarian, ok := state.Scores(); ok {
			in.Scores = ScorePair{Scout: scout, Contrarian: contrarian}
		}

		current = Next(current, in, m.policy)
		trace = append(trace, current)
	}

	if current == StateAbort {
		abortErr.Trace = trace
		logger.Warn("workflow aborted",
			"stage", abortErr.Stage,
			"cycle", abortErr.Cycle,
			"error", abortErr.Err,
		)
		return nil, abortErr
	}

	verdict, err := m.verdict(state, start)
	if err != nil {
		return nil, err
	}

	logger.Info("workflow finalized",
		"decision", verdict.Decision,
		"source", verdict.Source,
		"score", verdict.Score,
		"cycles", verdict.Cycles,
	)

	return &Outcome{
		Verdict: verdict,
		Outputs: state.Outputs(),
		Trace:   trace,
		Cycles:  state.Cycle,
	}, nil
}

// verdict строит вердикт по состоянию терминального цикла.
func (m *Machine) verdict(state domain.CycleState, start time.Time) (domain.Verdict, error) {
	scout, contrarian, ok := state.Scores()
	if !ok || state.Judge == nil || state.Judge.Judge == nil {
		return domain.Verdict{}, ErrIncompleteCycle
	}
	judge := state.Judge.Judge

	result := decision.EvaluateDeal(&state.Deal, m.params)
	gap := decision.Gap(scout, contrarian)
	conflict := Conflict(ScorePair{Scout: scout, Contrarian: contrarian}, m.policy)

	final, source := Resolve(state.Cycle, m.policy, judge.Decision, result.Decision)

	var conflictType domain.ConflictType
	if conflict {
		conflictType = decision.ClassifyConflict(gap, result.Score, m.policy.DisagreementThreshold)
	}

	now := m.now()
	return domain.Verdict{
		ID:             uuid.New(),
		DealID:         state.Deal.ID,
		Decision:       final,
		Score:          result.Score,
		Confidence:     judge.Confidence,
		Cycles:         state.Cycle,
		Duration:       now.Sub(start),
		Source:         source,
		JudgeDecision:  judge.Decision,
		EngineDecision: result.Decision,
		Conflict:       conflict,
		ConflictType:   conflictType,
		Reasoning:      judge.Reasoning,
		CreatedAt:      now,
	}, nil
}
