package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScoutMetrics — детерминированные количественные сигналы сделки.
// Все значения в диапазоне [0, 1].
type ScoutMetrics struct {
	Growth     float64 `json:"growth_score"`
	Margin     float64 `json:"margin_score"`
	CashFlow   float64 `json:"cashflow_score"`
	Efficiency float64 `json:"efficiency_score"`

	// Composite — взвешенная сумма четырёх сигналов.
	Composite float64 `json:"composite"`
}

// ScoutReport — результат стадии scout.
//
// Оценка всегда считается детерминированно (Metrics).
// Нарратив заполняется reasoning-коллаборатором, если аннотация включена.
type ScoutReport struct {
	Metrics   ScoutMetrics `json:"metrics"`
	Analysis  string       `json:"analysis,omitempty"`
	Strengths []string     `json:"key_strengths,omitempty"`
	Concerns  []string     `json:"concerns,omitempty"`
	Annotated bool         `json:"annotated"`
}

// RiskFlag — жёсткий флаг риска, вычисленный из атрибутов сделки.
type RiskFlag struct {
	// Code — машинный код флага (LEVERAGE, CASH_BURN, CONCENTRATION).
	Code string `json:"code"`

	// Detail — человекочитаемое описание с конкретными числами.
	Detail string `json:"detail"`
}

// ContrarianReport — результат стадии contrarian.
type ContrarianReport struct {
	RedFlags          []string   `json:"red_flags"`
	RiskSummary       string     `json:"risk_summary"`
	BearishConfidence float64    `json:"bearish_confidence"`
	HardFlags         []RiskFlag `json:"hard_flags,omitempty"`
}

// EngineView — оценка Decision Engine, показанная судье.
type EngineView struct {
	Score     float64  `json:"score"`
	Decision  Decision `json:"decision"`
	Leveraged bool     `json:"leveraged"`
	Flags     int      `json:"flags"`
}

// JudgeReport — результат стадии judge.
type JudgeReport struct {
	Decision     Decision     `json:"decision"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
	ConflictType ConflictType `json:"conflict_type,omitempty"`
	Engine       EngineView   `json:"engine"`
}

// StageOutput — провалидированный результат одной стадии в одном цикле.
//
// Ровно одно из полей Scout, Contrarian, Judge заполнено
// и соответствует Stage.
type StageOutput struct {
	ID    uuid.UUID `json:"id"`
	Stage StageName `json:"stage"`
	Cycle int       `json:"cycle"`

	// Seq — порядковый номер внутри прогона сделки, начиная с 1.
	Seq int `json:"seq"`

	// Score — направленная оценка в [0, 1], 1 = благоприятно.
	Score float64 `json:"score"`

	Confidence float64 `json:"confidence"`

	// Attempts — сколько вызовов понадобилось до валидного ответа.
	// 0 для стадии, выполненной без вызова коллаборатора.
	Attempts int `json:"attempts"`

	Scout      *ScoutReport      `json:"scout,omitempty"`
	Contrarian *ContrarianReport `json:"contrarian,omitempty"`
	Judge      *JudgeReport      `json:"judge,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Payload сериализует типизированный отчёт стадии в JSON.
func (o *StageOutput) Payload() ([]byte, error) {
	var report any
	switch o.Stage {
	case StageScout:
		report = o.Scout
	case StageContrarian:
		report = o.Contrarian
	case StageJudge:
		report = o.Judge
	default:
		return nil, fmt.Errorf("unknown stage %q", o.Stage)
	}
	return json.Marshal(report)
}

// SetPayload восстанавливает типизированный отчёт из JSON по значению Stage.
func (o *StageOutput) SetPayload(data []byte) error {
	switch o.Stage {
	case StageScout:
		o.Scout = &ScoutReport{}
		return json.Unmarshal(data, o.Scout)
	case StageContrarian:
		o.Contrarian = &ContrarianReport{}
		return json.Unmarshal(data, o.Contrarian)
	case StageJudge:
		o.Judge = &JudgeReport{}
		return json.Unmarshal(data, o.Judge)
	default:
		return fmt.Errorf("unknown stage %q", o.Stage)
	}
}
