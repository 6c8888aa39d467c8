package domain

import (
	"time"

	"github.com/google/uuid"
)

// Verdict — итоговое решение по сделке.
//
// Создаётся один раз на сделку (уникальность по DealID) и не меняется.
type Verdict struct {
	ID     uuid.UUID `json:"id"`
	DealID uuid.UUID `json:"deal_id"`

	// Decision — принятое решение.
	Decision Decision `json:"decision"`

	// Score — оценка Decision Engine в [0, 1].
	Score float64 `json:"score"`

	// Confidence — уверенность судьи на последнем цикле.
	Confidence float64 `json:"confidence"`

	// Cycles — сколько циклов прошла сделка (1 или 2).
	Cycles int `json:"cycles"`

	// Duration — время от claim до вердикта.
	Duration time.Duration `json:"duration"`

	Source         VerdictSource `json:"source"`
	JudgeDecision  Decision      `json:"judge_decision"`
	EngineDecision Decision      `json:"engine_decision"`

	// Conflict — было ли расхождение на последнем цикле.
	Conflict     bool         `json:"conflict"`
	ConflictType ConflictType `json:"conflict_type,omitempty"`

	Reasoning string    `json:"reasoning"`
	CreatedAt time.Time `json:"created_at"`
}

// Overridden возвращает true, если решение судьи было заменено.
func (v *Verdict) Overridden() bool {
	return v.Source == SourceDeterministicOverride
}
