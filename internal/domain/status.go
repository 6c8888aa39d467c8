package domain

// DealStatus — статус обработки сделки.
//
// Жизненный цикл:
//
//	NEW → PROCESSING → FINALIZED
//	                 ↘ FAILED
//
// NEW → PROCESSING происходит только через атомарный claim.
// PROCESSING → FINALIZED|FAILED только через commit или MarkFailed.
type DealStatus string

const (
	// DealStatusNew — сделка ожидает обработки.
	DealStatusNew DealStatus = "NEW"

	// DealStatusProcessing — сделка захвачена воркером.
	DealStatusProcessing DealStatus = "PROCESSING"

	// DealStatusFinalized — вердикт записан.
	DealStatusFinalized DealStatus = "FINALIZED"

	// DealStatusFailed — обработка прервана, вердикта нет.
	DealStatusFailed DealStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s DealStatus) IsTerminal() bool {
	switch s {
	case DealStatusFinalized, DealStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление DealStatus.
func (s DealStatus) String() string {
	return string(s)
}

// ParseDealStatus парсит строку в DealStatus.
// Второе значение false, если статус неизвестен.
func ParseDealStatus(s string) (DealStatus, bool) {
	switch DealStatus(s) {
	case DealStatusNew, DealStatusProcessing, DealStatusFinalized, DealStatusFailed:
		return DealStatus(s), true
	default:
		return "", false
	}
}

// StageName — имя стадии оценки.
type StageName string

const (
	StageScout      StageName = "scout"
	StageContrarian StageName = "contrarian"
	StageJudge      StageName = "judge"
)

// Stages — порядок стадий внутри одного цикла.
var Stages = []StageName{StageScout, StageContrarian, StageJudge}

// Decision — итоговое решение по сделке.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Valid проверяет, что решение из допустимого набора.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// VerdictSource — откуда взято итоговое решение.
type VerdictSource string

const (
	// SourceJudgeAgrees — судья и Decision Engine совпали.
	SourceJudgeAgrees VerdictSource = "JUDGE_AGREES"

	// SourceJudgeStands — цикл не терминальный, решение судьи принято как есть.
	SourceJudgeStands VerdictSource = "JUDGE_STANDS"

	// SourceDeterministicOverride — на терминальном цикле решение судьи
	// заменено решением Decision Engine.
	SourceDeterministicOverride VerdictSource = "DETERMINISTIC_OVERRIDE"
)

// ConflictType — классификация расхождения между стадиями.
type ConflictType string

const (
	ConflictNone                    ConflictType = ""
	ConflictProbabilityDisagreement ConflictType = "PROBABILITY_DISAGREEMENT"
	ConflictAmbiguousSignal         ConflictType = "AMBIGUOUS_SIGNAL"
	ConflictStructuralDisagreement  ConflictType = "STRUCTURAL_DISAGREEMENT"
)
