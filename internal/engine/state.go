package engine

import (
	"github.com/shaiso/DealFlow/internal/decision"
	"github.com/shaiso/DealFlow/internal/domain"
)

// State — состояние машины.
type State string

const (
	StateScouting         State = "SCOUTING"
	StateContrarianReview State = "CONTRARIAN_REVIEW"
	StateArbitration      State = "ARBITRATION"
	StateLoopBack         State = "LOOP_BACK"
	StateFinalize         State = "FINALIZE"
	StateAbort            State = "ABORT"
)

// IsTerminal возвращает true для FINALIZE и ABORT.
func (s State) IsTerminal() bool {
	return s == StateFinalize || s == StateAbort
}

// Stage возвращает стадию, выполняемую в этом состоянии.
// Второе значение false для состояний без стадии.
func (s State) Stage() (domain.StageName, bool) {
	switch s {
	case StateScouting:
		return domain.StageScout, true
	case StateContrarianReview:
		return domain.StageContrarian, true
	case StateArbitration:
		return domain.StageJudge, true
	default:
		return "", false
	}
}

// maxCyclesLimit — верхняя граница MaxCycles.
const maxCyclesLimit = 2

// Policy — параметры переходов.
type Policy struct {
	// MaxCycles — максимальное число циклов (1..2).
	MaxCycles int

	// DisagreementThreshold — порог расхождения направленных оценок
	// scout и contrarian, выше которого цикл считается конфликтным.
	DisagreementThreshold float64
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{MaxCycles: 2, DisagreementThreshold: 0.40}
}

// ScorePair — направленные оценки scout и contrarian текущего цикла.
type ScorePair struct {
	Scout      float64
	Contrarian float64
}

// Input — данные, от которых зависит переход.
type Input struct {
	Cycle  int
	Scores ScorePair
	Failed bool
}

// Conflict возвращает true, если расхождение оценок превышает порог.
func Conflict(scores ScorePair, p Policy) bool {
	return decision.Gap(scores.Scout, scores.Contrarian) > p.DisagreementThreshold
}

// Next — чистая функция перехода.
func Next(current State, in Input, p Policy) State {
	if current.IsTerminal() {
		return current
	}
	if in.Failed {
		return StateAbort
	}

	switch current {
	case StateScouting:
		return StateContrarianReview
	case StateContrarianReview:
		return StateArbitration
	case StateArbitration:
		if Conflict(in.Scores, p) && in.Cycle < p.MaxCycles {
			return StateLoopBack
		}
		return StateFinalize
	case StateLoopBack:
		return StateScouting
	default:
		return StateAbort
	}
}
